// This file contains the logic for translating HCL schema structs into the
// format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/schema"
	"github.com/gofecto/gofecto/internal/trigger"
)

// translateProject converts the project block, filling in defaults for
// omitted settings.
func translateProject(s *schema.Project) *config.Project {
	p := &config.Project{
		Name:       s.Name,
		DistDir:    s.DistDir,
		MainBranch: s.MainBranch,
	}
	if p.DistDir == "" {
		p.DistDir = "dist"
	}
	if p.MainBranch == "" {
		p.MainBranch = "main"
	}
	return p
}

// translateVersion converts the version block. Empty fields are resolved to
// scheme defaults by the version package, not here.
func translateVersion(s *schema.Version) *config.VersionSpec {
	return &config.VersionSpec{
		Default:       s.Default,
		EnvVar:        s.EnvVar,
		ReleasePrefix: s.ReleasePrefix,
		DevTemplate:   s.DevTemplate,
	}
}

// translatePublish converts one publish block, validating that the chosen
// backend has the settings it needs.
func translatePublish(s *schema.Publish) (*config.PublishTarget, error) {
	t := &config.PublishTarget{
		Name:         s.Name,
		Backend:      s.Backend,
		Staging:      s.Staging,
		URL:          s.URL,
		TokenEnv:     s.TokenEnv,
		Bucket:       s.Bucket,
		Region:       s.Region,
		Prefix:       s.Prefix,
		AccessKeyEnv: s.AccessKeyEnv,
		SecretKeyEnv: s.SecretKeyEnv,
	}
	switch t.Backend {
	case "registry":
		if t.URL == "" {
			return nil, fmt.Errorf("publish target %q: registry backend requires url", t.Name)
		}
	case "s3":
		if t.Bucket == "" || t.Region == "" {
			return nil, fmt.Errorf("publish target %q: s3 backend requires bucket and region", t.Name)
		}
	default:
		return nil, fmt.Errorf("publish target %q: unknown backend %q", t.Name, t.Backend)
	}
	return t, nil
}

// translateOn converts the on block into trigger rules.
func translateOn(s *schema.On) trigger.Rules {
	var rules trigger.Rules
	if s.Push != nil {
		rules.Push = &trigger.PushRules{
			Branches: s.Push.Branches,
			Tags:     s.Push.Tags,
		}
	}
	if s.PullRequest != nil {
		rules.PullRequest = &trigger.PullRequestRules{
			Branches: s.PullRequest.Branches,
		}
	}
	return rules
}

// translateStep converts the HCL-specific step schema into the agnostic model.
func (l *Loader) translateStep(ctx context.Context, s *schema.Step) (*config.Step, error) {
	logger := ctxlog.FromContext(ctx).With("step_runner", s.RunnerType, "step_name", s.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.Debug("Translating HCL step to internal config model.")

	instancingMode := config.ModeSingular
	if isExprDefined(ctx, s.Count, "count") {
		logger.Debug("`count` attribute is defined. Marking step as instanced.")
		instancingMode = config.ModeInstanced
	}

	step := &config.Step{
		RunnerType: s.RunnerType,
		Name:       s.Name,
		Count:      s.Count,
		Instancing: instancingMode,
		Arguments:  l.extractBodyAttributes(s.Arguments),
		Uses:       l.extractBodyAttributes(s.Uses),
		DependsOn:  s.DependsOn,
	}
	if isExprDefined(ctx, s.When, "when") {
		step.When = s.When
	}

	retry, err := translateRetry(s.Retry)
	if err != nil {
		return nil, fmt.Errorf("step %s.%s: %w", s.RunnerType, s.Name, err)
	}
	step.Retry = retry
	return step, nil
}

// translateRetry converts a retry block, parsing its duration strings.
func translateRetry(s *schema.Retry) (*config.Retry, error) {
	if s == nil {
		return nil, nil
	}
	if s.Attempts < 1 {
		return nil, fmt.Errorf("retry attempts must be at least 1, got %d", s.Attempts)
	}
	r := &config.Retry{Attempts: s.Attempts}
	if s.Backoff != "" {
		d, err := time.ParseDuration(s.Backoff)
		if err != nil {
			return nil, fmt.Errorf("invalid retry backoff %q: %w", s.Backoff, err)
		}
		r.Backoff = d
	}
	if s.MaxBackoff != "" {
		d, err := time.ParseDuration(s.MaxBackoff)
		if err != nil {
			return nil, fmt.Errorf("invalid retry max_backoff %q: %w", s.MaxBackoff, err)
		}
		r.MaxBackoff = d
	}
	return r, nil
}

// translateResource converts the HCL-specific resource schema into the agnostic model.
func (l *Loader) translateResource(s *schema.Resource) *config.Resource {
	return &config.Resource{
		AssetType: s.AssetType,
		Name:      s.Name,
		Arguments: l.extractBodyAttributes(s.Arguments),
		DependsOn: s.DependsOn,
	}
}

// translateRunnerDefinition converts the HCL-specific runner schema into the agnostic model.
func (l *Loader) translateRunnerDefinition(ctx context.Context, s *schema.RunnerDefinition) (*config.RunnerDefinition, error) {
	r := &config.RunnerDefinition{
		Type:        s.Type,
		Description: s.Description,
		Inputs:      make(map[string]*config.InputDefinition),
		Outputs:     make(map[string]*config.OutputDefinition),
		Uses:        make(map[string]*config.UsesDefinition),
	}
	if s.Lifecycle != nil {
		r.Lifecycle = &config.Lifecycle{OnRun: s.Lifecycle.OnRun}
	}

	for _, in := range s.Inputs {
		translatedInput, err := translateInputDefinition(ctx, in, "runner", s.Type)
		if err != nil {
			return nil, err
		}
		r.Inputs[in.Name] = translatedInput
	}

	for _, out := range s.Outputs {
		parsedType, err := typeExprToCtyType(ctx, out.Type)
		if err != nil {
			return nil, fmt.Errorf("in runner '%s', output '%s': %w", s.Type, out.Name, err)
		}
		r.Outputs[out.Name] = &config.OutputDefinition{
			Name:        out.Name,
			Type:        parsedType,
			Description: out.Description,
		}
	}

	for _, use := range s.Uses {
		r.Uses[use.LocalName] = &config.UsesDefinition{
			LocalName: use.LocalName,
			AssetType: use.AssetType,
		}
	}
	return r, nil
}

// translateAssetDefinition converts the HCL-specific asset schema into the agnostic model.
func (l *Loader) translateAssetDefinition(ctx context.Context, s *schema.AssetDefinition) (*config.AssetDefinition, error) {
	a := &config.AssetDefinition{
		Type:        s.Type,
		Description: s.Description,
		Inputs:      make(map[string]*config.InputDefinition),
		Outputs:     make(map[string]*config.OutputDefinition),
	}
	if s.Lifecycle != nil {
		a.Lifecycle = &config.AssetLifecycle{Create: s.Lifecycle.Create, Destroy: s.Lifecycle.Destroy}
	}

	for _, in := range s.Inputs {
		translatedInput, err := translateInputDefinition(ctx, in, "asset", s.Type)
		if err != nil {
			return nil, err
		}
		a.Inputs[in.Name] = translatedInput
	}

	for _, out := range s.Outputs {
		parsedType, err := typeExprToCtyType(ctx, out.Type)
		if err != nil {
			return nil, fmt.Errorf("in asset '%s', output '%s': %w", s.Type, out.Name, err)
		}
		a.Outputs[out.Name] = &config.OutputDefinition{
			Name:        out.Name,
			Type:        parsedType,
			Description: out.Description,
		}
	}
	return a, nil
}
