// Package gitinfo provides the 'gitinfo' runner, which exposes the
// repository position (branch, commit, tag, dirtiness) to pipeline
// expressions.
package gitinfo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/gitx"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the gitinfo runner.
type Input struct {
	Dir string `gofecto:"dir"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// Output defines the data structure returned by the runner.
type Output struct {
	Branch   string `cty:"branch"`
	SHA      string `cty:"sha"`
	Tag      string `cty:"tag"`
	Dirty    bool   `cty:"dirty"`
	Detached bool   `cty:"detached"`
}

// openRepo is swapped by tests so they run without a git binary.
var openRepo = gitx.Open

// OnRunGitInfo is the handler for the 'gitinfo' runner's on_run lifecycle
// event.
func OnRunGitInfo(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	dir := input.Dir
	if dir == "" {
		dir = "."
	}

	state, err := openRepo(dir).Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading repository state: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("repository snapshot",
		"branch", state.Branch, "sha", state.SHA, "tag", state.Tag, "dirty", state.Dirty)

	return &Output{
		Branch:   state.Branch,
		SHA:      state.SHA,
		Tag:      state.Tag,
		Dirty:    state.Dirty,
		Detached: state.Detached,
	}, nil
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunGitInfo", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunGitInfo,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "gitinfo",
		Description: "Reads the repository position for use in pipeline expressions.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunGitInfo"},
		Inputs: map[string]*config.InputDefinition{
			"dir": {Name: "dir", Type: cty.String, Description: "Repository directory; defaults to the working directory.", Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"branch":   {Name: "branch", Type: cty.String, Description: "Checked-out branch, empty on a detached HEAD."},
			"sha":      {Name: "sha", Type: cty.String, Description: "Short commit hash of HEAD."},
			"tag":      {Name: "tag", Type: cty.String, Description: "Tag pointing exactly at HEAD, empty if none."},
			"dirty":    {Name: "dirty", Type: cty.Bool, Description: "Whether the working tree has uncommitted changes."},
			"detached": {Name: "detached", Type: cty.Bool, Description: "Whether HEAD is detached."},
		},
	})
}
