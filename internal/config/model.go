// SPDX-License-Identifier: MIT

package config

import (
	"time"

	"github.com/gofecto/gofecto/internal/trigger"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of a project's
// delivery configuration: project identity, versioning scheme, publish
// destinations, trigger rules, module manifests and the step graph.
type Model struct {
	Project  *Project
	Version  *VersionSpec
	Publish  map[string]*PublishTarget
	Runners  map[string]*RunnerDefinition
	Assets   map[string]*AssetDefinition
	Pipeline *Pipeline
}

// Project identifies the repository being driven.
type Project struct {
	Name       string
	DistDir    string
	MainBranch string
}

// VersionSpec carries version derivation settings from the manifest. Empty
// fields fall back to scheme defaults.
type VersionSpec struct {
	Default       string
	EnvVar        string
	ReleasePrefix string
	DevTemplate   string
}

// PublishTarget is one publish destination. The backend decides which field
// group is meaningful.
type PublishTarget struct {
	Name    string
	Backend string
	Staging bool

	// registry backend
	URL      string
	TokenEnv string

	// s3 backend
	Bucket       string
	Region       string
	Prefix       string
	AccessKeyEnv string
	SecretKeyEnv string
}

// Pipeline is the user's step graph plus its trigger rules.
type Pipeline struct {
	Rules     trigger.Rules
	HasOn     bool
	Steps     []*Step
	Resources []*Resource
}

// Mode describes how many nodes a step expands to.
type Mode int

const (
	// ModeSingular is a step without count, one node.
	ModeSingular Mode = iota
	// ModeInstanced is a step with count, one node per index.
	ModeInstanced
)

// Step is the format-agnostic representation of a `step` block.
type Step struct {
	RunnerType string
	Name       string
	Count      hcl.Expression
	Instancing Mode
	Arguments  map[string]hcl.Expression
	Uses       map[string]hcl.Expression
	DependsOn  []string
	When       hcl.Expression
	Retry      *Retry
}

// Resource is the format-agnostic representation of a `resource` block.
type Resource struct {
	AssetType string
	Name      string
	Arguments map[string]hcl.Expression
	DependsOn []string
}

// Retry is a step's declared retry policy. Steps without one never retry.
type Retry struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// --- Module Manifest Models ---

// RunnerDefinition is the format-agnostic representation of a runner's manifest.
type RunnerDefinition struct {
	Type        string
	Description string
	Lifecycle   *Lifecycle
	Inputs      map[string]*InputDefinition
	Outputs     map[string]*OutputDefinition
	Uses        map[string]*UsesDefinition
}

// AssetDefinition is the format-agnostic representation of an asset's manifest.
type AssetDefinition struct {
	Type        string
	Description string
	Lifecycle   *AssetLifecycle
	Inputs      map[string]*InputDefinition
	Outputs     map[string]*OutputDefinition
}

// Lifecycle maps a runner's events to Go handler names.
type Lifecycle struct {
	OnRun string
}

// AssetLifecycle maps an asset's events to Go handler names.
type AssetLifecycle struct {
	Create  string
	Destroy string
}

// InputDefinition defines a single input argument for a runner or asset.
type InputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *cty.Value
	Optional    bool
}

// OutputDefinition defines a single output value from a runner or asset.
type OutputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
}

// UsesDefinition defines an asset dependency slot of a runner.
type UsesDefinition struct {
	LocalName string
	AssetType string
}

// NewModel returns an empty model with all maps initialized.
func NewModel() *Model {
	return &Model{
		Publish:  make(map[string]*PublishTarget),
		Runners:  make(map[string]*RunnerDefinition),
		Assets:   make(map[string]*AssetDefinition),
		Pipeline: &Pipeline{},
	}
}
