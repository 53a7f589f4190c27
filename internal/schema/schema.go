// SPDX-License-Identifier: MIT

// Package schema holds the HCL-tagged structs that mirror the manifest
// surface. They are decode targets only; the loader translates them into the
// format-agnostic config model.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Project Settings ---

// Project is the `project` block identifying the repository being driven.
type Project struct {
	Name       string `hcl:"name"`
	DistDir    string `hcl:"dist_dir,optional"`
	MainBranch string `hcl:"main_branch,optional"`
}

// Version is the `version` block tuning how versions are derived. All fields
// are optional; unset ones take scheme defaults.
type Version struct {
	Default       string `hcl:"default,optional"`
	EnvVar        string `hcl:"env_var,optional"`
	ReleasePrefix string `hcl:"release_prefix,optional"`
	DevTemplate   string `hcl:"dev_template,optional"`
}

// Publish is a `publish "name"` block describing one publish destination.
// Credentials are always named indirectly via environment variable names,
// never inlined.
type Publish struct {
	Name         string `hcl:"name,label"`
	Backend      string `hcl:"backend"`
	Staging      bool   `hcl:"staging,optional"`
	URL          string `hcl:"url,optional"`
	TokenEnv     string `hcl:"token_env,optional"`
	Bucket       string `hcl:"bucket,optional"`
	Region       string `hcl:"region,optional"`
	Prefix       string `hcl:"prefix,optional"`
	AccessKeyEnv string `hcl:"access_key_env,optional"`
	SecretKeyEnv string `hcl:"secret_key_env,optional"`
}

// --- Trigger Rules ---

// PushRule is the `push` block inside `on`.
type PushRule struct {
	Branches []string `hcl:"branches,optional"`
	Tags     []string `hcl:"tags,optional"`
}

// PullRequestRule is the `pull_request` block inside `on`.
type PullRequestRule struct {
	Branches []string `hcl:"branches,optional"`
}

// On is the `on` block declaring which events run the pipeline.
type On struct {
	Push        *PushRule        `hcl:"push,block"`
	PullRequest *PullRequestRule `hcl:"pull_request,block"`
}

// --- Primary Pipeline Structures ---

// StepArgs represents the content of the 'arguments' block within a step.
type StepArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// UsesBlock represents the content of the 'uses' block within a step.
type UsesBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Retry is a step's `retry` block. Backoff durations are Go duration strings.
type Retry struct {
	Attempts   int    `hcl:"attempts"`
	Backoff    string `hcl:"backoff,optional"`
	MaxBackoff string `hcl:"max_backoff,optional"`
}

// Step represents a `step` block from a pipeline file. It is a runnable
// instance of a defined runner.
type Step struct {
	RunnerType string         `hcl:"runner_type,label"`
	Name       string         `hcl:"instance_name,label"`
	Arguments  *StepArgs      `hcl:"arguments,block"`
	Uses       *UsesBlock     `hcl:"uses,block"`
	DependsOn  []string       `hcl:"depends_on,optional"`
	Count      hcl.Expression `hcl:"count,optional"`
	When       hcl.Expression `hcl:"when,optional"`
	Retry      *Retry         `hcl:"retry,block"`
}

// Resource represents a `resource` block from a pipeline file. It is a
// managed, stateful instance of a defined asset.
type Resource struct {
	AssetType string    `hcl:"asset_type,label"`
	Name      string    `hcl:"instance_name,label"`
	Arguments *StepArgs `hcl:"arguments,block"`
	DependsOn []string  `hcl:"depends_on,optional"`
}

// --- Module Manifest Schemas ---

// Lifecycle defines the mapping from a runner's lifecycle event to a
// registered Go handler function.
type Lifecycle struct {
	OnRun string `hcl:"on_run,optional"`
}

// AssetLifecycle defines the mapping from a resource's lifecycle events
// (create, destroy) to registered Go handler functions.
type AssetLifecycle struct {
	Create  string `hcl:"create"`
	Destroy string `hcl:"destroy"`
}

// InputDefinition defines a single input variable for a runner or asset.
type InputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// OutputDefinition defines a single output value produced by a runner or asset.
type OutputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
}

// UsesDefinition defines an asset dependency required by a runner.
type UsesDefinition struct {
	LocalName string `hcl:"local_name,label"`
	AssetType string `hcl:"asset_type"`
}

// RunnerDefinition represents the HCL manifest for a runnable `runner` type.
type RunnerDefinition struct {
	Type        string              `hcl:"type,label"`
	Description string              `hcl:"description,optional"`
	Lifecycle   *Lifecycle          `hcl:"lifecycle,block"`
	Inputs      []*InputDefinition  `hcl:"input,block"`
	Outputs     []*OutputDefinition `hcl:"output,block"`
	Uses        []*UsesDefinition   `hcl:"uses,block"`
}

// AssetDefinition represents the HCL manifest for a stateful `asset` type.
type AssetDefinition struct {
	Type        string              `hcl:"type,label"`
	Description string              `hcl:"description,optional"`
	Lifecycle   *AssetLifecycle     `hcl:"lifecycle,block"`
	Inputs      []*InputDefinition  `hcl:"input,block"`
	Outputs     []*OutputDefinition `hcl:"output,block"`
}
