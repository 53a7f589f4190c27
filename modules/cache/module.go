// Package cache provides the 'cache' runner, which restores and saves
// dependency trees keyed by an expression, typically a lockfile digest
// computed with filesha256().
package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"

	cachestore "github.com/gofecto/gofecto/internal/cache"
	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the cache runner.
type Input struct {
	Action  string   `gofecto:"action"`
	Project string   `gofecto:"project"`
	Key     string   `gofecto:"key"`
	Paths   []string `gofecto:"paths"`
	Root    string   `gofecto:"root"`
	Workdir string   `gofecto:"workdir"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// Output defines the data structure returned by the runner.
type Output struct {
	Hit bool   `cty:"hit"`
	Key string `cty:"key"`
}

// OnRunCache is the handler for the 'cache' runner's on_run lifecycle event.
func OnRunCache(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx).With("action", input.Action, "key", input.Key)

	if input.Key == "" {
		return nil, errors.New("key must not be empty")
	}
	root := input.Root
	if root == "" {
		var err error
		root, err = cachestore.DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	workdir := input.Workdir
	if workdir == "" {
		workdir = "."
	}

	c, err := cachestore.Open(root, input.Project)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	switch strings.ToLower(input.Action) {
	case "restore":
		hit, err := c.Restore(ctx, input.Key, workdir)
		if err != nil {
			return nil, fmt.Errorf("restoring cache: %w", err)
		}
		logger.Info("cache restore finished", "hit", hit)
		return &Output{Hit: hit, Key: input.Key}, nil

	case "save":
		if len(input.Paths) == 0 {
			return nil, errors.New("save needs at least one path")
		}
		if _, err := c.Save(ctx, input.Key, workdir, input.Paths); err != nil {
			return nil, fmt.Errorf("saving cache: %w", err)
		}
		logger.Info("cache saved", "paths", input.Paths)
		return &Output{Hit: false, Key: input.Key}, nil

	default:
		return nil, fmt.Errorf("unknown cache action '%s'", input.Action)
	}
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunCache", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunCache,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "cache",
		Description: "Restores or saves a keyed dependency tree from the local cache.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunCache"},
		Inputs: map[string]*config.InputDefinition{
			"action":  {Name: "action", Type: cty.String, Description: "'restore' or 'save'."},
			"project": {Name: "project", Type: cty.String, Description: "Cache namespace, usually the project name."},
			"key":     {Name: "key", Type: cty.String, Description: "Cache key, typically a lockfile digest."},
			"paths":   {Name: "paths", Type: cty.List(cty.String), Description: "Paths to archive on save, relative to workdir.", Optional: true},
			"root":    {Name: "root", Type: cty.String, Description: "Cache root; defaults to the user cache dir.", Optional: true},
			"workdir": {Name: "workdir", Type: cty.String, Description: "Directory paths are resolved against; defaults to '.'.", Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"hit": {Name: "hit", Type: cty.Bool, Description: "Whether a restore found the key."},
			"key": {Name: "key", Type: cty.String, Description: "The key that was looked up or saved."},
		},
	})
}
