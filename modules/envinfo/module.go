// Package envinfo provides the 'envinfo' runner, which reads an allow-list
// of environment variables into a map output. Steps use it to surface
// CI-provided context without granting expressions the whole environment.
package envinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the envinfo runner.
type Input struct {
	Names    []string `gofecto:"names"`
	Required bool     `gofecto:"required"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// Output defines the data structure returned by the runner.
type Output struct {
	Values  map[string]string `cty:"values"`
	Missing []string          `cty:"missing"`
}

// OnRunEnvInfo is the handler for the 'envinfo' runner's on_run lifecycle
// event. Unset variables land in the missing list; with required = true they
// fail the step instead.
func OnRunEnvInfo(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	if len(input.Names) == 0 {
		return nil, errors.New("names must list at least one environment variable")
	}

	out := &Output{
		Values:  make(map[string]string, len(input.Names)),
		Missing: []string{},
	}
	for _, name := range input.Names {
		if val, ok := os.LookupEnv(name); ok {
			out.Values[name] = val
		} else {
			out.Missing = append(out.Missing, name)
		}
	}

	if input.Required && len(out.Missing) > 0 {
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(out.Missing, ", "))
	}
	ctxlog.FromContext(ctx).Debug("read environment variables", "found", len(out.Values), "missing", len(out.Missing))
	return out, nil
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunEnvInfo", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunEnvInfo,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "envinfo",
		Description: "Reads an allow-list of environment variables into a map.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunEnvInfo"},
		Inputs: map[string]*config.InputDefinition{
			"names":    {Name: "names", Type: cty.List(cty.String), Description: "Variables to read."},
			"required": {Name: "required", Type: cty.Bool, Description: "Fail the step when any listed variable is unset.", Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"values":  {Name: "values", Type: cty.Map(cty.String), Description: "Values of the variables that were set."},
			"missing": {Name: "missing", Type: cty.List(cty.String), Description: "Listed variables that were not set."},
		},
	})
}
