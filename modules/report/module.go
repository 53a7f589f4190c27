// Package report provides the 'report' runner, which renders a key/value
// table of prior step outputs to stdout. Release pipelines end on one so the
// run leaves a human-readable trace.
package report

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the report runner.
type Input struct {
	Title string            `gofecto:"title"`
	Data  map[string]string `gofecto:"data"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// Output defines the data structure returned by the runner.
type Output struct {
	Rendered string `cty:"rendered"`
}

// OnRunReport is the handler for the 'report' runner's on_run lifecycle
// event. Rows are sorted by key so the table is stable across runs.
func OnRunReport(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	if len(input.Data) == 0 {
		return nil, errors.New("data must not be empty")
	}

	keys := make([]string, 0, len(input.Data))
	for k := range input.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetStyle(table.StyleLight)
	if input.Title != "" {
		w.SetTitle(input.Title)
	}
	w.AppendHeader(table.Row{"Key", "Value"})
	for _, k := range keys {
		w.AppendRow(table.Row{k, input.Data[k]})
	}

	rendered := w.Render()
	ctxlog.FromContext(ctx).Debug("rendered report", "rows", len(keys))
	return &Output{Rendered: rendered}, nil
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunReport", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunReport,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "report",
		Description: "Renders a key/value table of step outputs to stdout.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunReport"},
		Inputs: map[string]*config.InputDefinition{
			"title": {Name: "title", Type: cty.String, Description: "Table title.", Optional: true},
			"data":  {Name: "data", Type: cty.Map(cty.String), Description: "Rows to render, sorted by key."},
		},
		Outputs: map[string]*config.OutputDefinition{
			"rendered": {Name: "rendered", Type: cty.String, Description: "The rendered table."},
		},
	})
}
