package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/hcl_adapter"
	"github.com/gofecto/gofecto/internal/registry"
)

// Build translates the configuration model into a ready-to-execute graph:
// it creates one node per step instance and resource, links explicit and
// implicit dependencies, seeds the scheduling counters and rejects cycles.
func Build(ctx context.Context, model *config.Model, reg *registry.Registry) (*Graph, error) {
	graph := &Graph{Nodes: make(map[string]*Node)}

	if err := createNodes(ctx, graph, model, reg); err != nil {
		return nil, err
	}
	if err := linkNodes(ctx, graph, model, reg); err != nil {
		return nil, err
	}
	for _, n := range graph.Nodes {
		n.SetInitialCounters()
	}
	if err := graph.detectCycles(); err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("graph build complete", "nodes", len(graph.Nodes))
	return graph, nil
}

func createNodes(ctx context.Context, graph *Graph, model *config.Model, reg *registry.Registry) error {
	for _, res := range model.Pipeline.Resources {
		if reg != nil {
			if _, ok := reg.AssetDefinitionRegistry[res.AssetType]; !ok {
				return fmt.Errorf("resource '%s.%s' uses undefined asset type", res.AssetType, res.Name)
			}
		}
		id := fmt.Sprintf("resource.%s.%s", res.AssetType, res.Name)
		if _, exists := graph.Nodes[id]; exists {
			return fmt.Errorf("duplicate resource ID: %s", id)
		}
		graph.Nodes[id] = newResourceNode(id, res)
	}

	for _, step := range model.Pipeline.Steps {
		if reg != nil {
			if _, ok := reg.DefinitionRegistry[step.RunnerType]; !ok {
				return fmt.Errorf("step '%s.%s' uses undefined runner type", step.RunnerType, step.Name)
			}
		}
		switch step.Instancing {
		case config.ModeSingular:
			id := fmt.Sprintf("step.%s.%s", step.RunnerType, step.Name)
			if _, exists := graph.Nodes[id]; exists {
				return fmt.Errorf("duplicate step ID: %s", id)
			}
			graph.Nodes[id] = newStepNode(id, step, -1)
		case config.ModeInstanced:
			count, err := staticCount(step)
			if err != nil {
				return err
			}
			ctxlog.FromContext(ctx).Debug("expanding instanced step",
				"step", fmt.Sprintf("%s.%s", step.RunnerType, step.Name), "count", count)
			for i := 0; i < count; i++ {
				id := fmt.Sprintf("step.%s.%s[%d]", step.RunnerType, step.Name, i)
				if _, exists := graph.Nodes[id]; exists {
					return fmt.Errorf("duplicate step ID: %s", id)
				}
				graph.Nodes[id] = newStepNode(id, step, i)
			}
		default:
			return fmt.Errorf("step '%s.%s' has unknown instancing mode", step.RunnerType, step.Name)
		}
	}
	return nil
}

// staticCount evaluates a step's count expression. The count shapes the graph
// itself, so it may not reference other steps; only functions and literals.
func staticCount(step *config.Step) (int, error) {
	val, diags := step.Count.Value(&hcl.EvalContext{Functions: hcl_adapter.EvalFunctions()})
	if diags.HasErrors() {
		return 0, fmt.Errorf("count for step '%s.%s' must be static: %w", step.RunnerType, step.Name, diags)
	}
	val, err := convert.Convert(val, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("count for step '%s.%s' is not a number: %w", step.RunnerType, step.Name, err)
	}
	var count int
	if err := gocty.FromCtyValue(val, &count); err != nil {
		return 0, fmt.Errorf("count for step '%s.%s': %w", step.RunnerType, step.Name, err)
	}
	if count < 0 {
		return 0, fmt.Errorf("count for step '%s.%s' is negative: %d", step.RunnerType, step.Name, count)
	}
	return count, nil
}

func linkNodes(ctx context.Context, graph *Graph, model *config.Model, reg *registry.Registry) error {
	for _, id := range graph.SortedIDs() {
		n := graph.Nodes[id]
		if err := linkExplicitDeps(ctx, graph, n, model); err != nil {
			return err
		}
		if n.Type != StepNode {
			continue
		}
		if err := linkImplicitDeps(ctx, graph, n, model, reg); err != nil {
			return err
		}
		if err := linkResourceDeps(ctx, graph, n, reg); err != nil {
			return err
		}
	}
	return nil
}

// link records a dependency edge from dependent to dependency, idempotently.
func link(dependent, dependency *Node) {
	if dependent == dependency {
		return
	}
	dependent.Deps[dependency.ID] = dependency
	dependency.Dependents[dependent.ID] = dependent
}
