package dag

import (
	"context"
	"fmt"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
)

// linkExplicitDeps wires the edges declared in a node's depends_on list.
//
// A dependency address is either "resource.<asset_type>.<name>", or a step
// address "<runner_type>.<name>" with an optional "step." prefix and an
// optional "[<index>]" suffix. An unindexed address for an instanced step
// fans in to every instance of that step.
func linkExplicitDeps(ctx context.Context, graph *Graph, n *Node, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)
	var dependsOn []string
	switch n.Type {
	case StepNode:
		dependsOn = n.StepConfig.DependsOn
	case ResourceNode:
		dependsOn = n.ResourceConfig.DependsOn
	}

	for _, raw := range dependsOn {
		addr, err := parseDepAddress(raw)
		if err != nil {
			return fmt.Errorf("node '%s': %w", n.ID, err)
		}

		if addr.kind == "resource" {
			id := fmt.Sprintf("resource.%s.%s", addr.ownerType, addr.name)
			dep, ok := graph.Nodes[id]
			if !ok {
				return fmt.Errorf("node '%s' depends on undefined resource '%s'", n.ID, raw)
			}
			link(n, dep)
			continue
		}

		fullName := addr.ownerType + "." + addr.name
		if addr.hasIndex {
			id := fmt.Sprintf("step.%s[%d]", fullName, addr.index)
			dep, ok := graph.Nodes[id]
			if !ok {
				return fmt.Errorf("node '%s' depends on undefined step instance '%s'", n.ID, raw)
			}
			link(n, dep)
			continue
		}

		deps := graph.stepInstances(fullName)
		if len(deps) == 0 {
			if stepDeclared(model, addr.ownerType, addr.name) {
				// A step with count = 0 produces no nodes; nothing to wait for.
				logger.Debug("dependency target has zero instances", "node", n.ID, "target", raw)
				continue
			}
			return fmt.Errorf("node '%s' depends on undefined step '%s'", n.ID, raw)
		}
		for _, dep := range deps {
			link(n, dep)
		}
		if len(deps) > 1 {
			logger.Debug("fanning in explicit dependency",
				"node", n.ID, "target", fullName, "instances", len(deps))
		}
	}
	return nil
}

func stepDeclared(model *config.Model, runnerType, name string) bool {
	for _, s := range model.Pipeline.Steps {
		if s.RunnerType == runnerType && s.Name == name {
			return true
		}
	}
	return false
}
