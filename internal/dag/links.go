package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"

	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// linkResourceDeps wires a step to the resources bound in its uses block and
// checks each binding against the slot declared by the runner's manifest.
//
// A binding's value is a bare resource address, with or without the
// "resource." prefix: `uses { client = http_client.shared }`.
func linkResourceDeps(ctx context.Context, graph *Graph, n *Node, reg *registry.Registry) error {
	for localName, expr := range n.StepConfig.Uses {
		traversal, diags := hcl.AbsTraversalForExpr(expr)
		if diags.HasErrors() {
			return fmt.Errorf("step '%s': uses.%s must be a resource address: %w", n.ID, localName, diags)
		}
		parts, err := traversalParts(traversal)
		if err != nil {
			return fmt.Errorf("step '%s': uses.%s: %w", n.ID, localName, err)
		}
		if len(parts) > 0 && parts[0] == "resource" {
			parts = parts[1:]
		}
		if len(parts) != 2 {
			return fmt.Errorf("step '%s': uses.%s must be '<asset_type>.<name>'", n.ID, localName)
		}
		assetType, name := parts[0], parts[1]

		id := fmt.Sprintf("resource.%s.%s", assetType, name)
		dep, ok := graph.Nodes[id]
		if !ok {
			return fmt.Errorf("step '%s': uses.%s references undefined resource '%s.%s'",
				n.ID, localName, assetType, name)
		}

		if reg != nil {
			if def, ok := reg.DefinitionRegistry[n.StepConfig.RunnerType]; ok {
				slot, declared := def.Uses[localName]
				if !declared {
					return fmt.Errorf("step '%s': runner '%s' declares no uses slot '%s'",
						n.ID, n.StepConfig.RunnerType, localName)
				}
				if slot.AssetType != assetType {
					return fmt.Errorf("step '%s': uses.%s expects asset type '%s', got '%s'",
						n.ID, localName, slot.AssetType, assetType)
				}
			}
		}

		link(n, dep)
		ctxlog.FromContext(ctx).Debug("linked resource dependency", "step", n.ID, "resource", id, "slot", localName)
	}
	return nil
}
