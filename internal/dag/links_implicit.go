package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// stepRef is a step reference extracted from an HCL traversal such as
// `step.exec.build.output.exit_code` or `step.exec.shard[2].output.path`.
type stepRef struct {
	runnerType string
	name       string
	index      int
	hasIndex   bool
	output     string // referenced output attribute, "" for whole-node references
}

// contextRoots are traversal roots provided by the run context rather than by
// another node; they create no edges.
var contextRoots = map[string]bool{
	"count":   true,
	"event":   true,
	"version": true,
	"env":     true,
}

// linkImplicitDeps scans every expression of a step (arguments and the when
// clause) for references to other steps' outputs and wires the implied edges.
// An unindexed reference to an instanced step fans in to all instances.
func linkImplicitDeps(ctx context.Context, graph *Graph, n *Node, model *config.Model, reg *registry.Registry) error {
	exprs := make([]hcl.Expression, 0, len(n.StepConfig.Arguments)+1)
	for _, expr := range n.StepConfig.Arguments {
		exprs = append(exprs, expr)
	}
	if n.StepConfig.When != nil {
		exprs = append(exprs, n.StepConfig.When)
	}

	for _, expr := range exprs {
		for _, traversal := range expr.Variables() {
			root := traversal.RootName()
			if contextRoots[root] || root == "resource" {
				continue
			}
			if root != "step" {
				return fmt.Errorf("step '%s' references unknown name '%s' at %s",
					n.ID, root, traversal.SourceRange())
			}

			ref, err := parseStepTraversal(traversal)
			if err != nil {
				return fmt.Errorf("step '%s': %w", n.ID, err)
			}

			fullName := ref.runnerType + "." + ref.name
			if ref.hasIndex {
				id := fmt.Sprintf("step.%s[%d]", fullName, ref.index)
				dep, ok := graph.Nodes[id]
				if !ok {
					return fmt.Errorf("step '%s' references undefined step instance 'step.%s[%d]'",
						n.ID, fullName, ref.index)
				}
				link(n, dep)
			} else {
				deps := graph.stepInstances(fullName)
				if len(deps) == 0 {
					if stepDeclared(model, ref.runnerType, ref.name) {
						continue
					}
					return fmt.Errorf("step '%s' references undefined step 'step.%s'", n.ID, fullName)
				}
				for _, dep := range deps {
					link(n, dep)
				}
			}

			if ref.output != "" {
				if err := validateOutputRef(reg, ref); err != nil {
					return fmt.Errorf("step '%s': %w", n.ID, err)
				}
			}
			ctxlog.FromContext(ctx).Debug("linked implicit dependency", "step", n.ID, "target", fullName)
		}
	}
	return nil
}

// parseStepTraversal dissects a traversal rooted at `step`. The shape is
// step.<runner_type>.<name>, optionally followed by [<index>], optionally
// followed by .output.<attribute>.
func parseStepTraversal(traversal hcl.Traversal) (*stepRef, error) {
	if len(traversal) < 3 {
		return nil, fmt.Errorf("incomplete step reference at %s", traversal.SourceRange())
	}
	typeAttr, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return nil, fmt.Errorf("malformed step reference at %s", traversal.SourceRange())
	}
	nameAttr, ok := traversal[2].(hcl.TraverseAttr)
	if !ok {
		return nil, fmt.Errorf("malformed step reference at %s", traversal.SourceRange())
	}

	ref := &stepRef{runnerType: typeAttr.Name, name: nameAttr.Name, index: -1}
	pos := 3

	if pos < len(traversal) {
		if idx, isIndex := traversal[pos].(hcl.TraverseIndex); isIndex {
			var i int
			if err := gocty.FromCtyValue(idx.Key, &i); err != nil {
				return nil, fmt.Errorf("non-integer step index at %s", idx.SourceRange())
			}
			ref.index = i
			ref.hasIndex = true
			pos++
		}
	}

	if pos < len(traversal) {
		attr, isAttr := traversal[pos].(hcl.TraverseAttr)
		if !isAttr || attr.Name != "output" {
			return nil, fmt.Errorf("step reference must access '.output' at %s", traversal[pos].SourceRange())
		}
		pos++
		if pos < len(traversal) {
			if field, isAttr := traversal[pos].(hcl.TraverseAttr); isAttr {
				ref.output = field.Name
			}
		}
	}
	return ref, nil
}

// validateOutputRef checks the referenced output attribute against the
// runner's manifest, so typos fail at build time instead of mid-run.
func validateOutputRef(reg *registry.Registry, ref *stepRef) error {
	if reg == nil {
		return nil
	}
	def, ok := reg.DefinitionRegistry[ref.runnerType]
	if !ok {
		return nil
	}
	if _, ok := def.Outputs[ref.output]; !ok {
		return fmt.Errorf("runner '%s' has no output '%s'", ref.runnerType, ref.output)
	}
	return nil
}
