package dag

import (
	"fmt"
)

// Subgraph restricts the graph to the named target steps plus everything they
// transitively depend on, resources included. A target is a bare step name
// ("build"), a type-qualified name ("exec.build") or a full node ID; every
// instance of an instanced step matches its name. The receiver's nodes are
// relinked in place, so the original graph must not be executed afterwards.
func (g *Graph) Subgraph(targets []string) (*Graph, error) {
	keep := make(map[string]*Node)
	for _, target := range targets {
		seeds := g.findTarget(target)
		if len(seeds) == 0 {
			return nil, fmt.Errorf("no step named '%s' in the pipeline (targets match a step's name)", target)
		}
		for _, seed := range seeds {
			collectDeps(seed, keep)
		}
	}

	for _, n := range keep {
		pruned := make(map[string]*Node, len(n.Dependents))
		for id, dependent := range n.Dependents {
			if _, ok := keep[id]; ok {
				pruned[id] = dependent
			}
		}
		n.Dependents = pruned
		n.SetInitialCounters()
	}
	return &Graph{Nodes: keep}, nil
}

// findTarget matches step nodes by name, qualified name or ID.
func (g *Graph) findTarget(target string) []*Node {
	var nodes []*Node
	for _, n := range g.Nodes {
		if n.Type != StepNode {
			continue
		}
		qualified := n.StepConfig.RunnerType + "." + n.Name
		if n.Name == target || qualified == target || n.ID == target {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// collectDeps walks the dependency closure of n into keep.
func collectDeps(n *Node, keep map[string]*Node) {
	if _, ok := keep[n.ID]; ok {
		return
	}
	keep[n.ID] = n
	for _, dep := range n.Deps {
		collectDeps(dep, keep)
	}
}
