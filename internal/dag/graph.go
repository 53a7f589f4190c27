package dag

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the set of linked nodes for one run.
type Graph struct {
	// Nodes maps a node's unique ID to the node itself.
	Nodes map[string]*Node
}

// SortedIDs returns the node IDs in lexical order, for deterministic
// iteration in logs, plans and tests.
func (g *Graph) SortedIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// stepInstances returns every instance node of the step with the given full
// name (e.g. "exec.build"), sorted by index. A singular step yields its
// single node.
func (g *Graph) stepInstances(fullName string) []*Node {
	if n, ok := g.Nodes["step."+fullName]; ok {
		return []*Node{n}
	}
	var nodes []*Node
	prefix := "step." + fullName + "["
	for id, n := range g.Nodes {
		if strings.HasPrefix(id, prefix) {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Index < nodes[j].Index })
	return nodes
}

// detectCycles verifies the graph is acyclic. On failure the error names the
// full cycle path so the user can fix the configuration.
func (g *Graph) detectCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	marks := make(map[string]int, len(g.Nodes))

	var visit func(n *Node, path []string) error
	visit = func(n *Node, path []string) error {
		switch marks[n.ID] {
		case visited:
			return nil
		case visiting:
			start := 0
			for i, id := range path {
				if id == n.ID {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, path[start:]...), n.ID)
			return fmt.Errorf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
		}
		marks[n.ID] = visiting
		path = append(path, n.ID)
		for _, dep := range sortedNodes(n.Deps) {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		marks[n.ID] = visited
		return nil
	}

	for _, id := range g.SortedIDs() {
		if err := visit(g.Nodes[id], nil); err != nil {
			return err
		}
	}
	return nil
}

func sortedNodes(m map[string]*Node) []*Node {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, m[id])
	}
	return nodes
}
