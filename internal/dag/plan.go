package dag

import (
	"github.com/hashicorp/hcl/v2"

	"github.com/gofecto/gofecto/internal/hcl_adapter"
)

// Plan actions.
const (
	PlanRun         = "run"
	PlanSkip        = "skip"
	PlanConditional = "conditional"
	PlanCreate      = "create"
)

// PlanEntry previews what a run would do with one node.
type PlanEntry struct {
	ID     string
	Action string
	Reason string
}

// Plan walks the graph without executing anything. When clauses that only
// read run facts (event, version, env) are decided now; clauses that need
// another step's output cannot be decided before the run and are reported
// as conditional.
func Plan(g *Graph, info RunInfo) []PlanEntry {
	evalCtx := &hcl.EvalContext{
		Variables: baseVariables(info),
		Functions: hcl_adapter.EvalFunctions(),
	}

	entries := make([]PlanEntry, 0, len(g.Nodes))
	for _, id := range g.SortedIDs() {
		n := g.Nodes[id]
		entry := PlanEntry{ID: id, Action: PlanRun}
		switch {
		case n.Type == ResourceNode:
			entry.Action = PlanCreate
		case n.StepConfig.When == nil:
			// unconditional step, runs unless an upstream failure skips it
		case whenNeedsRunResults(n.StepConfig.When):
			entry.Action = PlanConditional
			entry.Reason = "when clause reads another step's output"
		default:
			proceed, err := evalWhen(n.StepConfig.When, evalCtx)
			switch {
			case err != nil:
				entry.Action = PlanConditional
				entry.Reason = err.Error()
			case !proceed:
				entry.Action = PlanSkip
				entry.Reason = "when clause is false"
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// whenNeedsRunResults reports whether the clause references data that only
// exists once other nodes have run.
func whenNeedsRunResults(expr hcl.Expression) bool {
	for _, traversal := range expr.Variables() {
		switch traversal.RootName() {
		case "step", "count":
			return true
		}
	}
	return false
}
