package dag

import (
	"time"
)

// NodeResult is the recorded outcome of one node.
type NodeResult struct {
	ID       string
	Type     NodeType
	Status   State
	Reason   string // why the node was skipped, empty otherwise
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Summary aggregates the outcome of a run for reporting and history.
type Summary struct {
	Started  time.Time
	Finished time.Time

	// Results holds one entry per node, sorted by node ID.
	Results []NodeResult

	Succeeded int
	Failed    int
	Skipped   int
}

// OK reports whether the run finished without failures.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Duration is the wall-clock time of the whole run.
func (s *Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Result returns the entry for the given node ID, or nil.
func (s *Summary) Result(id string) *NodeResult {
	for i := range s.Results {
		if s.Results[i].ID == id {
			return &s.Results[i]
		}
	}
	return nil
}

func newSummary(g *Graph, started, finished time.Time) *Summary {
	s := &Summary{
		Started:  started,
		Finished: finished,
		Results:  make([]NodeResult, 0, len(g.Nodes)),
	}
	for _, id := range g.SortedIDs() {
		n := g.Nodes[id]
		status := n.GetState()
		s.Results = append(s.Results, NodeResult{
			ID:       n.ID,
			Type:     n.Type,
			Status:   status,
			Reason:   n.SkipReason,
			Err:      n.Error,
			Started:  n.Started,
			Duration: n.Duration(),
		})
		switch status {
		case Done:
			s.Succeeded++
		case Failed:
			s.Failed++
		case Skipped:
			s.Skipped++
		}
	}
	return s
}
