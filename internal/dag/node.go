package dag

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofecto/gofecto/internal/config"
)

// NodeType distinguishes between different kinds of nodes in the graph.
type NodeType int

const (
	// StepNode represents a node that executes a task.
	StepNode NodeType = iota
	// ResourceNode represents a node that manages a stateful resource.
	ResourceNode
)

func (t NodeType) String() string {
	switch t {
	case StepNode:
		return "step"
	case ResourceNode:
		return "resource"
	default:
		return "unknown"
	}
}

// State represents the execution state of a node in the graph.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies to complete.
	Pending State = iota
	// Running indicates the node is currently being executed by a worker.
	Running
	// Done indicates the node has completed execution successfully.
	Done
	// Failed indicates the node's own execution failed.
	Failed
	// Skipped indicates the node did not run: its condition was false, an
	// upstream node failed, or the run was canceled. Skipped is not a failure.
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Node is a single vertex in the execution graph, representing one unit of
// work (a step instance) or a stateful entity (a resource).
type Node struct {
	// ID is the unique identifier, e.g. "step.exec.build" or
	// "step.exec.build[2]" or "resource.http_client.shared".
	ID string
	// Name is the human-readable instance name from the configuration.
	Name string
	// Type distinguishes between step and resource nodes.
	Type NodeType
	// Index is the instance index for instanced steps, or -1 for singular
	// steps and resources.
	Index int

	// StepConfig holds the configuration for a step node. It is nil for resources.
	StepConfig *config.Step
	// ResourceConfig holds the configuration for a resource node. It is nil for steps.
	ResourceConfig *config.Resource

	// Error stores the error that failed this node. It is nil for skipped
	// nodes; their SkipReason says why they did not run.
	Error error
	// SkipReason is set when the node is skipped.
	SkipReason string
	// Output stores the result of the node's execution for downstream use.
	Output any

	// Started and Finished bound the node's execution window.
	Started  time.Time
	Finished time.Time

	// Deps holds the set of nodes that this node depends on (predecessors).
	Deps map[string]*Node
	// Dependents holds the set of nodes that depend on this node (successors).
	Dependents map[string]*Node

	// depCount is an atomic counter for unmet dependencies, used by the scheduler.
	depCount atomic.Int32
	// descendantCount counts a resource's direct step dependents, used for
	// destroying the resource as soon as its last consumer finishes.
	descendantCount atomic.Int32
	// state is the node's current execution state, managed atomically.
	state atomic.Int32
	// destroyOnce ensures a resource's destruction logic runs exactly once.
	destroyOnce sync.Once
	// skipOnce ensures a node is marked as skipped exactly once.
	skipOnce sync.Once
}

func newStepNode(id string, cfg *config.Step, index int) *Node {
	return &Node{
		ID:         id,
		Name:       cfg.Name,
		Type:       StepNode,
		Index:      index,
		StepConfig: cfg,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
}

func newResourceNode(id string, cfg *config.Resource) *Node {
	return &Node{
		ID:             id,
		Name:           cfg.Name,
		Type:           ResourceNode,
		Index:          -1,
		ResourceConfig: cfg,
		Deps:           make(map[string]*Node),
		Dependents:     make(map[string]*Node),
	}
}

// GetState atomically retrieves the node's execution state.
func (n *Node) GetState() State {
	return State(n.state.Load())
}

// SetState atomically sets the node's execution state.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// claim transitions the node from Pending to Running. It returns false if the
// node is no longer pending, meaning a worker must not execute it.
func (n *Node) claim() bool {
	return n.state.CompareAndSwap(int32(Pending), int32(Running))
}

// SetInitialCounters seeds the scheduling counters from the linked graph.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
	if n.Type == ResourceNode {
		var steps int32
		for _, d := range n.Dependents {
			if d.Type == StepNode {
				steps++
			}
		}
		n.descendantCount.Store(steps)
	}
}

// Skip marks a pending node as skipped and releases its WaitGroup slot. It
// returns true only on the first successful skip, so callers can propagate
// the skip downstream exactly once. Nodes already claimed by a worker are
// left alone; their worker owns the accounting.
func (n *Node) Skip(reason string, wg *sync.WaitGroup) bool {
	var skipped bool
	n.skipOnce.Do(func() {
		if n.state.CompareAndSwap(int32(Pending), int32(Skipped)) {
			n.SkipReason = reason
			wg.Done()
			skipped = true
		}
	})
	return skipped
}

// Destroy executes the given cleanup function exactly once, making it safe to
// call from both the eager path and the final cleanup stack.
func (n *Node) Destroy(f func()) {
	n.destroyOnce.Do(f)
}

// Duration reports how long the node ran, zero if it never started.
func (n *Node) Duration() time.Duration {
	if n.Started.IsZero() || n.Finished.IsZero() {
		return 0
	}
	return n.Finished.Sub(n.Started)
}
