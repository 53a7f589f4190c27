package dag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/hcl_adapter"
	"github.com/gofecto/gofecto/internal/registry"
)

// defaultWorkers is the worker pool size when the caller does not choose one.
const defaultWorkers = 4

// Executor runs a graph with a bounded worker pool. Nodes become ready when
// their last dependency completes; a failing node cancels the run and skips
// its downstream cone.
type Executor struct {
	Graph *Graph

	wg        sync.WaitGroup
	destroyWg sync.WaitGroup

	// resourceInstances maps a resource node ID to its live instance.
	resourceInstances sync.Map
	// cleanupStack holds destroy closures for resources still alive at the
	// end of the run, executed in LIFO order.
	cleanupStack []func()
	cleanupMutex sync.Mutex

	registry   *registry.Registry
	converter  config.Converter
	numWorkers int

	baseVars map[string]cty.Value
	funcs    map[string]function.Function
}

// NewExecutor prepares an executor for one run of the graph.
func NewExecutor(graph *Graph, reg *registry.Registry, conv config.Converter, info RunInfo, numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	return &Executor{
		Graph:      graph,
		registry:   reg,
		converter:  conv,
		numWorkers: numWorkers,
		baseVars:   baseVariables(info),
		funcs:      hcl_adapter.EvalFunctions(),
	}
}

// Run executes the graph and reports per-node outcomes. The returned error is
// the root cause of the first real failure; a run where every executed node
// succeeded returns a nil error even when some nodes were skipped.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	readyChan := make(chan *Node, len(e.Graph.Nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootNodes := 0
	for _, node := range e.Graph.Nodes {
		if node.depCount.Load() == 0 {
			readyChan <- node
			rootNodes++
		}
	}
	logger.Debug("starting execution", "nodes", len(e.Graph.Nodes), "roots", rootNodes, "workers", e.numWorkers)

	e.wg.Add(len(e.Graph.Nodes))
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
	e.destroyWg.Wait()
	e.executeCleanupStack(ctx)

	summary := newSummary(e.Graph, started, time.Now())

	var failedIDs []string
	var rootCause error
	for _, id := range e.Graph.SortedIDs() {
		node := e.Graph.Nodes[id]
		if node.GetState() != Failed {
			continue
		}
		logger.Error("node failed", "node", node.ID, "error", node.Error)
		failedIDs = append(failedIDs, node.ID)
		if rootCause == nil {
			rootCause = node.Error
		}
	}
	if rootCause != nil {
		return summary, fmt.Errorf("execution failed for %s: %w", strings.Join(failedIDs, ", "), rootCause)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// worker is the processing loop of one pool member.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx).With("worker", workerID)

	for n := range readyChan {
		if err := ctx.Err(); err != nil {
			if n.Skip(fmt.Sprintf("run canceled: %v", err), &e.wg) {
				logger.Warn("skipping node, run canceled", "node", n.ID)
				e.skipDependents(ctx, n)
			}
			continue
		}
		if !n.claim() {
			continue
		}

		n.Started = time.Now()
		var err error
		var skipReason string
		switch n.Type {
		case ResourceNode:
			err = e.runResourceNode(ctx, n)
		case StepNode:
			skipReason, err = e.runStepNode(ctx, n)
		}
		n.Finished = time.Now()

		if err != nil {
			logger.Error("node execution failed", "node", n.ID, "error", err)
			n.Error = err
			n.SetState(Failed)
			cancel()
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		if skipReason != "" {
			n.SkipReason = skipReason
			n.SetState(Skipped)
			logger.Info("⏭️ Skipping step", "node", n.ID, "reason", skipReason)
		} else {
			n.SetState(Done)
		}

		for _, dependent := range n.Dependents {
			if dependent.depCount.Add(-1) == 0 {
				readyChan <- dependent
			}
		}

		// A resource is destroyed as soon as its last consuming step finishes.
		if n.Type == StepNode {
			for _, dep := range n.Deps {
				if dep.Type == ResourceNode && dep.descendantCount.Add(-1) == 0 {
					e.destroyWg.Add(1)
					go func(res *Node) {
						defer e.destroyWg.Done()
						e.destroyResource(ctx, res)
					}(dep)
				}
			}
		}

		e.wg.Done()
	}
}

// skipDependents marks the downstream cone of a finished-without-output node
// as skipped. Recursion stops at nodes already claimed or already skipped.
func (e *Executor) skipDependents(ctx context.Context, node *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		if dependent.Skip(fmt.Sprintf("upstream node '%s' did not complete", node.ID), &e.wg) {
			logger.Warn("skipping dependent node", "node", dependent.ID, "upstream", node.ID)
			e.skipDependents(ctx, dependent)
		}
	}
}
