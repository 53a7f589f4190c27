package app

import (
	"context"
	"fmt"

	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/dag"
	"github.com/gofecto/gofecto/internal/history"
	"github.com/gofecto/gofecto/internal/trigger"
	"github.com/gofecto/gofecto/internal/version"
)

// RunOptions select what one run executes and under which facts.
type RunOptions struct {
	// Event is the event the run answers to. The zero event means
	// synthesize one from the repository position.
	Event trigger.Event
	// Version overrides derivation when Value is set.
	Version version.Version
	// Targets name steps to run. Empty means the whole pipeline; a named
	// target runs together with its transitive dependencies only.
	Targets []string
	// EvaluateTriggers gates the run on the pipeline's trigger rules.
	// Target runs from the sugar commands leave this off.
	EvaluateTriggers bool
	// RecordHistory writes the run into the ledger.
	RecordHistory bool
}

// RunResult reports what one run did.
type RunResult struct {
	// Triggered is false when trigger evaluation vetoed the run. Runs that
	// skip evaluation report true.
	Triggered bool
	Reason    string
	Event     trigger.Event
	Version   version.Version
	// Summary is nil when nothing executed.
	Summary *dag.Summary
	// RunID is the ledger id, empty when no record was written.
	RunID string
}

// Run drives one pipeline execution: resolve the event and version, evaluate
// the trigger rules, build the graph, execute it and record the outcome. A
// vetoed trigger is a nil-error result with Triggered false; an execution
// failure returns both the summary and the root-cause error.
func (a *App) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	ev, ver, err := a.resolveFacts(ctx, opts.Event, opts.Version)
	if err != nil {
		return nil, err
	}
	result := &RunResult{Triggered: true, Event: ev, Version: ver}
	a.logger.Info("run facts resolved",
		"event", string(ev.Kind), "ref", ev.Ref,
		"version", ver.Value, "channel", string(ver.Channel))

	if opts.EvaluateTriggers {
		decision := a.Rules().Evaluate(ev)
		result.Triggered = decision.Matched
		result.Reason = decision.Reason
		if !decision.Matched {
			a.logger.Info("pipeline not triggered", "reason", decision.Reason)
			return result, nil
		}
		a.logger.Debug("pipeline triggered", "reason", decision.Reason)
	}

	graph, err := a.buildGraph(ctx, opts.Targets)
	if err != nil {
		return nil, err
	}
	if len(graph.Nodes) == 0 {
		a.logger.Warn("pipeline has no steps, nothing to execute")
		return result, nil
	}

	info := dag.RunInfo{Event: ev, Version: ver}
	exec := dag.NewExecutor(graph, a.registry, a.converter, info, a.cfg.WorkerCount)
	summary, runErr := exec.Run(ctx)
	result.Summary = summary

	if opts.RecordHistory && summary != nil {
		result.RunID = a.recordRun(ctx, ev, ver, summary)
	}
	if runErr != nil {
		return result, runErr
	}

	a.logger.Info("run finished",
		"succeeded", summary.Succeeded, "failed", summary.Failed,
		"skipped", summary.Skipped, "duration", summary.Duration())
	return result, nil
}

// PlanResult previews a run without executing it.
type PlanResult struct {
	Triggered bool
	Reason    string
	Event     trigger.Event
	Version   version.Version
	Entries   []dag.PlanEntry
}

// Plan resolves the same facts a run would, reports the trigger decision and
// classifies every node. The preview is produced even for a vetoed trigger,
// so `plan` can explain why nothing would happen.
func (a *App) Plan(ctx context.Context, opts RunOptions) (*PlanResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	ev, ver, err := a.resolveFacts(ctx, opts.Event, opts.Version)
	if err != nil {
		return nil, err
	}
	decision := a.Rules().Evaluate(ev)

	graph, err := a.buildGraph(ctx, opts.Targets)
	if err != nil {
		return nil, err
	}

	return &PlanResult{
		Triggered: decision.Matched,
		Reason:    decision.Reason,
		Event:     ev,
		Version:   ver,
		Entries:   dag.Plan(graph, dag.RunInfo{Event: ev, Version: ver}),
	}, nil
}

func (a *App) buildGraph(ctx context.Context, targets []string) (*dag.Graph, error) {
	graph, err := dag.Build(ctx, a.model, a.registry)
	if err != nil {
		return nil, fmt.Errorf("building pipeline graph: %w", err)
	}
	if len(targets) > 0 {
		return graph.Subgraph(targets)
	}
	return graph, nil
}

// recordRun writes the ledger entry. The ledger is best effort: a run that
// executed is never failed retroactively because the record could not be
// written.
func (a *App) recordRun(ctx context.Context, ev trigger.Event, ver version.Version, sum *dag.Summary) string {
	path := a.cfg.HistoryPath
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			a.logger.Warn("run ledger unavailable", "error", err)
			return ""
		}
	}

	store, err := history.Open(path)
	if err != nil {
		a.logger.Warn("run ledger unavailable", "error", err)
		return ""
	}
	defer store.Close()

	run := history.FromSummary(a.ProjectName(), ev, ver, sum, nil)
	if ctx.Err() != nil {
		run.Status = history.StatusCanceled
	}
	// Recording must survive the run's own cancellation.
	if err := store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		a.logger.Warn("recording run failed", "error", err)
		return ""
	}
	a.logger.Debug("run recorded", "id", run.ID, "status", run.Status)
	return run.ID
}
