package history

import (
	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/dag"
	"github.com/gofecto/gofecto/internal/trigger"
	"github.com/gofecto/gofecto/internal/version"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// FromSummary turns an execution summary into a ledger record. Callers that
// observed a cancellation overwrite Status with StatusCanceled.
func FromSummary(project string, ev trigger.Event, ver version.Version, sum *dag.Summary, arts []artifact.File) *Run {
	run := &Run{
		Project:   project,
		EventKind: string(ev.Kind),
		EventRef:  ev.Ref,
		Version:   ver.Value,
		Channel:   string(ver.Channel),
		Status:    StatusSucceeded,
		Started:   sum.Started,
		Finished:  sum.Finished,
	}
	if !sum.OK() {
		run.Status = StatusFailed
	}

	for _, res := range sum.Results {
		step := StepRecord{
			NodeID:   res.ID,
			Status:   res.Status.String(),
			Reason:   res.Reason,
			Started:  res.Started,
			Duration: res.Duration,
		}
		if res.Err != nil {
			step.Error = res.Err.Error()
		}
		run.Steps = append(run.Steps, step)
	}

	for _, f := range arts {
		run.Artifacts = append(run.Artifacts, ArtifactRecord{
			Path:   f.Path,
			SHA256: f.SHA256,
			Size:   f.Size,
		})
	}
	return run
}
