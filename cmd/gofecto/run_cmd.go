package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/app"
	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/trigger"
)

// eventFlags describe the source-control event a run answers to. All empty
// means the event is synthesized from the repository position, the way a CI
// checkout would see it.
type eventFlags struct {
	kind string
	ref  string
	base string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.kind, "event", "", "event kind: push or pull_request")
	fl.StringVar(&f.ref, "ref", "", "ref the event points at; bare names mean branches")
	fl.StringVar(&f.base, "base", "", "pull request target branch")
}

func (f *eventFlags) event() (trigger.Event, error) {
	if f.kind == "" && f.ref == "" && f.base == "" {
		return trigger.Event{}, nil
	}
	if f.ref == "" {
		return trigger.Event{}, cli.Errorf(cli.CodeUsage, "--ref is required when --event or --base is set")
	}

	kind := trigger.Kind(f.kind)
	switch f.kind {
	case "":
		kind = trigger.KindPush
		if f.base != "" {
			kind = trigger.KindPullRequest
		}
	case string(trigger.KindPush), string(trigger.KindPullRequest):
	default:
		return trigger.Event{}, cli.Errorf(cli.CodeUsage, "unknown event kind %q, expected push or pull_request", f.kind)
	}
	return trigger.Event{Kind: kind, Ref: qualifyRef(f.ref), Base: f.base}, nil
}

// qualifyRef turns a bare branch name into the fully qualified form CI
// systems deliver. Already qualified refs pass through.
func qualifyRef(ref string) string {
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	return "refs/heads/" + ref
}

var (
	runEventFlags eventFlags
	runNoHistory  bool
)

var runCmd = &cobra.Command{
	Use:   "run [step...]",
	Short: "Execute the delivery pipeline for an event",
	Long: `Run resolves the event and version from the repository (or from
--ref/--event/--base), evaluates the pipeline's trigger rules, executes the
step graph and records the outcome in the run ledger.

An event the rules do not match is a clean no-op, not a failure. Naming steps
restricts the run to those steps and their dependencies.`,
	RunE: runPipeline,
}

func init() {
	runEventFlags.register(runCmd)
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not record this run in the ledger")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ev, err := runEventFlags.event()
	if err != nil {
		return err
	}
	a, err := buildApp()
	if err != nil {
		return err
	}

	res, runErr := a.Run(cmd.Context(), app.RunOptions{
		Event:            ev,
		Targets:          args,
		EvaluateTriggers: true,
		RecordHistory:    !runNoHistory,
	})
	if res != nil && res.Summary != nil {
		printSummary(cmd.OutOrStdout(), res.Version, res.Summary)
	}
	if runErr != nil {
		return runFailed(res != nil, runErr)
	}
	if !res.Triggered {
		fmt.Fprintf(cmd.OutOrStdout(), "pipeline not triggered: %s\n", res.Reason)
	}
	return nil
}
