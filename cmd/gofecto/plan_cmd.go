package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/app"
)

var planEventFlags eventFlags

var planCmd = &cobra.Command{
	Use:   "plan [step...]",
	Short: "Preview what a run would do without executing anything",
	Long: `Plan resolves the same facts a run would, prints the trigger
decision and classifies every step: run, skip (its when clause is already
false), or conditional (its when clause reads another step's output and can
only be decided during the run).`,
	RunE: runPlan,
}

func init() {
	planEventFlags.register(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ev, err := planEventFlags.event()
	if err != nil {
		return err
	}
	a, err := buildApp()
	if err != nil {
		return err
	}

	res, err := a.Plan(cmd.Context(), app.RunOptions{Event: ev, Targets: args})
	if err != nil {
		return runFailed(false, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "event: %s %s\n", res.Event.Kind, res.Event.Ref)
	fmt.Fprintf(out, "version: %s (%s)\n", res.Version.Value, res.Version.Channel)
	if res.Triggered {
		fmt.Fprintln(out, "triggered: yes")
	} else {
		fmt.Fprintf(out, "triggered: no (%s)\n", res.Reason)
	}
	printPlan(out, res.Entries)
	return nil
}
