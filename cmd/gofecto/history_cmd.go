package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pipeline runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run in step detail",
	Long:  `Show accepts a full run id or any unambiguous prefix of one.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	historyCmd.AddCommand(historyShowCmd)
}

func openHistory() (*history.Store, error) {
	path := flagHistoryPath
	if path == "" {
		p, err := history.DefaultPath()
		if err != nil {
			return nil, cli.Errorf(cli.CodeFailure, "%s", err)
		}
		path = p
	}
	store, err := history.Open(path)
	if err != nil {
		return nil, cli.Errorf(cli.CodeFailure, "%s", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RecentRuns(cmd.Context(), historyLimit)
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Run", "Project", "Event", "Version", "Status", "Started", "Duration"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			shortID(run.ID),
			run.Project,
			fmt.Sprintf("%s %s", run.EventKind, run.EventRef),
			run.Version,
			run.Status,
			run.Started.Local().Format("2006-01-02 15:04:05"),
			formatDuration(run.Duration()),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Run(cmd.Context(), args[0])
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", run.ID)
	fmt.Fprintf(out, "project: %s\n", run.Project)
	fmt.Fprintf(out, "event: %s %s\n", run.EventKind, run.EventRef)
	fmt.Fprintf(out, "version: %s (%s)\n", run.Version, run.Channel)
	fmt.Fprintf(out, "status: %s, took %s\n", run.Status, formatDuration(run.Duration()))

	if len(run.Steps) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"Step", "Status", "Duration", "Detail"})
		for _, step := range run.Steps {
			detail := step.Reason
			if step.Error != "" {
				detail = step.Error
			}
			t.AppendRow(table.Row{step.NodeID, step.Status, formatDuration(step.Duration), detail})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	}

	if len(run.Artifacts) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"Artifact", "Size", "SHA256"})
		for _, art := range run.Artifacts {
			t.AppendRow(table.Row{art.Path, formatSize(art.Size), shortID(art.SHA256)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	}
	return nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
