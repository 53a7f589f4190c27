package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/dag"
	"github.com/gofecto/gofecto/internal/version"
)

// printSummary renders the per-node outcome of an executed run.
func printSummary(w io.Writer, ver version.Version, sum *dag.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Step", "Status", "Duration", "Detail"})
	for _, r := range sum.Results {
		detail := r.Reason
		if r.Err != nil {
			detail = r.Err.Error()
		}
		t.AppendRow(table.Row{r.ID, r.Status.String(), formatDuration(r.Duration), detail})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("version %s", ver.Value),
		fmt.Sprintf("%d ok, %d failed, %d skipped", sum.Succeeded, sum.Failed, sum.Skipped),
		formatDuration(sum.Duration()),
		"",
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// printPlan renders the classified nodes of a previewed run.
func printPlan(w io.Writer, entries []dag.PlanEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Step", "Action", "Reason"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.ID, e.Action, e.Reason})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// printArtifacts renders what a direct publish uploaded.
func printArtifacts(w io.Writer, target string, files []artifact.File) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Artifact", "Size", "SHA256"})
	for _, f := range files {
		t.AppendRow(table.Row{f.Path, formatSize(f.Size), shortID(f.SHA256)})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d files to %s", len(files), target), "", ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
