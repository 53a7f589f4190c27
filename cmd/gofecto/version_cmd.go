package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/version"
)

var versionOutput string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Derive and print the version for the current repository position",
	Long: `Version applies the derivation rules to the repository: a v-tag at
HEAD yields that version, the main branch yields the placeholder (or the
environment override), a release/<X> branch yields X, and any other branch
yields a dev version carrying a token from the branch name.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "text", "output format: text, json or table")
}

func runVersion(cmd *cobra.Command, args []string) error {
	a, err := optionalApp()
	if err != nil {
		return err
	}
	st, err := repoState(cmd.Context(), a)
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "reading repository state: %s", err)
	}
	ver, err := version.Derive(schemeFor(a), sourceFromState(st), os.LookupEnv)
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}

	out := cmd.OutOrStdout()
	switch versionOutput {
	case "text":
		fmt.Fprintln(out, ver.Value)
	case "json":
		enc := json.NewEncoder(out)
		return enc.Encode(map[string]any{
			"version": ver.Value,
			"channel": ver.Channel,
			"branch":  st.Branch,
			"sha":     st.SHA,
			"tag":     st.Tag,
			"dirty":   st.Dirty,
		})
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"Version", "Channel", "Branch", "SHA", "Dirty"})
		t.AppendRow(table.Row{ver.Value, ver.Channel, st.Branch, st.SHA, st.Dirty})
		t.SetStyle(table.StyleRounded)
		t.Render()
	default:
		return cli.Errorf(cli.CodeUsage, "unknown output format %q, expected text, json or table", versionOutput)
	}
	return nil
}
