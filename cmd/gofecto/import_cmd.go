package main

import (
	"fmt"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/hcl_adapter"
	"github.com/gofecto/gofecto/internal/trigger"
)

var importOutput string

var importCmd = &cobra.Command{
	Use:   "import <workflow.yml>",
	Short: "Translate a GitHub Actions workflow into a starter manifest",
	Long: `Import reads a workflow file and renders a starter gofecto
manifest: the on block mirrors the workflow's push and pull_request filters,
and every run step becomes an exec step chained to match the job graph.

Steps that call prepackaged actions and job-level if conditions have no
mechanical translation; they are carried into the output as comments for
manual porting.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importOutput, "output", "o", "", "write the manifest here instead of stdout")
}

func runImport(cmd *cobra.Command, args []string) error {
	wf, err := trigger.LoadWorkflow(args[0])
	if err != nil {
		return cli.Errorf(cli.CodeUsage, "%s", err)
	}

	data := hcl_adapter.GenerateStarter(wf, projectNameFor(nil))
	if importOutput == "" || importOutput == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := renameio.WriteFile(importOutput, data, 0o644); err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", importOutput)
	return nil
}
