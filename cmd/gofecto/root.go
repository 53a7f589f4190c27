package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/app"
	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/gitx"
	"github.com/gofecto/gofecto/internal/hcl_adapter"
	"github.com/gofecto/gofecto/internal/version"
)

var (
	flagConfig      string
	flagRepoDir     string
	flagLogLevel    string
	flagLogFormat   string
	flagWorkers     int
	flagHistoryPath string
)

var rootCmd = &cobra.Command{
	Use:   "gofecto",
	Short: "gofecto drives a project's delivery pipeline from one HCL manifest",
	Long: `gofecto evaluates the same contracts a CI system would, locally and
reproducibly: trigger rules decide whether an event runs the pipeline, the
version is derived from the repository position, steps execute as a DAG with
failure propagation, and publishing is gated on release tags.

The pipeline is declared in an HCL manifest (gofecto.hcl by default). Sugar
commands like install, test and build run the step of the same name together
with its dependencies, skipping trigger evaluation.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "gofecto.hcl", "pipeline manifest file or directory")
	pf.StringVar(&flagRepoDir, "repo", ".", "repository the run describes")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", "text", "log format: text or json")
	pf.IntVar(&flagWorkers, "workers", 0, "executor worker count, 0 means the default")
	pf.StringVar(&flagHistoryPath, "history-path", "", "run ledger location (default ~/.gofecto/history.db)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return cli.Errorf(cli.CodeUsage, "%s", err)
	})

	rootCmd.AddCommand(
		runCmd,
		planCmd,
		versionCmd,
		tagReleaseCmd,
		cleanCmd,
		publishCmd,
		publishTestCmd,
		historyCmd,
		importCmd,
	)
	rootCmd.AddCommand(targetCommands()...)
}

func appConfig() app.Config {
	return app.Config{
		Paths:           []string{flagConfig},
		RepoDir:         flagRepoDir,
		LogFormat:       flagLogFormat,
		LogLevel:        flagLogLevel,
		WorkerCount:     flagWorkers,
		HealthcheckPort: flagHealthPort,
		HistoryPath:     flagHistoryPath,
	}
}

// buildApp boots the engine from the configured manifest. Logs go to stderr
// so stdout stays clean for command output.
func buildApp() (*app.App, error) {
	cfg, err := app.NewConfig(appConfig())
	if err != nil {
		return nil, cli.Errorf(cli.CodeUsage, "%s", err)
	}
	a, err := app.New(os.Stderr, cfg, hcl_adapter.NewLoader())
	if err != nil {
		return nil, cli.Errorf(cli.CodeUsage, "%s", err)
	}
	return a, nil
}

// optionalApp boots the engine when the manifest exists. Commands that only
// read repository facts (version, tag-release, clean) work without one and
// fall back to the stock scheme and layout.
func optionalApp() (*app.App, error) {
	if _, err := os.Stat(flagConfig); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return buildApp()
}

func schemeFor(a *app.App) version.Scheme {
	if a != nil {
		return a.Scheme()
	}
	return version.Scheme{}
}

func projectNameFor(a *app.App) string {
	if a != nil && a.ProjectName() != "" {
		return a.ProjectName()
	}
	abs, err := filepath.Abs(flagRepoDir)
	if err != nil {
		return "project"
	}
	return filepath.Base(abs)
}

func distDirFor(a *app.App) string {
	dist := "dist"
	if a != nil {
		dist = a.DistDir()
	}
	if filepath.IsAbs(dist) {
		return dist
	}
	return filepath.Join(flagRepoDir, dist)
}

func repoState(ctx context.Context, a *app.App) (gitx.State, error) {
	if a != nil {
		return a.GitState(ctx)
	}
	return gitx.Open(flagRepoDir).Snapshot(ctx)
}

func sourceFromState(st gitx.State) version.Source {
	return version.Source{Branch: st.Branch, Tag: st.Tag, SHA: st.SHA, Dirty: st.Dirty}
}

// runFailed maps an engine error to the exit convention: a run that never
// started (bad facts, broken graph, unknown target) is command misuse, a run
// that executed and failed is a pipeline failure.
func runFailed(started bool, err error) error {
	if started {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	return cli.Errorf(cli.CodeUsage, "%s", err)
}
