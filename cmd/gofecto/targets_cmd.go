package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/app"
	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/watch"
)

var (
	testWatch      bool
	testCover      bool
	watchDirs      []string
	flagHealthPort = -1
)

// targetCommands builds the sugar commands that run one manifest step with
// its dependencies, without trigger evaluation or a ledger entry. The step
// must exist in the pipeline under the same name.
func targetCommands() []*cobra.Command {
	targets := []struct {
		name  string
		short string
	}{
		{"install", "Run the pipeline's install step"},
		{"test", "Run the pipeline's test step"},
		{"test-cov", "Run the pipeline's test-cov step"},
		{"lint", "Run the pipeline's lint step"},
		{"format", "Run the pipeline's format step"},
		{"build", "Run the pipeline's build step"},
	}

	cmds := make([]*cobra.Command, 0, len(targets))
	for _, target := range targets {
		cmd := &cobra.Command{
			Use:   target.name,
			Short: target.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTarget(cmd, cmd.Name())
			},
		}
		if target.name == "test" {
			fl := cmd.Flags()
			fl.BoolVar(&testWatch, "watch", false, "re-run the step when source files change")
			fl.BoolVar(&testCover, "cover", false, "run the test-cov step instead")
			fl.StringSliceVar(&watchDirs, "watch-dir", []string{"."}, "directory trees to watch")
			fl.IntVar(&flagHealthPort, "healthcheck-port", -1, "serve /healthz on this port while watching, 0 picks a free port")
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func runTarget(cmd *cobra.Command, target string) error {
	if target == "test" && testCover {
		target = "test-cov"
	}
	a, err := buildApp()
	if err != nil {
		return err
	}
	if target == "test" && testWatch {
		return watchTarget(cmd, a, target)
	}

	res, runErr := a.Run(cmd.Context(), app.RunOptions{Targets: []string{target}})
	if res != nil && res.Summary != nil {
		printSummary(cmd.OutOrStdout(), res.Version, res.Summary)
	}
	if runErr != nil {
		return runFailed(res != nil, runErr)
	}
	return nil
}

// watchTarget re-runs the target on every debounced source change until the
// context is canceled. Run failures are logged, not fatal: the point of a
// watch session is to keep going.
func watchTarget(cmd *cobra.Command, a *app.App, target string) error {
	ctx := ctxlog.WithLogger(cmd.Context(), a.Logger())

	if flagHealthPort >= 0 {
		if err := a.StartHealthcheck(); err != nil {
			return cli.Errorf(cli.CodeFailure, "%s", err)
		}
		defer func() { _ = a.StopHealthcheck() }()
	}

	runOnce := func(ctx context.Context) {
		res, err := a.Run(ctx, app.RunOptions{Targets: []string{target}})
		if res != nil && res.Summary != nil {
			printSummary(cmd.OutOrStdout(), res.Version, res.Summary)
		}
		if err != nil {
			a.Logger().Error("watched run failed", "target", target, "error", err)
		}
	}

	runOnce(ctx)

	w, err := watch.New(watch.Config{Roots: watchDirs})
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	a.Logger().Info("watching for changes", "target", target, "roots", watchDirs)
	if err := w.Run(ctx, runOnce); err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	return nil
}
