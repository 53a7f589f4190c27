package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/publish"
	"github.com/gofecto/gofecto/internal/version"
)

var (
	publishForce  bool
	publishTarget string
	publishGlobs  []string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the collected artifacts to the production target",
	Long: `Publish collects the dist directory and uploads it to the
production publish target from the manifest. Unlike a pipeline publish step,
which is gated on a release tag, a direct publish checks the facts itself:
dev-channel versions and dirty worktrees are refused unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd, false)
	},
}

var publishTestCmd = &cobra.Command{
	Use:   "publish-test",
	Short: "Upload the collected artifacts to the staging target",
	Long: `Publish-test behaves like publish but selects the manifest's
publish target marked staging = true.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd, true)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{publishCmd, publishTestCmd} {
		fl := cmd.Flags()
		fl.BoolVar(&publishForce, "force", false, "skip the dev-version and dirty-worktree safety checks")
		fl.StringVar(&publishTarget, "target", "", "publish target name from the manifest")
		fl.StringSliceVar(&publishGlobs, "glob", []string{"*"}, "artifact globs, relative to the dist dir")
	}
}

func runPublish(cmd *cobra.Command, staging bool) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	ctx := ctxlog.WithLogger(cmd.Context(), a.Logger())

	target, err := publish.SelectTarget(a.Model().Publish, publishTarget, staging)
	if err != nil {
		return cli.Errorf(cli.CodeUsage, "%s", err)
	}

	if !publishForce {
		st, err := a.GitState(ctx)
		if err != nil {
			return cli.Errorf(cli.CodeFailure, "reading repository state: %s (use --force to skip the safety checks)", err)
		}
		ver, err := version.Derive(a.Scheme(), sourceFromState(st), os.LookupEnv)
		if err != nil {
			return cli.Errorf(cli.CodeFailure, "%s", err)
		}
		if err := publish.Guard(ver, st.Dirty); err != nil {
			return cli.Errorf(cli.CodeFailure, "%s", err)
		}
	}

	store, err := artifact.NewStore(distDirFor(a))
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	files, err := store.Collect(ctx, publishGlobs)
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	if len(files) == 0 {
		return cli.Errorf(cli.CodeFailure, "no artifacts in %s match %v (build first?)", store.Root(), publishGlobs)
	}

	pub, err := publish.New(ctx, target, publish.Options{})
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	if err := pub.Publish(ctx, store.Root(), files); err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	printArtifacts(cmd.OutOrStdout(), pub.Name(), files)
	return nil
}
