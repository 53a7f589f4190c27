package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/gitx"
	"github.com/gofecto/gofecto/internal/version"
)

var (
	tagVersion string
	tagRemote  string
	tagNoPush  bool
)

var tagReleaseCmd = &cobra.Command{
	Use:   "tag-release",
	Short: "Create and push the annotated release tag for the derived version",
	Long: `Tag-release derives the version from the repository position,
creates the annotated tag v<version> and pushes it, which is the event that
triggers a publishing pipeline run.

A dirty worktree or a branch that does not derive a release version is
refused. Passing --version overrides derivation and lifts both refusals.`,
	Args: cobra.NoArgs,
	RunE: runTagRelease,
}

func init() {
	fl := tagReleaseCmd.Flags()
	fl.StringVar(&tagVersion, "version", "", "tag this release version instead of deriving one")
	fl.StringVar(&tagRemote, "remote", "origin", "remote to push the tag to")
	fl.BoolVar(&tagNoPush, "no-push", false, "create the tag without pushing it")
}

func runTagRelease(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := optionalApp()
	if err != nil {
		return err
	}
	st, err := repoState(ctx, a)
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "reading repository state: %s", err)
	}

	value := tagVersion
	if value == "" {
		if st.Dirty {
			return cli.Errorf(cli.CodeFailure, "refusing to tag a dirty worktree (commit first, or pass --version)")
		}
		ver, err := version.Derive(schemeFor(a), sourceFromState(st), os.LookupEnv)
		if err != nil {
			return cli.Errorf(cli.CodeFailure, "%s", err)
		}
		if ver.Channel != version.ChannelRelease {
			return cli.Errorf(cli.CodeFailure,
				"branch %q derives %s, not a release version (tag from a release branch, or pass --version)",
				st.Branch, ver.Value)
		}
		value = ver.Value
	}
	if !version.ValidRelease(value) {
		return cli.Errorf(cli.CodeUsage, "%q is not a release version", value)
	}

	tag := "v" + value
	repo := gitx.Open(flagRepoDir)
	if err := repo.CreateAnnotatedTag(ctx, tag, "Release "+value); err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "created tag %s\n", tag)

	if tagNoPush {
		return nil
	}
	if err := repo.PushTag(ctx, tagRemote, tag); err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	fmt.Fprintf(out, "pushed %s to %s\n", tag, tagRemote)
	return nil
}
