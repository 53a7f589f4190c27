package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gofecto/gofecto/internal/cache"
	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/fsutil"
)

var cleanKeepCache bool

// scratchPatterns are the tool droppings clean removes alongside the dist
// dir, matched at the repository root.
var scratchPatterns = []string{
	"build",
	"*.egg-info",
	"__pycache__",
	".pytest_cache",
	".coverage",
	"htmlcov",
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove build artifacts and the project's step cache",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanKeepCache, "keep-cache", false, "leave the step cache in place")
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := optionalApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	dist := distDirFor(a)
	if _, err := os.Stat(dist); err == nil {
		if err := os.RemoveAll(dist); err != nil {
			return cli.Errorf(cli.CodeFailure, "%s", err)
		}
		fmt.Fprintf(out, "removed %s\n", relToRepo(dist))
	}

	removed, err := fsutil.RemoveMatching(flagRepoDir, scratchPatterns...)
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	for _, path := range removed {
		fmt.Fprintf(out, "removed %s\n", filepath.Base(path))
	}

	if cleanKeepCache {
		return nil
	}
	root, err := cache.DefaultRoot()
	if err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	project := projectNameFor(a)
	if err := cache.Clean(root, project); err != nil {
		return cli.Errorf(cli.CodeFailure, "%s", err)
	}
	fmt.Fprintf(out, "removed step cache for %s\n", project)
	return nil
}

func relToRepo(path string) string {
	rel, err := filepath.Rel(flagRepoDir, path)
	if err != nil {
		return path
	}
	return rel
}
