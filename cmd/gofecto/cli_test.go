package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofecto/gofecto/internal/cli"
	"github.com/gofecto/gofecto/internal/trigger"
)

// setGlobal swaps a package-level flag variable for one test.
func setGlobal[T any](t *testing.T, target *T, value T) {
	t.Helper()
	old := *target
	*target = value
	t.Cleanup(func() { *target = old })
}

// testCmd builds a detached command with captured output.
func testCmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd, out
}

func TestEventFlags(t *testing.T) {
	t.Run("all empty means derive from the repository", func(t *testing.T) {
		f := eventFlags{}
		ev, err := f.event()
		require.NoError(t, err)
		assert.Equal(t, trigger.Event{}, ev)
	})

	t.Run("bare ref is a branch push", func(t *testing.T) {
		f := eventFlags{ref: "main"}
		ev, err := f.event()
		require.NoError(t, err)
		assert.Equal(t, trigger.Event{Kind: trigger.KindPush, Ref: "refs/heads/main"}, ev)
	})

	t.Run("qualified tag ref passes through", func(t *testing.T) {
		f := eventFlags{ref: "refs/tags/v1.2.0"}
		ev, err := f.event()
		require.NoError(t, err)
		assert.Equal(t, "refs/tags/v1.2.0", ev.Ref)
		assert.Equal(t, trigger.KindPush, ev.Kind)
	})

	t.Run("base implies a pull request", func(t *testing.T) {
		f := eventFlags{ref: "feature/login", base: "main"}
		ev, err := f.event()
		require.NoError(t, err)
		assert.Equal(t, trigger.KindPullRequest, ev.Kind)
		assert.Equal(t, "refs/heads/feature/login", ev.Ref)
		assert.Equal(t, "main", ev.Base)
	})

	t.Run("explicit kind wins over base", func(t *testing.T) {
		f := eventFlags{kind: "push", ref: "main", base: "main"}
		ev, err := f.event()
		require.NoError(t, err)
		assert.Equal(t, trigger.KindPush, ev.Kind)
	})

	t.Run("event without ref is refused", func(t *testing.T) {
		f := eventFlags{kind: "push"}
		_, err := f.event()
		require.Error(t, err)
		assert.Equal(t, cli.CodeUsage, cli.Code(err))
		assert.Contains(t, err.Error(), "--ref is required")
	})

	t.Run("unknown kind is refused", func(t *testing.T) {
		f := eventFlags{kind: "release", ref: "main"}
		_, err := f.event()
		require.Error(t, err)
		assert.Equal(t, cli.CodeUsage, cli.Code(err))
	})
}

func TestTargetCommands(t *testing.T) {
	cmds := targetCommands()
	names := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		names = append(names, cmd.Name())
	}
	assert.Equal(t, []string{"install", "test", "test-cov", "lint", "format", "build"}, names)

	var test *cobra.Command
	for _, cmd := range cmds {
		if cmd.Name() == "test" {
			test = cmd
		}
	}
	require.NotNil(t, test)
	assert.NotNil(t, test.Flags().Lookup("watch"))
	assert.NotNil(t, test.Flags().Lookup("cover"))
	assert.Nil(t, cmds[0].Flags().Lookup("watch"), "only test watches")
}

func TestImportCmd(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "demoproj")
	require.NoError(t, os.MkdirAll(repo, 0o755))

	workflow := filepath.Join(dir, "ci.yml")
	require.NoError(t, os.WriteFile(workflow, []byte(importFixture), 0o644))

	setGlobal(t, &flagRepoDir, repo)

	t.Run("writes the manifest to a file", func(t *testing.T) {
		outPath := filepath.Join(dir, "gofecto.hcl")
		setGlobal(t, &importOutput, outPath)

		cmd, out := testCmd(t)
		require.NoError(t, runImport(cmd, []string{workflow}))
		assert.Contains(t, out.String(), outPath)

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		text := string(data)
		assert.Contains(t, text, `name = "demoproj"`)
		assert.Contains(t, text, `step "exec"`)
		assert.Contains(t, text, `branches = ["main"]`)
	})

	t.Run("defaults to stdout", func(t *testing.T) {
		setGlobal(t, &importOutput, "")

		cmd, out := testCmd(t)
		require.NoError(t, runImport(cmd, []string{workflow}))
		assert.Contains(t, out.String(), "pytest")
	})

	t.Run("missing workflow is a usage error", func(t *testing.T) {
		cmd, _ := testCmd(t)
		err := runImport(cmd, []string{filepath.Join(dir, "nope.yml")})
		require.Error(t, err)
		assert.Equal(t, cli.CodeUsage, cli.Code(err))
	})
}

const importFixture = `
name: CI
on:
  push:
    branches: [main]
jobs:
  test:
    steps:
      - name: Run tests
        run: pytest
`

func TestHistoryCmd(t *testing.T) {
	setGlobal(t, &flagHistoryPath, filepath.Join(t.TempDir(), "history.db"))

	t.Run("empty ledger lists nothing", func(t *testing.T) {
		cmd, out := testCmd(t)
		require.NoError(t, runHistoryList(cmd, nil))
		assert.Contains(t, out.String(), "no runs recorded")
	})

	t.Run("unknown run id fails", func(t *testing.T) {
		cmd, _ := testCmd(t)
		err := runHistoryShow(cmd, []string{"deadbeef"})
		require.Error(t, err)
		assert.Equal(t, cli.CodeFailure, cli.Code(err))
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestCleanCmd(t *testing.T) {
	repo := t.TempDir()
	for _, dir := range []string{"dist", "build", "__pycache__", "src"} {
		require.NoError(t, os.MkdirAll(filepath.Join(repo, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(repo, "dist", "pkg.tar.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "src", "keep.go"), []byte("x"), 0o644))

	setGlobal(t, &flagRepoDir, repo)
	setGlobal(t, &flagConfig, filepath.Join(repo, "gofecto.hcl"))
	setGlobal(t, &cleanKeepCache, true)

	cmd, out := testCmd(t)
	require.NoError(t, runClean(cmd, nil))

	for _, gone := range []string{"dist", "build", "__pycache__"} {
		assert.NoDirExists(t, filepath.Join(repo, gone))
		assert.Contains(t, out.String(), gone)
	}
	assert.FileExists(t, filepath.Join(repo, "src", "keep.go"))
	assert.NotContains(t, out.String(), "step cache")
}

func TestRunFailedMapping(t *testing.T) {
	err := runFailed(true, assert.AnError)
	assert.Equal(t, cli.CodeFailure, cli.Code(err))

	err = runFailed(false, assert.AnError)
	assert.Equal(t, cli.CodeUsage, cli.Code(err))
}
