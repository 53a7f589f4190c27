package gitinfo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofecto/gofecto/internal/gitx"
	"github.com/gofecto/gofecto/internal/registry"
)

// fakeGit answers the exact queries Snapshot issues.
func fakeGit(t *testing.T, branch, sha, tag, status string) gitx.Runner {
	t.Helper()
	return func(ctx context.Context, dir string, args ...string) (string, error) {
		switch strings.Join(args, " ") {
		case "rev-parse --abbrev-ref HEAD":
			return branch, nil
		case "rev-parse --short HEAD":
			return sha, nil
		case "describe --tags --exact-match":
			if tag == "" {
				return "", errors.New("no tag matches")
			}
			return tag, nil
		case "status --porcelain":
			return status, nil
		default:
			t.Fatalf("unexpected git invocation: %v", args)
			return "", nil
		}
	}
}

func withFakeRepo(t *testing.T, run gitx.Runner) {
	t.Helper()
	orig := openRepo
	openRepo = func(dir string) *gitx.Repo { return gitx.OpenWith(dir, run) }
	t.Cleanup(func() { openRepo = orig })
}

func TestOnRunGitInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("maps the repository snapshot onto the output", func(t *testing.T) {
		withFakeRepo(t, fakeGit(t, "release/1.2.3", "abc1234", "v1.2.3", " M file.py"))

		out, err := OnRunGitInfo(ctx, &Deps{}, &Input{Dir: "/repo"})
		require.NoError(t, err)
		assert.Equal(t, "release/1.2.3", out.Branch)
		assert.Equal(t, "abc1234", out.SHA)
		assert.Equal(t, "v1.2.3", out.Tag)
		assert.True(t, out.Dirty)
		assert.False(t, out.Detached)
	})

	t.Run("detached head yields empty branch", func(t *testing.T) {
		withFakeRepo(t, fakeGit(t, "HEAD", "abc1234", "", ""))

		out, err := OnRunGitInfo(ctx, &Deps{}, &Input{})
		require.NoError(t, err)
		assert.Empty(t, out.Branch)
		assert.True(t, out.Detached)
		assert.False(t, out.Dirty)
		assert.Empty(t, out.Tag)
	})

	t.Run("git failure surfaces as an error", func(t *testing.T) {
		withFakeRepo(t, func(ctx context.Context, dir string, args ...string) (string, error) {
			return "", errors.New("not a git repository")
		})

		_, err := OnRunGitInfo(ctx, &Deps{}, &Input{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading repository state")
	})
}

func TestRegister(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	require.Contains(t, r.HandlerRegistry, "OnRunGitInfo")
	require.Contains(t, r.DefinitionRegistry, "gitinfo")
	assert.NoError(t, r.ValidateRegistry(context.Background()))
}
