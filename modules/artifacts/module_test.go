package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofecto/gofecto/internal/registry"
)

func writeDist(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("payload of "+name), 0o644))
	}
}

func TestOnRunArtifacts(t *testing.T) {
	ctx := context.Background()

	t.Run("collects matches and writes the manifest", func(t *testing.T) {
		root := t.TempDir()
		writeDist(t, root, "pkg-1.0.0.tar.gz", "pkg-1.0.0.whl", "notes.md")

		out, err := OnRunArtifacts(ctx, &Deps{}, &Input{
			Root:  root,
			Globs: []string{"*.tar.gz", "*.whl"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Count)
		require.Len(t, out.Files, 2)
		assert.Equal(t, "pkg-1.0.0.tar.gz", out.Files[0].Path)
		assert.Equal(t, "pkg-1.0.0.whl", out.Files[1].Path)
		assert.Len(t, out.Files[0].SHA256, 64)
		assert.Greater(t, out.Files[0].Size, int64(0))

		sums, err := os.ReadFile(out.ChecksumsPath)
		require.NoError(t, err)
		assert.Contains(t, string(sums), "pkg-1.0.0.whl")
		assert.Equal(t, filepath.Join(root, "checksums.txt"), out.ChecksumsPath)
	})

	t.Run("custom manifest name", func(t *testing.T) {
		root := t.TempDir()
		writeDist(t, root, "pkg.whl")

		out, err := OnRunArtifacts(ctx, &Deps{}, &Input{
			Root:      root,
			Globs:     []string{"*.whl"},
			Checksums: "SHA256SUMS",
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "SHA256SUMS"), out.ChecksumsPath)
	})

	t.Run("no matches still yields an empty manifest", func(t *testing.T) {
		root := t.TempDir()

		out, err := OnRunArtifacts(ctx, &Deps{}, &Input{Root: root, Globs: []string{"*.whl"}})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Count)
		assert.Empty(t, out.Files)
		assert.FileExists(t, out.ChecksumsPath)
	})

	t.Run("empty globs are rejected", func(t *testing.T) {
		_, err := OnRunArtifacts(ctx, &Deps{}, &Input{Root: t.TempDir()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one pattern")
	})

	t.Run("escaping glob is rejected", func(t *testing.T) {
		base := t.TempDir()
		root := filepath.Join(base, "dist")
		require.NoError(t, os.MkdirAll(root, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(base, "secret.txt"), []byte("x"), 0o644))

		_, err := OnRunArtifacts(ctx, &Deps{}, &Input{Root: root, Globs: []string{"../*.txt"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes the dist dir")
	})
}

func TestRegister(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	require.Contains(t, r.HandlerRegistry, "OnRunArtifacts")
	require.Contains(t, r.DefinitionRegistry, "artifacts")
	assert.NoError(t, r.ValidateRegistry(context.Background()))
}
