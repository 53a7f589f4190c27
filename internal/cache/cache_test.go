package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func openCache(t *testing.T, root string) *Cache {
	t.Helper()
	c, err := Open(root, "demo")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSaveRestoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	cacheRoot := t.TempDir()
	work := t.TempDir()
	writeWorkFile(t, work, ".venv/lib/pkg.py", "code")
	writeWorkFile(t, work, ".venv/bin/activate", "script")

	c := openCache(t, cacheRoot)

	entry, err := c.Save(ctx, "deps-abc123", work, []string{".venv"})
	require.NoError(t, err)
	assert.Equal(t, "deps-abc123", entry.Key)
	assert.NotEmpty(t, entry.Blob)
	assert.Positive(t, entry.Size)

	fresh := t.TempDir()
	hit, err := c.Restore(ctx, "deps-abc123", fresh)
	require.NoError(t, err)
	assert.True(t, hit)

	got, err := os.ReadFile(filepath.Join(fresh, ".venv", "lib", "pkg.py"))
	require.NoError(t, err)
	assert.Equal(t, "code", string(got))
}

func TestRestoreMiss(t *testing.T) {
	c := openCache(t, t.TempDir())

	hit, err := c.Restore(context.Background(), "never-saved", t.TempDir())
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRestoreDropsDanglingEntry(t *testing.T) {
	ctx := context.Background()
	cacheRoot := t.TempDir()
	work := t.TempDir()
	writeWorkFile(t, work, "f.txt", "x")

	c := openCache(t, cacheRoot)
	entry, err := c.Save(ctx, "k", work, []string{"f.txt"})
	require.NoError(t, err)

	// Simulate an out-of-band blob removal.
	require.NoError(t, os.Remove(c.blobPath(entry.Blob)))

	hit, err := c.Restore(ctx, "k", t.TempDir())
	require.NoError(t, err)
	assert.False(t, hit)

	// The dangling index record is gone too.
	got, err := c.getEntry("k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdenticalPayloadsShareBlobs(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	writeWorkFile(t, work, "f.txt", "same bytes")

	c := openCache(t, t.TempDir())

	first, err := c.Save(ctx, "key-a", work, []string{"f.txt"})
	require.NoError(t, err)
	second, err := c.Save(ctx, "key-b", work, []string{"f.txt"})
	require.NoError(t, err)

	assert.Equal(t, first.Blob, second.Blob)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	writeWorkFile(t, work, "f.txt", "payload")

	c := openCache(t, t.TempDir())
	entry, err := c.Save(ctx, "old-key", work, []string{"f.txt"})
	require.NoError(t, err)

	t.Run("recent entries survive", func(t *testing.T) {
		removed, err := c.Prune(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Zero(t, removed)

		hit, err := c.Restore(ctx, "old-key", t.TempDir())
		require.NoError(t, err)
		assert.True(t, hit)
	})

	t.Run("aged entries and their blobs go", func(t *testing.T) {
		// maxAge zero puts the cutoff at now, so everything saved before this
		// call is stale.
		removed, err := c.Prune(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		hit, err := c.Restore(ctx, "old-key", t.TempDir())
		require.NoError(t, err)
		assert.False(t, hit)

		_, err = os.Stat(c.blobPath(entry.Blob))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestClean(t *testing.T) {
	ctx := context.Background()
	cacheRoot := t.TempDir()
	work := t.TempDir()
	writeWorkFile(t, work, "f.txt", "x")

	c, err := Open(cacheRoot, "demo")
	require.NoError(t, err)
	_, err = c.Save(ctx, "k", work, []string{"f.txt"})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.NoError(t, Clean(cacheRoot, "demo"))
	_, err = os.Stat(Namespace(cacheRoot, "demo"))
	assert.True(t, os.IsNotExist(err))

	t.Run("empty project name is rejected", func(t *testing.T) {
		assert.Error(t, Clean(cacheRoot, ""))
	})
}
