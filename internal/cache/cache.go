// Package cache is the local dependency and artifact cache. Payloads are
// content-addressed tar.gz blobs on disk; a Badger index maps cache keys to
// blob digests. Each project gets its own namespace directory so `clean` can
// drop one project's cache without touching the rest.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/fsutil"
)

const entryPrefix = "entry:"

// Entry is the index record for one cache key.
type Entry struct {
	Key       string    `json:"key"`
	Blob      string    `json:"blob"` // sha256 of the payload
	Size      int64     `json:"size"`
	Paths     []string  `json:"paths"`
	CreatedAt time.Time `json:"created_at"`
	UsedAt    time.Time `json:"used_at"`
}

// Cache is an open handle on one project's cache namespace.
type Cache struct {
	db      *badger.DB
	dir     string
	project string
}

// Open opens (creating if needed) the cache namespace for project under root.
// Callers must Close it; Badger holds a directory lock.
func Open(root, project string) (*Cache, error) {
	if project == "" {
		return nil, errors.New("cache namespace requires a project name")
	}
	dir := Namespace(root, project)
	if err := fsutil.EnsureDir(filepath.Join(dir, "blobs")); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "index")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}
	return &Cache{db: db, dir: dir, project: project}, nil
}

// Namespace returns the directory a project's cache lives in.
func Namespace(root, project string) string {
	return filepath.Join(root, project)
}

// DefaultRoot returns the shared cache root under the user cache directory.
func DefaultRoot() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving user cache dir: %w", err)
	}
	return filepath.Join(base, "gofecto"), nil
}

// Clean removes a project's entire cache namespace. The cache must not be
// open.
func Clean(root, project string) error {
	if project == "" {
		return errors.New("cache namespace requires a project name")
	}
	return os.RemoveAll(Namespace(root, project))
}

// Close releases the index lock.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save archives the given paths (relative to workRoot) under key. The
// payload lands as a content-addressed blob, so identical payloads saved
// under different keys share storage.
func (c *Cache) Save(ctx context.Context, key, workRoot string, paths []string) (*Entry, error) {
	logger := ctxlog.FromContext(ctx)

	blob, size, err := c.writeBlob(workRoot, paths)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &Entry{
		Key:       key,
		Blob:      blob,
		Size:      size,
		Paths:     paths,
		CreatedAt: now,
		UsedAt:    now,
	}
	if err := c.putEntry(entry); err != nil {
		return nil, err
	}
	logger.Debug("Saved cache entry.", "key", key, "blob", blob, "bytes", size)
	return entry, nil
}

// Restore extracts the payload saved under key into workRoot. It reports
// whether the key was found. A dangling index entry (blob removed out of
// band) is dropped and treated as a miss.
func (c *Cache) Restore(ctx context.Context, key, workRoot string) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	entry, err := c.getEntry(key)
	if err != nil {
		return false, err
	}
	if entry == nil {
		logger.Debug("Cache miss.", "key", key)
		return false, nil
	}

	f, err := os.Open(c.blobPath(entry.Blob))
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Cache entry points at a missing blob; dropping it.", "key", key, "blob", entry.Blob)
			return false, c.deleteEntry(key)
		}
		return false, err
	}
	defer f.Close()

	if err := artifact.Extract(f, workRoot); err != nil {
		return false, fmt.Errorf("restoring cache key %q: %w", key, err)
	}

	entry.UsedAt = time.Now().UTC()
	if err := c.putEntry(entry); err != nil {
		return false, err
	}
	logger.Debug("Cache hit.", "key", key, "blob", entry.Blob)
	return true, nil
}

// Prune deletes entries not used within maxAge and any blobs no surviving
// entry references. It returns the number of entries removed.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	logger := ctxlog.FromContext(ctx)
	cutoff := time.Now().UTC().Add(-maxAge)

	var stale []string
	live := make(map[string]struct{})

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			if entry.UsedAt.Before(cutoff) {
				stale = append(stale, entry.Key)
			} else {
				live[entry.Blob] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(stale) > 0 {
		err = c.db.Update(func(txn *badger.Txn) error {
			for _, key := range stale {
				if err := txn.Delete([]byte(entryPrefix + key)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	if err := c.sweepBlobs(live); err != nil {
		return len(stale), err
	}
	logger.Debug("Pruned cache.", "removed", len(stale), "cutoff", cutoff)
	return len(stale), nil
}

// writeBlob archives paths into a temp file while hashing, then renames it to
// its content address. The final name is only known after hashing, so this
// stays a plain temp-and-rename rather than a pending-file write.
func (c *Cache) writeBlob(workRoot string, paths []string) (string, int64, error) {
	blobsDir := filepath.Join(c.dir, "blobs")
	tmp, err := os.CreateTemp(blobsDir, ".partial-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating cache blob: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	h := sha256.New()
	if err := artifact.Archive(io.MultiWriter(tmp, h), workRoot, paths); err != nil {
		return "", 0, fmt.Errorf("archiving cache payload: %w", err)
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}

	blob := hex.EncodeToString(h.Sum(nil))
	if err := os.Rename(tmp.Name(), c.blobPath(blob)); err != nil {
		return "", 0, fmt.Errorf("placing cache blob: %w", err)
	}
	return blob, size, nil
}

func (c *Cache) blobPath(blob string) string {
	return filepath.Join(c.dir, "blobs", blob+".tar.gz")
}

func (c *Cache) putEntry(entry *Entry) error {
	buf, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entryPrefix+entry.Key), buf)
	})
}

func (c *Cache) getEntry(key string) (*Entry, error) {
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(entryPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Cache) deleteEntry(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(entryPrefix + key))
	})
}

// sweepBlobs removes blob files no live entry references.
func (c *Cache) sweepBlobs(live map[string]struct{}) error {
	blobsDir := filepath.Join(c.dir, "blobs")
	entries, err := os.ReadDir(blobsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		blob := strings.TrimSuffix(name, ".tar.gz")
		if _, ok := live[blob]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(blobsDir, name)); err != nil {
			return err
		}
	}
	return nil
}
