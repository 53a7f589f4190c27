// Package artifact manages the project's distribution directory: collecting
// built files, digesting them, and writing checksum manifests. All paths are
// confined to the store root; globs that escape it are rejected.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/fsutil"
	"github.com/google/renameio/v2"
)

// File is one collected artifact, addressed relative to the store root.
type File struct {
	Path   string // slash-separated, relative to the store root
	Size   int64
	SHA256 string
}

// Store is a handle on one dist directory.
type Store struct {
	root string
}

// NewStore opens (creating if needed) the dist directory rooted at root.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving dist dir %s: %w", root, err)
	}
	if err := fsutil.EnsureDir(abs); err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string {
	return s.root
}

// Collect expands the given glob patterns relative to the store root and
// digests every regular file they match. Results are deduplicated and sorted
// by path. A pattern matching nothing is not an error; a pattern reaching
// outside the root is.
func (s *Store) Collect(ctx context.Context, globs []string) ([]File, error) {
	logger := ctxlog.FromContext(ctx)

	seen := make(map[string]struct{})
	var files []File

	for _, pattern := range globs {
		if filepath.IsAbs(pattern) {
			return nil, fmt.Errorf("glob %q: absolute patterns are not allowed", pattern)
		}
		matches, err := filepath.Glob(filepath.Join(s.root, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			rel, err := s.relPath(match)
			if err != nil {
				return nil, fmt.Errorf("glob %q: %w", pattern, err)
			}
			if _, dup := seen[rel]; dup {
				continue
			}

			info, err := os.Stat(match)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				continue
			}

			sum, err := digestFile(match)
			if err != nil {
				return nil, err
			}
			seen[rel] = struct{}{}
			files = append(files, File{Path: rel, Size: info.Size(), SHA256: sum})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	logger.Debug("Collected artifacts.", "count", len(files), "globs", globs)
	return files, nil
}

// WriteChecksums writes a sha256sum-compatible manifest for the given files
// atomically into the store and returns its absolute path.
func (s *Store) WriteChecksums(ctx context.Context, name string, files []File) (string, error) {
	logger := ctxlog.FromContext(ctx)

	path := filepath.Join(s.root, name)
	if _, err := s.relPath(path); err != nil {
		return "", err
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("creating pending checksum file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug("Cleanup of pending checksum file failed.", "error", err)
		}
	}()

	for _, f := range files {
		if _, err := fmt.Fprintf(pending, "%s  %s\n", f.SHA256, f.Path); err != nil {
			return "", fmt.Errorf("writing checksum line: %w", err)
		}
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("replacing checksum file: %w", err)
	}
	logger.Debug("Wrote checksum manifest.", "path", path, "entries", len(files))
	return path, nil
}

// Abs resolves a store-relative path, refusing escapes.
func (s *Store) Abs(rel string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	if _, err := s.relPath(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// relPath converts an absolute path under the root to its slash-relative
// form, rejecting anything outside the root.
func (s *Store) relPath(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the dist dir", abs)
	}
	return filepath.ToSlash(rel), nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
