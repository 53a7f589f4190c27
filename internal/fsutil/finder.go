// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// EnsureDir creates the directory and any missing parents. It is a no-op when
// the directory already exists.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// RemoveMatching deletes every entry directly under root whose base name
// matches one of the given glob patterns. Missing roots are not an error.
// It returns the paths it removed.
func RemoveMatching(root string, patterns ...string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", root, err)
	}

	var removed []string
	for _, entry := range entries {
		for _, pattern := range patterns {
			ok, err := filepath.Match(pattern, entry.Name())
			if err != nil {
				return removed, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
			full := filepath.Join(root, entry.Name())
			if err := os.RemoveAll(full); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", full, err)
			}
			removed = append(removed, full)
			break
		}
	}
	return removed, nil
}
