package artifact

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofecto/gofecto/internal/fsutil"
)

// Archive writes the named files (paths relative to root) as a tar.gz stream.
// Directory entries are created implicitly on extraction, so only regular
// files are archived.
func Archive(w io.Writer, root string, paths []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, rel := range paths {
		if err := addToArchive(tw, root, rel); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip stream: %w", err)
	}
	return nil
}

func addToArchive(tw *tar.Writer, root, rel string) error {
	full := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return walkDirIntoArchive(tw, root, rel)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("building tar header for %s: %w", rel, err)
	}
	hdr.Name = filepath.ToSlash(rel)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", rel, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archiving %s: %w", rel, err)
	}
	return nil
}

func walkDirIntoArchive(tw *tar.Writer, root, rel string) error {
	base := filepath.Join(root, filepath.FromSlash(rel))
	return filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		sub, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addToArchive(tw, root, filepath.ToSlash(sub))
	})
}

// Extract unpacks a tar.gz stream under root, restoring file modes. Entries
// that would land outside root are rejected.
func Extract(r io.Reader, root string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		clean := filepath.Clean(filepath.FromSlash(hdr.Name))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes the target dir", hdr.Name)
		}
		dest := filepath.Join(root, clean)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fsutil.EnsureDir(dest); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fsutil.EnsureDir(filepath.Dir(dest)); err != nil {
				return err
			}
			if err := writeExtracted(dest, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Symlinks and specials are not produced by Archive; skip them
			// rather than follow links out of the root.
			continue
		}
	}
}

func writeExtracted(dest string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("extracting %s: %w", dest, err)
	}
	return f.Close()
}
