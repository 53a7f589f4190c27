// Package watch re-runs a pipeline target when source files change. It
// watches directory trees with fsnotify and coalesces change bursts (editor
// save storms, branch switches) behind a debounce window.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofecto/gofecto/internal/ctxlog"
)

// DefaultDebounce is the quiet period after the last change before the
// callback fires.
const DefaultDebounce = 400 * time.Millisecond

// defaultIgnoreDirs are directory names never descended into.
var defaultIgnoreDirs = []string{".git", ".venv", "__pycache__", "node_modules", ".tox", "dist", "build"}

// Config controls what a Watcher looks at.
type Config struct {
	Roots    []string      // directory trees to watch
	Patterns []string      // base-name globs that qualify a change; empty means any file
	Ignore   []string      // extra directory names to skip
	Debounce time.Duration // zero takes DefaultDebounce
}

// Watcher drives one watch session. It is single-use: New, Run, done.
type Watcher struct {
	fsw      *fsnotify.Watcher
	cfg      Config
	ignore   map[string]struct{}
	debounce time.Duration
}

// New sets up watches over every directory under the configured roots.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("watch requires at least one root directory")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		cfg:      cfg,
		ignore:   make(map[string]struct{}),
		debounce: cfg.Debounce,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	for _, name := range defaultIgnoreDirs {
		w.ignore[name] = struct{}{}
	}
	for _, name := range cfg.Ignore {
		w.ignore[name] = struct{}{}
	}

	for _, root := range cfg.Roots {
		if err := w.addTree(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addTree registers the directory and every non-ignored subdirectory.
// fsnotify watches are not recursive on their own.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := w.ignore[d.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run blocks, invoking fn after each debounced burst of qualifying changes,
// until the context is canceled. Cancellation is the normal way to stop a
// watch session and returns nil.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context)) error {
	logger := ctxlog.FromContext(ctx)
	defer w.fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Watch session stopped.")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.qualifies(event) {
				continue
			}
			logger.Debug("Source change detected.", "op", event.Op.String(), "path", event.Name)

			// A new directory must be watched too, or changes inside it
			// would go unseen.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, skip := w.ignore[filepath.Base(event.Name)]; !skip {
						_ = w.addTree(event.Name)
					}
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			fn(ctx)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)
		}
	}
}

// qualifies filters events down to relevant operations on matching names.
func (w *Watcher) qualifies(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	base := filepath.Base(event.Name)
	if _, skip := w.ignore[base]; skip {
		return false
	}
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	for _, pattern := range w.cfg.Patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	// Directory creations pass the filter so the tree grows, even when the
	// directory name matches no source pattern.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}
