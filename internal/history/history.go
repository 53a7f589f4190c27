// Package history is the run ledger: one SQLite database recording every
// pipeline run, its steps and its artifacts, so `gofecto history` can answer
// what ran, when, and why it stopped.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run matches the requested id.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguousID is returned when an id prefix matches more than one run.
var ErrAmbiguousID = errors.New("run id prefix is ambiguous")

// Run is one recorded pipeline execution.
type Run struct {
	ID        string
	Project   string
	EventKind string
	EventRef  string
	Version   string
	Channel   string
	Status    string // succeeded, failed or canceled
	Started   time.Time
	Finished  time.Time
	Steps     []StepRecord
	Artifacts []ArtifactRecord
}

// Duration is the wall time of the whole run.
func (r *Run) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// StepRecord is the ledger row for one node of the run.
type StepRecord struct {
	NodeID   string
	Status   string
	Reason   string
	Error    string
	Started  time.Time
	Duration time.Duration
}

// ArtifactRecord is one artifact the run produced.
type ArtifactRecord struct {
	Path   string
	SHA256 string
	Size   int64
}

// Store is an open ledger database.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath places the ledger under the user's gofecto dot directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, ".gofecto", "history.db"), nil
}

// Open opens (creating and migrating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA foreign_keys = ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configuring ledger: %w", err)
		}
	}
	if _, err := db.Exec(schemaV1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun writes a run with its steps and artifacts in one transaction.
// An empty run ID gets a fresh UUID; the stored ID is written back.
func (s *Store) RecordRun(ctx context.Context, run *Run) (err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, project, event_kind, event_ref, version, channel, status, started_ms, finished_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Project, run.EventKind, run.EventRef, run.Version, run.Channel,
		run.Status, run.Started.UnixMilli(), run.Finished.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	for _, step := range run.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_steps (run_id, node_id, status, reason, error, started_ms, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, step.NodeID, step.Status, step.Reason, step.Error,
			step.Started.UnixMilli(), step.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("recording step %s: %w", step.NodeID, err)
		}
	}

	for _, art := range run.Artifacts {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_artifacts (run_id, path, sha256, size)
			VALUES (?, ?, ?, ?)
		`, run.ID, art.Path, art.SHA256, art.Size)
		if err != nil {
			return fmt.Errorf("recording artifact %s: %w", art.Path, err)
		}
	}

	return tx.Commit()
}

// RecentRuns lists the newest runs first, without step or artifact detail.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, event_kind, event_ref, version, channel, status, started_ms, finished_ms
		FROM runs ORDER BY started_ms DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run loads one run with full step and artifact detail. The id may be a
// unique prefix of the stored UUID.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, event_kind, event_ref, version, channel, status, started_ms, finished_ms
		FROM runs WHERE id LIKE ? LIMIT 2
	`, id+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
	run := matches[0]

	if run.Steps, err = s.runSteps(ctx, run.ID); err != nil {
		return nil, err
	}
	if run.Artifacts, err = s.runArtifacts(ctx, run.ID); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) runSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, status, reason, error, started_ms, duration_ms
		FROM run_steps WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var step StepRecord
		var startedMS, durationMS int64
		if err := rows.Scan(&step.NodeID, &step.Status, &step.Reason, &step.Error, &startedMS, &durationMS); err != nil {
			return nil, err
		}
		step.Started = time.UnixMilli(startedMS).UTC()
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *Store) runArtifacts(ctx context.Context, runID string) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, sha256, size
		FROM run_artifacts WHERE run_id = ? ORDER BY path
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var arts []ArtifactRecord
	for rows.Next() {
		var art ArtifactRecord
		if err := rows.Scan(&art.Path, &art.SHA256, &art.Size); err != nil {
			return nil, err
		}
		arts = append(arts, art)
	}
	return arts, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var startedMS, finishedMS int64
	err := rows.Scan(&run.ID, &run.Project, &run.EventKind, &run.EventRef,
		&run.Version, &run.Channel, &run.Status, &startedMS, &finishedMS)
	if err != nil {
		return Run{}, err
	}
	run.Started = time.UnixMilli(startedMS).UTC()
	run.Finished = time.UnixMilli(finishedMS).UTC()
	return run, nil
}
