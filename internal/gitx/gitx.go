// Package gitx reads and mutates repository state by shelling out to the git
// binary, which is what every CI runner has anyway. It is not a git
// reimplementation; only the handful of queries the release flow needs.
package gitx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one git invocation and returns trimmed stdout. Injectable
// so tests run without a git binary or repository.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// State is a snapshot of the repository position used for version derivation
// and tagging decisions.
type State struct {
	Branch   string // empty when detached
	SHA      string // short commit hash
	Tag      string // tag pointing exactly at HEAD, empty if none
	Dirty    bool
	Detached bool
}

// Repo issues git commands against one working directory.
type Repo struct {
	dir string
	run Runner
}

// Open returns a Repo for the given working directory using the real git
// binary.
func Open(dir string) *Repo {
	return &Repo{dir: dir, run: execGit}
}

// OpenWith returns a Repo with a custom runner. Used by tests and by callers
// that need to record or fake git activity.
func OpenWith(dir string, run Runner) *Repo {
	return &Repo{dir: dir, run: run}
}

func execGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentBranch returns the checked-out branch name, or "" with no error on a
// detached HEAD.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "", nil
	}
	return out, nil
}

// Head returns the short commit hash of HEAD.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.run(ctx, r.dir, "rev-parse", "--short", "HEAD")
}

// ExactTag returns the tag pointing exactly at HEAD, or "" when there is
// none. Describe failing because no tag matches is not an error here.
func (r *Repo) ExactTag(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.dir, "describe", "--tags", "--exact-match")
	if err != nil {
		return "", nil
	}
	return out, nil
}

// IsDirty reports whether the working tree has uncommitted changes.
func (r *Repo) IsDirty(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, r.dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// RemoteURL returns the fetch URL of the named remote.
func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	return r.run(ctx, r.dir, "remote", "get-url", remote)
}

// CreateAnnotatedTag creates an annotated tag at HEAD.
func (r *Repo) CreateAnnotatedTag(ctx context.Context, name, message string) error {
	_, err := r.run(ctx, r.dir, "tag", "-a", name, "-m", message)
	return err
}

// PushTag pushes one tag to the named remote.
func (r *Repo) PushTag(ctx context.Context, remote, name string) error {
	_, err := r.run(ctx, r.dir, "push", remote, name)
	return err
}

// Snapshot gathers the full State in one call.
func (r *Repo) Snapshot(ctx context.Context) (State, error) {
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return State{}, fmt.Errorf("reading branch: %w", err)
	}
	sha, err := r.Head(ctx)
	if err != nil {
		return State{}, fmt.Errorf("reading HEAD: %w", err)
	}
	tag, err := r.ExactTag(ctx)
	if err != nil {
		return State{}, err
	}
	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return State{}, fmt.Errorf("reading status: %w", err)
	}
	return State{
		Branch:   branch,
		SHA:      sha,
		Tag:      tag,
		Dirty:    dirty,
		Detached: branch == "",
	}, nil
}
