// Package trigger decides whether a pipeline should run for a given
// source-control event, using the same rule shapes CI systems use: branch
// and tag patterns for pushes, target branches for pull requests. Evaluating
// them locally makes CI gating reproducible on a workstation.
package trigger

import (
	"fmt"
	"strings"

	"github.com/gofecto/gofecto/internal/gitx"
)

// Kind is the event category.
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
)

// Event is one source-control event. Tag pushes are push events whose Ref
// lives under refs/tags/.
type Event struct {
	Kind Kind
	Ref  string // refs/heads/<branch> or refs/tags/<tag>
	Base string // pull request target branch
}

// RefKind classifies a parsed ref.
type RefKind string

const (
	RefBranch  RefKind = "branch"
	RefTag     RefKind = "tag"
	RefUnknown RefKind = "unknown"
)

// ParseRef splits a fully qualified ref into its kind and short name. Bare
// names are treated as branches.
func ParseRef(ref string) (RefKind, string) {
	switch {
	case strings.HasPrefix(ref, "refs/heads/"):
		return RefBranch, strings.TrimPrefix(ref, "refs/heads/")
	case strings.HasPrefix(ref, "refs/tags/"):
		return RefTag, strings.TrimPrefix(ref, "refs/tags/")
	case ref == "":
		return RefUnknown, ""
	case strings.HasPrefix(ref, "refs/"):
		return RefUnknown, ref
	default:
		return RefBranch, ref
	}
}

// IsReleaseTag reports whether ref is a release tag reference, the condition
// that gates publishing.
func IsReleaseTag(ref string) bool {
	return strings.HasPrefix(ref, "refs/tags/v")
}

// PushRules filters push events. Empty Branches and Tags means any push
// matches. When only one list is set, the other ref type never matches.
type PushRules struct {
	Branches []string
	Tags     []string
}

// PullRequestRules filters pull request events by target branch. Empty means
// any target.
type PullRequestRules struct {
	Branches []string
}

// Rules is the trigger configuration of one pipeline. A nil rule set means
// that event kind never triggers.
type Rules struct {
	Push        *PushRules
	PullRequest *PullRequestRules
}

// DefaultRules returns the stock delivery rules: push to main or release/**,
// tags v*, pull requests targeting main.
func DefaultRules() Rules {
	return Rules{
		Push: &PushRules{
			Branches: []string{"main", "release/**"},
			Tags:     []string{"v*"},
		},
		PullRequest: &PullRequestRules{
			Branches: []string{"main"},
		},
	}
}

// Decision is the outcome of evaluating rules against an event, with a
// human-readable reason for plan output.
type Decision struct {
	Matched bool
	Reason  string
}

// Evaluate applies the rules to the event.
func (r Rules) Evaluate(ev Event) Decision {
	switch ev.Kind {
	case KindPush:
		return r.evaluatePush(ev)
	case KindPullRequest:
		return r.evaluatePullRequest(ev)
	default:
		return Decision{Matched: false, Reason: fmt.Sprintf("unknown event kind %q", ev.Kind)}
	}
}

func (r Rules) evaluatePush(ev Event) Decision {
	if r.Push == nil {
		return Decision{Reason: "push events do not trigger this pipeline"}
	}
	kind, name := ParseRef(ev.Ref)
	switch kind {
	case RefBranch:
		if len(r.Push.Branches) == 0 && len(r.Push.Tags) == 0 {
			return Decision{Matched: true, Reason: "push trigger has no filters"}
		}
		if pattern, ok := matchAny(r.Push.Branches, name); ok {
			return Decision{Matched: true, Reason: fmt.Sprintf("branch %q matches %q", name, pattern)}
		}
		return Decision{Reason: fmt.Sprintf("branch %q matches no push pattern", name)}
	case RefTag:
		if len(r.Push.Branches) == 0 && len(r.Push.Tags) == 0 {
			return Decision{Matched: true, Reason: "push trigger has no filters"}
		}
		if pattern, ok := matchAny(r.Push.Tags, name); ok {
			return Decision{Matched: true, Reason: fmt.Sprintf("tag %q matches %q", name, pattern)}
		}
		return Decision{Reason: fmt.Sprintf("tag %q matches no tag pattern", name)}
	default:
		return Decision{Reason: fmt.Sprintf("unrecognized ref %q", ev.Ref)}
	}
}

func (r Rules) evaluatePullRequest(ev Event) Decision {
	if r.PullRequest == nil {
		return Decision{Reason: "pull request events do not trigger this pipeline"}
	}
	if len(r.PullRequest.Branches) == 0 {
		return Decision{Matched: true, Reason: "pull request trigger has no filters"}
	}
	if pattern, ok := matchAny(r.PullRequest.Branches, ev.Base); ok {
		return Decision{Matched: true, Reason: fmt.Sprintf("target branch %q matches %q", ev.Base, pattern)}
	}
	return Decision{Reason: fmt.Sprintf("target branch %q matches no pattern", ev.Base)}
}

func matchAny(patterns []string, name string) (string, bool) {
	for _, p := range patterns {
		if Match(p, name) {
			return p, true
		}
	}
	return "", false
}

// FromState synthesizes the event a CI system would have produced for the
// current repository position: a tag push when HEAD sits exactly on a tag,
// otherwise a branch push.
func FromState(s gitx.State) (Event, error) {
	if s.Tag != "" {
		return Event{Kind: KindPush, Ref: "refs/tags/" + s.Tag}, nil
	}
	if s.Branch != "" {
		return Event{Kind: KindPush, Ref: "refs/heads/" + s.Branch}, nil
	}
	return Event{}, fmt.Errorf("detached HEAD without a tag, supply an explicit ref")
}
