package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gofecto/gofecto/internal/gitx"
	"github.com/gofecto/gofecto/internal/trigger"
	"github.com/gofecto/gofecto/internal/version"
)

// overridable in tests
var openRepo = gitx.Open

// Scheme assembles the version derivation scheme from the manifest. Unset
// fields keep the documented defaults.
func (a *App) Scheme() version.Scheme {
	var s version.Scheme
	if v := a.model.Version; v != nil {
		s.Default = v.Default
		s.EnvVar = v.EnvVar
		s.ReleasePrefix = v.ReleasePrefix
		s.DevTemplate = v.DevTemplate
	}
	if p := a.model.Project; p != nil {
		s.MainBranch = p.MainBranch
	}
	return s
}

// Rules returns the pipeline's trigger rules, or the stock delivery rules
// when the manifest has no on block.
func (a *App) Rules() trigger.Rules {
	if a.model.Pipeline != nil && a.model.Pipeline.HasOn {
		return a.model.Pipeline.Rules
	}
	return trigger.DefaultRules()
}

// GitState snapshots the repository the app is configured against.
func (a *App) GitState(ctx context.Context) (gitx.State, error) {
	dir := a.cfg.RepoDir
	if dir == "" {
		dir = "."
	}
	return openRepo(dir).Snapshot(ctx)
}

// resolveFacts fills in whatever the caller left blank: a zero event is
// synthesized from the repository position, an empty version is derived from
// the manifest's scheme. The repository is only consulted when needed, so a
// fully specified run works outside any checkout.
func (a *App) resolveFacts(ctx context.Context, ev trigger.Event, ver version.Version) (trigger.Event, version.Version, error) {
	if ev != (trigger.Event{}) && ver.Value != "" {
		return ev, classify(ver), nil
	}

	st, gitErr := a.GitState(ctx)

	if ev == (trigger.Event{}) {
		if gitErr != nil {
			return ev, ver, fmt.Errorf("synthesizing event from repository: %w", gitErr)
		}
		synthesized, err := trigger.FromState(st)
		if err != nil {
			return ev, ver, err
		}
		ev = synthesized
	}

	if ver.Value == "" {
		if gitErr != nil {
			// An explicit ref carries enough to derive from; note the
			// degraded snapshot and continue.
			a.logger.Debug("repository state unavailable, deriving from the event ref only", "error", gitErr)
			st = gitx.State{}
		}
		derived, err := version.Derive(a.Scheme(), sourceFor(ev, st), os.LookupEnv)
		if err != nil {
			return ev, ver, fmt.Errorf("deriving version: %w", err)
		}
		ver = derived
	}

	return ev, classify(ver), nil
}

// sourceFor maps the event onto a derivation source. An explicit ref wins
// over the working tree position, so --ref behaves like a CI checkout of
// that ref.
func sourceFor(ev trigger.Event, st gitx.State) version.Source {
	src := version.Source{Branch: st.Branch, Tag: st.Tag, SHA: st.SHA, Dirty: st.Dirty}
	kind, name := trigger.ParseRef(ev.Ref)
	switch kind {
	case trigger.RefTag:
		src.Tag = name
		src.Branch = ""
	case trigger.RefBranch:
		if name != st.Branch {
			src.Branch = name
			src.Tag = ""
		}
	}
	return src
}

// classify fills the channel of an explicitly supplied version.
func classify(v version.Version) version.Version {
	if v.Value == "" || v.Channel != "" {
		return v
	}
	if version.ValidRelease(v.Value) {
		v.Channel = version.ChannelRelease
	} else {
		v.Channel = version.ChannelDev
	}
	return v
}
