// Package publish pushes collected artifacts to their destinations. Backends
// share a rate-limited, bounded fan-out loop; what differs is how one file
// travels.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/version"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Publisher pushes a set of artifacts, addressed relative to root, to one
// destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, root string, files []artifact.File) error
}

// Options tune a publisher. Zero values take defaults; Client and S3 exist
// so tests can substitute transports.
type Options struct {
	RPS     float64 // uploads per second, default 4
	Burst   int     // default 2
	Workers int     // concurrent uploads, default 4
	Client  HTTPDoer
	S3      S3API
}

func (o Options) withDefaults() Options {
	if o.RPS <= 0 {
		o.RPS = 4
	}
	if o.Burst <= 0 {
		o.Burst = 2
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// New builds the publisher for a target. The context is only used to set up
// backend clients, not for the uploads themselves.
func New(ctx context.Context, target *config.PublishTarget, opts Options) (Publisher, error) {
	opts = opts.withDefaults()
	switch target.Backend {
	case "registry":
		return newRegistryPublisher(target, opts), nil
	case "s3":
		return newS3Publisher(ctx, target, opts)
	default:
		return nil, fmt.Errorf("publish target %q: unknown backend %q", target.Name, target.Backend)
	}
}

// SelectTarget picks the destination for a publish command. An explicit name
// wins; otherwise staging selects the `staging = true` target (publish-test)
// and its absence selects the production one.
func SelectTarget(targets map[string]*config.PublishTarget, name string, staging bool) (*config.PublishTarget, error) {
	if name != "" {
		target, ok := targets[name]
		if !ok {
			return nil, fmt.Errorf("unknown publish target %q", name)
		}
		return target, nil
	}

	var matches []*config.PublishTarget
	for _, target := range targets {
		if target.Staging == staging {
			matches = append(matches, target)
		}
	}
	switch len(matches) {
	case 0:
		if staging {
			return nil, errors.New("no publish target with staging = true")
		}
		return nil, errors.New("no publish target configured")
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%d publish targets match, name one explicitly", len(matches))
	}
}

// Guard is the direct-publish safety check: dev-channel versions and dirty
// worktrees need --force. Pipeline publishes rely on tag gating instead and
// never call this.
func Guard(ver version.Version, dirty bool) error {
	if ver.Channel == version.ChannelDev {
		return fmt.Errorf("refusing to publish dev version %s (use --force to override)", ver.Value)
	}
	if dirty {
		return errors.New("refusing to publish from a dirty worktree (use --force to override)")
	}
	return nil
}

// fanOut runs upload over every file with a shared rate limit and a bounded
// worker count, stopping on the first failure.
func fanOut(ctx context.Context, opts Options, files []artifact.File, upload func(ctx context.Context, f artifact.File) error) error {
	limiter := rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, f := range files {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			return upload(gctx, f)
		})
	}
	return g.Wait()
}
