package publish

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
)

// HTTPDoer is the slice of *http.Client the registry backend needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// registryPublisher PUTs files to an HTTP artifact registry with bearer-token
// auth. The destination key is the file's store-relative path.
type registryPublisher struct {
	target *config.PublishTarget
	opts   Options
	client HTTPDoer
}

func newRegistryPublisher(target *config.PublishTarget, opts Options) *registryPublisher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &registryPublisher{target: target, opts: opts, client: client}
}

func (p *registryPublisher) Name() string {
	return p.target.Name
}

func (p *registryPublisher) Publish(ctx context.Context, root string, files []artifact.File) error {
	logger := ctxlog.FromContext(ctx).With("target", p.target.Name, "backend", "registry")

	token, err := p.resolveToken()
	if err != nil {
		return err
	}

	logger.Info("Publishing artifacts.", "count", len(files), "url", p.target.URL)
	return fanOut(ctx, p.opts, files, func(ctx context.Context, f artifact.File) error {
		if err := p.uploadOne(ctx, root, f, token); err != nil {
			return err
		}
		logger.Info("Uploaded artifact.", "path", f.Path, "bytes", f.Size)
		return nil
	})
}

// resolveToken reads the token named by the target. A named but unset env
// var is a configuration error; an unnamed one means anonymous uploads.
func (p *registryPublisher) resolveToken() (string, error) {
	if p.target.TokenEnv == "" {
		return "", nil
	}
	token := os.Getenv(p.target.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("publish target %q: environment variable %s is not set", p.target.Name, p.target.TokenEnv)
	}
	return token, nil
}

func (p *registryPublisher) uploadOne(ctx context.Context, root string, f artifact.File, token string) error {
	full := filepath.Join(root, filepath.FromSlash(f.Path))
	file, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("opening artifact %s: %w", f.Path, err)
	}
	defer file.Close()

	url := strings.TrimSuffix(p.target.URL, "/") + "/" + f.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return fmt.Errorf("building upload request for %s: %w", f.Path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(f.Path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Checksum-Sha256", f.SHA256)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.ContentLength = f.Size

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", f.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("uploading %s: registry answered %s: %s", f.Path, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
