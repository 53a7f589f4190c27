// Package http_client provides the 'http_client' asset: a shared
// *http.Client created once per resource block and injected into the steps
// that bind it, so uploads reuse pooled connections.
package http_client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for creating an http_client resource.
type Input struct {
	Timeout string `gofecto:"timeout"`
}

// CreateHttpClient is the 'create' handler for the asset.
func CreateHttpClient(ctx context.Context, input *Input) (*http.Client, error) {
	timeout := 30 * time.Second
	if input.Timeout != "" {
		d, err := time.ParseDuration(input.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = d
	}
	ctxlog.FromContext(ctx).Debug("creating shared http client", "timeout", timeout)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}, nil
}

// DestroyHttpClient is the 'destroy' handler. Idle connections are the only
// thing an http.Client holds onto.
func DestroyHttpClient(client *http.Client) error {
	client.CloseIdleConnections()
	return nil
}

// Register registers the asset handlers and the built-in manifest with the
// engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAssetHandler("CreateHttpClient", &registry.RegisteredAsset{
		NewInput: func() any { return new(Input) },
		CreateFn: CreateHttpClient,
	})
	r.RegisterAssetHandler("DestroyHttpClient", &registry.RegisteredAsset{
		DestroyFn: DestroyHttpClient,
	})
	r.RegisterAssetDefinition(&config.AssetDefinition{
		Type:        "http_client",
		Description: "A shared HTTP client with pooled connections.",
		Lifecycle:   &config.AssetLifecycle{Create: "CreateHttpClient", Destroy: "DestroyHttpClient"},
		Inputs: map[string]*config.InputDefinition{
			"timeout": {Name: "timeout", Type: cty.String, Description: "Per-request timeout; defaults to 30s.", Optional: true},
		},
	})
}
