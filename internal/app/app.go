package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gofecto/gofecto/effect"
	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// App is one fully wired engine instance: logger, loaded manifest and
// validated registry. It carries no per-run state, so a single App can serve
// repeated runs (watch mode re-runs the same App on every change).
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	ctx       context.Context
	cfg       *Config
	registry  *registry.Registry
	model     *config.Model
	converter config.Converter

	healthMu       sync.Mutex
	healthListener net.Listener
	healthServer   *http.Server
}

// New builds an App: logger first, then manifest, then registry. Manifest and
// registry problems come back as errors rather than panics, because
// user-written manifests participate in validation.
func New(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	rt := effect.NewRuntime(effect.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Sinks:  []io.Writer{outW},
	})
	logger := rt.Logger()
	ctx := ctxlog.WithLogger(context.Background(), logger)

	model, converter, err := loader.Load(ctx, cfg.Paths...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger.Debug("configuration loaded", "paths", cfg.Paths)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("modules registered", "count", len(modules))

	reg.PopulateDefinitionsFromModel(model)
	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, fmt.Errorf("validating registry: %w", err)
	}
	logger.Debug("registry validated",
		"runners", len(reg.DefinitionRegistry),
		"assets", len(reg.AssetDefinitionRegistry))

	return &App{
		outW:      outW,
		logger:    logger,
		ctx:       ctx,
		cfg:       cfg,
		registry:  reg,
		model:     model,
		converter: converter,
	}, nil
}

// Logger returns the app's configured logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded manifest model.
func (a *App) Model() *config.Model {
	return a.model
}

// ProjectName returns the manifest's project name, empty when no project
// block was given.
func (a *App) ProjectName() string {
	if a.model.Project == nil {
		return ""
	}
	return a.model.Project.Name
}

// DistDir returns the manifest's artifact directory, defaulting to dist.
func (a *App) DistDir() string {
	if a.model.Project != nil && a.model.Project.DistDir != "" {
		return a.model.Project.DistDir
	}
	return "dist"
}
