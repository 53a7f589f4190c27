package registry

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/gofecto/gofecto/internal/config"
)

// RegisteredRunner holds the compiled Go parts of a runner's lifecycle function.
type RegisteredRunner struct {
	NewInput  func() any
	InputType reflect.Type
	NewDeps   func() any
	Fn        any
}

// RegisterRunner registers a Go function for a runner's lifecycle event.
func (r *Registry) RegisterRunner(name string, handler *RegisteredRunner) {
	if _, exists := r.HandlerRegistry[name]; exists {
		panic(fmt.Sprintf("runner handler with name '%s' already registered", name))
	}
	slog.Debug("Registering runner handler.", "name", name)
	r.HandlerRegistry[name] = handler
}

// RegisteredAsset holds Go functions for an asset's lifecycle.
type RegisteredAsset struct {
	NewInput  func() any
	CreateFn  any
	DestroyFn any
}

// RegisterAssetHandler registers Go functions for an asset's lifecycle events.
func (r *Registry) RegisterAssetHandler(name string, handler *RegisteredAsset) {
	if _, exists := r.AssetHandlerRegistry[name]; exists {
		panic(fmt.Sprintf("asset handler with name '%s' already registered", name))
	}
	slog.Debug("Registering asset handler.", "name", name)
	r.AssetHandlerRegistry[name] = handler
}

// RegisterRunnerDefinition registers a built-in runner's manifest from Go.
// Modules call this alongside RegisterRunner so the engine knows their typed
// inputs and outputs without an HCL manifest file.
func (r *Registry) RegisterRunnerDefinition(def *config.RunnerDefinition) {
	if _, exists := r.DefinitionRegistry[def.Type]; exists {
		panic(fmt.Sprintf("runner definition for type '%s' already registered", def.Type))
	}
	slog.Debug("Registering runner definition.", "type", def.Type)
	r.DefinitionRegistry[def.Type] = def
}

// RegisterAssetDefinition registers a built-in asset's manifest from Go.
func (r *Registry) RegisterAssetDefinition(def *config.AssetDefinition) {
	if _, exists := r.AssetDefinitionRegistry[def.Type]; exists {
		panic(fmt.Sprintf("asset definition for type '%s' already registered", def.Type))
	}
	slog.Debug("Registering asset definition.", "type", def.Type)
	r.AssetDefinitionRegistry[def.Type] = def
}
