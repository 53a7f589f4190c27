// Package artifacts provides the 'artifacts' runner, which collects build
// outputs from the dist dir, digests them and writes an atomic checksum
// manifest. Its output feeds the publish and upload steps and the run
// ledger.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the artifacts runner.
type Input struct {
	Root      string   `gofecto:"root"`
	Globs     []string `gofecto:"globs"`
	Checksums string   `gofecto:"checksums"`
}

// Deps is an empty struct because this runner does not use any resources.
type Deps struct{}

// File is one collected artifact in the runner's output.
type File struct {
	Path   string `cty:"path"`
	SHA256 string `cty:"sha256"`
	Size   int64  `cty:"size"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	Files         []File `cty:"files"`
	Count         int    `cty:"count"`
	ChecksumsPath string `cty:"checksums_path"`
}

// OnRunArtifacts is the handler for the 'artifacts' runner's on_run
// lifecycle event.
func OnRunArtifacts(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	if len(input.Globs) == 0 {
		return nil, errors.New("globs must list at least one pattern")
	}
	root := input.Root
	if root == "" {
		root = "dist"
	}
	name := input.Checksums
	if name == "" {
		name = "checksums.txt"
	}

	store, err := artifact.NewStore(root)
	if err != nil {
		return nil, err
	}
	files, err := store.Collect(ctx, input.Globs)
	if err != nil {
		return nil, err
	}
	sumPath, err := store.WriteChecksums(ctx, name, files)
	if err != nil {
		return nil, fmt.Errorf("writing checksum manifest: %w", err)
	}

	out := &Output{
		Files:         make([]File, 0, len(files)),
		Count:         len(files),
		ChecksumsPath: sumPath,
	}
	for _, f := range files {
		out.Files = append(out.Files, File{Path: f.Path, SHA256: f.SHA256, Size: f.Size})
	}
	ctxlog.FromContext(ctx).Info("collected artifacts", "count", out.Count, "root", root)
	return out, nil
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunArtifacts", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunArtifacts,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "artifacts",
		Description: "Collects dist files by glob, digests them and writes a checksum manifest.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunArtifacts"},
		Inputs: map[string]*config.InputDefinition{
			"root":      {Name: "root", Type: cty.String, Description: "Dist directory; defaults to 'dist'.", Optional: true},
			"globs":     {Name: "globs", Type: cty.List(cty.String), Description: "Patterns relative to the dist dir."},
			"checksums": {Name: "checksums", Type: cty.String, Description: "Checksum manifest file name; defaults to 'checksums.txt'.", Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"files":          {Name: "files", Type: cty.List(cty.Object(map[string]cty.Type{"path": cty.String, "sha256": cty.String, "size": cty.Number})), Description: "Collected files with digests and sizes."},
			"count":          {Name: "count", Type: cty.Number, Description: "Number of collected files."},
			"checksums_path": {Name: "checksums_path", Type: cty.String, Description: "Absolute path of the written checksum manifest."},
		},
	})
}
