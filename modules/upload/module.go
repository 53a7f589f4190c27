// Package upload provides the 'upload' runner, which PUTs collected dist
// files to a static base URL. It shares the http_client resource when one is
// bound and the rate-limited fan-out of the publish layer.
package upload

import (
	"context"
	"errors"
	"net/http"
	"reflect"

	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/artifact"
	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/publish"
	"github.com/gofecto/gofecto/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// defaultClient serves steps that do not bind an http_client resource.
var defaultClient = &http.Client{}

// Input defines the arguments for the upload runner.
type Input struct {
	URL      string   `gofecto:"url"`
	Root     string   `gofecto:"root"`
	Globs    []string `gofecto:"globs"`
	TokenEnv string   `gofecto:"token_env"`
	RPS      float64  `gofecto:"rps"`
}

// Deps defines the resources injected from the step's uses block.
type Deps struct {
	Client *http.Client `gofecto:"client"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	Uploaded int      `cty:"uploaded"`
	Files    []string `cty:"files"`
}

// OnRunUpload is the handler for the 'upload' runner's on_run lifecycle
// event.
func OnRunUpload(ctx context.Context, deps *Deps, input *Input) (*Output, error) {
	if input.URL == "" {
		return nil, errors.New("url must not be empty")
	}
	root := input.Root
	if root == "" {
		root = "dist"
	}
	globs := input.Globs
	if len(globs) == 0 {
		globs = []string{"*"}
	}
	client := deps.Client
	if client == nil {
		client = defaultClient
	}

	store, err := artifact.NewStore(root)
	if err != nil {
		return nil, err
	}
	files, err := store.Collect(ctx, globs)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no files matched; nothing to upload")
	}

	target := &config.PublishTarget{
		Name:     "upload",
		Backend:  "registry",
		URL:      input.URL,
		TokenEnv: input.TokenEnv,
	}
	pub, err := publish.New(ctx, target, publish.Options{RPS: input.RPS, Client: client})
	if err != nil {
		return nil, err
	}
	if err := pub.Publish(ctx, store.Root(), files); err != nil {
		return nil, err
	}

	out := &Output{Uploaded: len(files), Files: make([]string, 0, len(files))}
	for _, f := range files {
		out.Files = append(out.Files, f.Path)
	}
	ctxlog.FromContext(ctx).Info("✅ Upload finished", "count", out.Uploaded, "url", input.URL)
	return out, nil
}

// Register registers the handler and the built-in manifest with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunUpload", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunUpload,
	})
	r.RegisterRunnerDefinition(&config.RunnerDefinition{
		Type:        "upload",
		Description: "Uploads dist files to a static base URL over HTTP PUT.",
		Lifecycle:   &config.Lifecycle{OnRun: "OnRunUpload"},
		Inputs: map[string]*config.InputDefinition{
			"url":       {Name: "url", Type: cty.String, Description: "Base URL each file path is appended to."},
			"root":      {Name: "root", Type: cty.String, Description: "Dist directory; defaults to 'dist'.", Optional: true},
			"globs":     {Name: "globs", Type: cty.List(cty.String), Description: "Patterns relative to the dist dir; defaults to every file.", Optional: true},
			"token_env": {Name: "token_env", Type: cty.String, Description: "Environment variable holding the bearer token.", Optional: true},
			"rps":       {Name: "rps", Type: cty.Number, Description: "Uploads per second; defaults to 4.", Optional: true},
		},
		Outputs: map[string]*config.OutputDefinition{
			"uploaded": {Name: "uploaded", Type: cty.Number, Description: "Number of files uploaded."},
			"files":    {Name: "files", Type: cty.List(cty.String), Description: "Uploaded paths relative to the dist dir."},
		},
		Uses: map[string]*config.UsesDefinition{
			"client": {LocalName: "client", AssetType: "http_client"},
		},
	})
}
