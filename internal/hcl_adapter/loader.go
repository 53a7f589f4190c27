package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofecto/gofecto/internal/config"
	"github.com/gofecto/gofecto/internal/ctxlog"
	"github.com/gofecto/gofecto/internal/fsutil"
	"github.com/gofecto/gofecto/internal/schema"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Project   *schema.Project            `hcl:"project,block"`
	Version   *schema.Version            `hcl:"version,block"`
	Publish   []*schema.Publish          `hcl:"publish,block"`
	On        *schema.On                 `hcl:"on,block"`
	Runners   []*schema.RunnerDefinition `hcl:"runner,block"`
	Assets    []*schema.AssetDefinition  `hcl:"asset,block"`
	Steps     []*schema.Step             `hcl:"step,block"`
	Resources []*schema.Resource         `hcl:"resource,block"`
	Remain    hcl.Body                   `hcl:",remain"`
}

// Load orchestrates the entire HCL configuration loading process. It is
// agnostic to the origin of the paths and parses any valid block from any file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := config.NewModel()

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := l.mergeFile(ctx, model, &root, file); err != nil {
			return nil, nil, err
		}
	}

	logger.Debug("HCL loading complete.",
		"runners", len(model.Runners),
		"assets", len(model.Assets),
		"publish_targets", len(model.Publish),
		"steps", len(model.Pipeline.Steps),
		"resources", len(model.Pipeline.Resources),
	)
	return model, NewConverter(), nil
}

// mergeFile translates one decoded file into the model, enforcing that
// singleton blocks (project, version, on) appear at most once across all files.
func (l *Loader) mergeFile(ctx context.Context, model *config.Model, root *fileRoot, file string) error {
	if root.Project != nil {
		if model.Project != nil {
			return fmt.Errorf("duplicate project block in %s", file)
		}
		model.Project = translateProject(root.Project)
	}
	if root.Version != nil {
		if model.Version != nil {
			return fmt.Errorf("duplicate version block in %s", file)
		}
		model.Version = translateVersion(root.Version)
	}
	if root.On != nil {
		if model.Pipeline.HasOn {
			return fmt.Errorf("duplicate on block in %s", file)
		}
		model.Pipeline.Rules = translateOn(root.On)
		model.Pipeline.HasOn = true
	}

	for _, pub := range root.Publish {
		target, err := translatePublish(pub)
		if err != nil {
			return fmt.Errorf("in %s: %w", file, err)
		}
		if _, exists := model.Publish[target.Name]; exists {
			return fmt.Errorf("duplicate publish target %q in %s", target.Name, file)
		}
		model.Publish[target.Name] = target
	}

	for _, runner := range root.Runners {
		def, err := l.translateRunnerDefinition(ctx, runner)
		if err != nil {
			return err
		}
		model.Runners[def.Type] = def
	}
	for _, asset := range root.Assets {
		def, err := l.translateAssetDefinition(ctx, asset)
		if err != nil {
			return err
		}
		model.Assets[def.Type] = def
	}
	for _, step := range root.Steps {
		translated, err := l.translateStep(ctx, step)
		if err != nil {
			return fmt.Errorf("in %s: %w", file, err)
		}
		model.Pipeline.Steps = append(model.Pipeline.Steps, translated)
	}
	for _, resource := range root.Resources {
		model.Pipeline.Resources = append(model.Pipeline.Resources, l.translateResource(resource))
	}
	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, p := range found {
				if _, wasSeen := seen[p]; !wasSeen {
					allFiles = append(allFiles, p)
					seen[p] = struct{}{}
				}
			}
		} else if filepath.Ext(path) == ".hcl" {
			if _, wasSeen := seen[path]; !wasSeen {
				allFiles = append(allFiles, path)
				seen[path] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
