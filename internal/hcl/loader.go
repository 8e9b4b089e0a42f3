package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Files returns the source of every file parsed so far, keyed by filename.
// It is used to render diagnostics with source snippets.
func (l *Loader) Files() map[string]*hcl.File {
	return l.parser.Files()
}

// Load parses every pipeline file found at the given paths (a file, or a
// directory searched recursively for .hcl files) into a single model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Decoder, error) {
	logger := ctxlog.FromContext(ctx)

	filePaths, err := expandPaths(paths)
	if err != nil {
		return nil, nil, err
	}
	if len(filePaths) == 0 {
		return nil, nil, fmt.Errorf("no pipeline files found in %v", paths)
	}
	logger.Debug("Found pipeline files to load.", "files", filePaths)

	var files []*hcl.File
	for _, p := range filePaths {
		f, diags := l.parser.ParseHCLFile(p)
		if diags.HasErrors() {
			return nil, nil, diags
		}
		files = append(files, f)
	}

	base := newBaseContext()
	localAttrs, diags := collectLocals(files)
	if diags.HasErrors() {
		return nil, nil, diags
	}
	locals, diags := resolveLocals(localAttrs, base)
	if diags.HasErrors() {
		return nil, nil, diags
	}
	logger.Debug("Locals resolved.", "count", len(locals))
	evalCtx := withLocals(base, locals)

	model := config.NewModel()
	model.Locals = locals
	for _, f := range files {
		var parsed fileSchema
		if diags := gohcl.DecodeBody(f.Body, evalCtx, &parsed); diags.HasErrors() {
			return nil, nil, diags
		}
		if err := translateFile(&parsed, model); err != nil {
			return nil, nil, err
		}
	}

	logger.Debug("Pipeline loaded.", "tasks", len(model.Tasks), "watches", len(model.Watches), "server", model.Server != nil)
	return model, &Decoder{evalCtx: evalCtx}, nil
}

// expandPaths resolves each path into the pipeline files it names, in a
// stable order.
func expandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read pipeline path: %w", err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		found, err := fsutil.FindFiles(p, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to walk pipeline directory %s: %w", p, err)
		}
		out = append(out, found...)
	}
	return out, nil
}
