// Package sass registers the 'sass' step, which compiles SCSS and Sass
// through the Dart Sass embedded protocol.
package sass

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	compiler *compiler
}

// Input defines the arguments of the 'sass' step.
type Input struct {
	IncludePaths []string `hcl:"include_paths,optional"`
	// OutputStyle is "expanded" (default) or "compressed".
	OutputStyle string `hcl:"output_style,optional"`
	// Binary overrides the Dart Sass executable. Defaults to "sass" on PATH.
	Binary string `hcl:"binary,optional"`
}

// compiler owns the Dart Sass child processes, one per binary. They start on
// first use so that pipelines without sass never need the executable.
type compiler struct {
	mu          sync.Mutex
	transpilers map[string]*godartsass.Transpiler
}

func (c *compiler) get(binary string) (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.transpilers[binary]; ok {
		return t, nil
	}
	t, err := godartsass.Start(godartsass.Options{DartSassEmbeddedFilename: binary})
	if err != nil {
		return nil, fmt.Errorf("failed to start Dart Sass %q: %w", binary, err)
	}
	if c.transpilers == nil {
		c.transpilers = make(map[string]*godartsass.Transpiler)
	}
	c.transpilers[binary] = t
	return t, nil
}

// Close stops every started Dart Sass process.
func (c *compiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for binary, t := range c.transpilers {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop Dart Sass %q: %w", binary, err)
		}
	}
	c.transpilers = nil
	return firstErr
}

// IsPartial reports whether the file is a Sass partial, which is only ever
// compiled as part of the files that import it.
func IsPartial(f *asset.File) bool {
	return strings.HasPrefix(f.Name(), "_")
}

func (c *compiler) run(ctx context.Context, env *registry.Env, in *Input, files []*asset.File) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx)

	style, err := outputStyle(in.OutputStyle)
	if err != nil {
		return nil, err
	}
	binary := in.Binary
	if binary == "" {
		binary = "sass"
	}

	out := make([]*asset.File, 0, len(files))
	for _, f := range files {
		syntax, ok := sourceSyntax(f)
		if !ok {
			out = append(out, f)
			continue
		}
		if IsPartial(f) {
			logger.Debug("Skipping Sass partial.", "file", f.Path)
			continue
		}

		t, err := c.get(binary)
		if err != nil {
			return nil, err
		}
		includePaths := append([]string{path.Dir(hostPath(env, f.Path))}, hostPaths(env, in.IncludePaths)...)
		res, err := t.Execute(godartsass.Args{
			Source:                  string(f.Contents),
			URL:                     "file://" + hostPath(env, f.Path),
			SourceSyntax:            syntax,
			OutputStyle:             style,
			IncludePaths:            includePaths,
			EnableSourceMap:         env.Sourcemaps,
			SourceMapIncludeSources: env.Sourcemaps,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}

		next := f.Clone()
		next.Contents = []byte(res.CSS)
		next.Map = nil
		if env.Sourcemaps && res.SourceMap != "" {
			next.Map = []byte(res.SourceMap)
		}
		next.SetExt(".css")
		logger.Debug("Compiled Sass file.", "file", f.Path, "output", next.Path)
		out = append(out, next)
	}
	return out, nil
}

func sourceSyntax(f *asset.File) (godartsass.SourceSyntax, bool) {
	switch f.Ext() {
	case ".scss":
		return godartsass.SourceSyntaxSCSS, true
	case ".sass":
		return godartsass.SourceSyntaxSASS, true
	}
	return "", false
}

func outputStyle(s string) (godartsass.OutputStyle, error) {
	switch s {
	case "", "expanded":
		return godartsass.OutputStyleExpanded, nil
	case "compressed":
		return godartsass.OutputStyleCompressed, nil
	}
	return "", fmt.Errorf("unknown output_style %q, expected 'expanded' or 'compressed'", s)
}

// hostPath resolves a project path against the filesystem root, since the
// Sass compiler reads imports from disk.
func hostPath(env *registry.Env, p string) string {
	if env.FS == nil || path.IsAbs(p) {
		return p
	}
	return path.Join(env.FS.Root(), p)
}

func hostPaths(env *registry.Env, ps []string) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = hostPath(env, p)
	}
	return out
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	if m.compiler == nil {
		m.compiler = &compiler{}
	}
	r.OnClose(m.compiler)
	r.RegisterStep("sass", registry.Step("Compiles SCSS and Sass files to CSS.", m.compiler.run).WithSideInputs())
}
