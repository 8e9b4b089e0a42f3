// Package esbuild registers the steps that lower, prefix and minify CSS
// and JavaScript through the esbuild transform API.
package esbuild

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/internal/sourcemap"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// AutoprefixInput defines the arguments of the 'autoprefix' step.
type AutoprefixInput struct {
	Browsers []string `hcl:"browsers,optional"`
}

// TranspileInput defines the arguments of the 'transpile_js' step.
type TranspileInput struct {
	Target string `hcl:"target,optional"`
}

// MinifyInput defines the arguments of the 'minify_js' and 'minify_css' steps.
type MinifyInput struct {
	// Mangle renames local identifiers. Defaults to true for JavaScript.
	Mangle *bool `hcl:"mangle,optional"`
	// Target bounds the syntax minified JavaScript may use. Empty leaves
	// esbuild free to use any syntax.
	Target string `hcl:"target,optional"`
}

// OnRunAutoprefix adds vendor prefixes and lowers syntax of CSS files for
// the configured browsers.
func OnRunAutoprefix(ctx context.Context, env *registry.Env, in *AutoprefixInput, files []*asset.File) ([]*asset.File, error) {
	engines, err := ParseBrowsers(in.Browsers)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Resolved browser targets.", "engines", formatEngines(engines))
	return transformAll(ctx, env, files, func(f *asset.File) (api.TransformOptions, bool) {
		return api.TransformOptions{
			Loader:  api.LoaderCSS,
			Engines: engines,
		}, f.Ext() == ".css"
	})
}

// OnRunTranspile lowers JavaScript syntax to the configured target.
func OnRunTranspile(ctx context.Context, env *registry.Env, in *TranspileInput, files []*asset.File) ([]*asset.File, error) {
	target, err := ParseTarget(in.Target)
	if err != nil {
		return nil, err
	}
	out, err := transformAll(ctx, env, files, func(f *asset.File) (api.TransformOptions, bool) {
		return api.TransformOptions{
			Loader: api.LoaderJS,
			Target: target,
		}, isJS(f)
	})
	if err != nil && target == api.ES5 {
		return nil, fmt.Errorf("%w\nesbuild cannot lower let, const, class or generators to es5; use var and functions or set target = \"es2015\"", err)
	}
	return out, err
}

// OnRunMinifyJS minifies JavaScript files.
func OnRunMinifyJS(ctx context.Context, env *registry.Env, in *MinifyInput, files []*asset.File) ([]*asset.File, error) {
	mangle := in.Mangle == nil || *in.Mangle
	target := api.ESNext
	if in.Target != "" {
		t, err := ParseTarget(in.Target)
		if err != nil {
			return nil, err
		}
		target = t
	}
	return transformAll(ctx, env, files, func(f *asset.File) (api.TransformOptions, bool) {
		return api.TransformOptions{
			Loader:            api.LoaderJS,
			Target:            target,
			MinifyWhitespace:  true,
			MinifySyntax:      true,
			MinifyIdentifiers: mangle,
			LegalComments:     api.LegalCommentsNone,
		}, isJS(f)
	})
}

// OnRunMinifyCSS minifies CSS files.
func OnRunMinifyCSS(ctx context.Context, env *registry.Env, in *MinifyInput, files []*asset.File) ([]*asset.File, error) {
	return transformAll(ctx, env, files, func(f *asset.File) (api.TransformOptions, bool) {
		return api.TransformOptions{
			Loader:           api.LoaderCSS,
			MinifyWhitespace: true,
			MinifySyntax:     true,
			LegalComments:    api.LegalCommentsNone,
		}, f.Ext() == ".css"
	})
}

// transformAll runs esbuild on every file accepted by opts. Other files are
// passed through untouched.
func transformAll(ctx context.Context, env *registry.Env, files []*asset.File, opts func(*asset.File) (api.TransformOptions, bool)) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx)
	out := make([]*asset.File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, ok := opts(f)
		if !ok {
			out = append(out, f)
			continue
		}
		next, err := transform(env, f, o)
		if err != nil {
			return nil, err
		}
		logger.Debug("Transformed file.", "file", f.Path, "before", len(f.Contents), "after", len(next.Contents))
		out = append(out, next)
	}
	return out, nil
}

func transform(env *registry.Env, f *asset.File, o api.TransformOptions) (*asset.File, error) {
	source := string(f.Contents)
	o.Sourcefile = f.Path
	o.LogLevel = api.LogLevelSilent
	if env.Sourcemaps {
		o.Sourcemap = api.SourceMapExternal
		o.SourcesContent = api.SourcesContentInclude
		// esbuild picks up an inline input map and composes it with its own.
		if f.Map != nil {
			source += sourcemap.InlineComment(f.Map, o.Loader == api.LoaderCSS)
		}
	}

	result := api.Transform(source, o)
	if len(result.Errors) > 0 {
		return nil, messagesError(f.Path, result.Errors)
	}

	next := f.Clone()
	next.Contents = result.Code
	next.Map = nil
	if env.Sourcemaps && len(result.Map) > 0 {
		next.Map = result.Map
	}
	return next, nil
}

func messagesError(file string, msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", file, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", file, m.Text))
	}
	return errors.Join(errs...)
}

func isJS(f *asset.File) bool {
	switch f.Ext() {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

func formatEngines(engines []api.Engine) string {
	parts := make([]string, len(engines))
	for i, e := range engines {
		parts[i] = engineNames[e.Name] + e.Version
	}
	return strings.Join(parts, ",")
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("autoprefix", registry.Step("Adds vendor prefixes for a list of browsers.", OnRunAutoprefix))
	r.RegisterStep("transpile_js", registry.Step("Lowers JavaScript syntax to an older ECMAScript version.", OnRunTranspile))
	r.RegisterStep("minify_js", registry.Step("Minifies JavaScript.", OnRunMinifyJS))
	r.RegisterStep("minify_css", registry.Step("Minifies CSS.", OnRunMinifyCSS))
}
