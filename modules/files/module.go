// Package files registers steps that reshape the file stream itself:
// 'concat', 'rename' and 'mkdirs'.
package files

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/internal/sourcemap"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// ConcatInput defines the arguments of the 'concat' step.
type ConcatInput struct {
	Path string `hcl:"path"`
}

// RenameInput defines the arguments of the 'rename' step.
type RenameInput struct {
	Basename *string `hcl:"basename,optional"`
	Extname  *string `hcl:"extname,optional"`
	Prefix   string  `hcl:"prefix,optional"`
	Suffix   string  `hcl:"suffix,optional"`
	// Path replaces the whole relative path and wins over the other fields.
	Path string `hcl:"path,optional"`
}

// MkdirsInput defines the arguments of the 'mkdirs' step.
type MkdirsInput struct {
	Dirs []string `hcl:"dirs"`
}

// OnRunConcat joins all files, in stream order, into a single file.
func OnRunConcat(ctx context.Context, env *registry.Env, in *ConcatInput, files []*asset.File) ([]*asset.File, error) {
	if in.Path == "" {
		return nil, fmt.Errorf("concat: path must not be empty")
	}
	if len(files) == 0 {
		ctxlog.FromContext(ctx).Debug("Nothing to concatenate.", "path", in.Path)
		return nil, nil
	}

	var buf bytes.Buffer
	parts := make([]sourcemap.Part, 0, len(files))
	var modTime time.Time
	for i, f := range files {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(f.Contents)
		if f.ModTime.After(modTime) {
			modTime = f.ModTime
		}
		if !env.Sourcemaps {
			continue
		}
		part := sourcemap.Part{Source: f.Path, Content: f.Contents}
		if f.Map != nil {
			m, err := sourcemap.Parse(f.Map)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Path, err)
			}
			part.Map = m
		}
		parts = append(parts, part)
	}

	out := &asset.File{Base: files[0].Base, Contents: buf.Bytes(), ModTime: modTime}
	out.SetRelative(in.Path)
	if env.Sourcemaps {
		m, err := sourcemap.Concat(path.Base(out.Path), parts)
		if err != nil {
			return nil, err
		}
		if out.Map, err = m.Bytes(); err != nil {
			return nil, err
		}
	}
	ctxlog.FromContext(ctx).Debug("Concatenated files.", "count", len(files), "path", out.Path)
	return []*asset.File{out}, nil
}

// OnRunRename changes the relative path of every file.
func OnRunRename(ctx context.Context, env *registry.Env, in *RenameInput, files []*asset.File) ([]*asset.File, error) {
	out := make([]*asset.File, 0, len(files))
	for _, f := range files {
		next := f.Clone()
		next.SetRelative(renamed(f.Relative(), in))
		ctxlog.FromContext(ctx).Debug("Renamed file.", "from", f.Path, "to", next.Path)
		out = append(out, next)
	}
	return out, nil
}

func renamed(rel string, in *RenameInput) string {
	if in.Path != "" {
		return in.Path
	}
	dir, name := path.Split(rel)
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if in.Basename != nil {
		base = *in.Basename
	}
	if in.Extname != nil {
		ext = *in.Extname
	}
	return dir + in.Prefix + base + in.Suffix + ext
}

// OnRunMkdirs makes sure the listed directories exist. Files pass through.
func OnRunMkdirs(ctx context.Context, env *registry.Env, in *MkdirsInput, files []*asset.File) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx)
	for _, dir := range in.Dirs {
		if err := env.FS.MkdirAll(filepath.FromSlash(dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory '%s': %w", dir, err)
		}
		logger.Debug("Ensured directory exists.", "dir", dir)
	}
	return files, nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("concat", registry.Step("Joins all files into one.", OnRunConcat))
	r.RegisterStep("rename", registry.Step("Renames files.", OnRunRename))
	r.RegisterStep("mkdirs", registry.Step("Creates directories.", OnRunMkdirs))
}
