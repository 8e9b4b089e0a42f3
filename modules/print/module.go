package print

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print step.
type Input struct {
	Title string `hcl:"title,optional"`
}

// OnRunPrint logs every file of the stream and passes it on unchanged.
func OnRunPrint(ctx context.Context, env *registry.Env, input *Input, files []*asset.File) ([]*asset.File, error) {
	logger := ctxlog.FromContext(ctx)
	title := input.Title
	if title == "" {
		title = "Printing stream"
	}
	logger.Info(title, "files", len(files), "total", humanize.Bytes(asset.TotalSize(files)))

	if len(files) == 0 {
		logger.Info("      (empty)")
		return files, nil
	}
	for _, f := range files {
		logger.Info("      "+f.Relative(), "path", f.Path, "size", humanize.Bytes(uint64(len(f.Contents))), "sourcemap", f.Map != nil)
	}
	return files, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("print", registry.Step("Logs every file in the stream.", OnRunPrint))
}
