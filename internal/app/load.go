package app

import (
	"context"

	"github.com/vk/assetgrid/internal/config"
)

// load reads the pipeline and checks it against the registry.
func (a *App) load(ctx context.Context, loader config.Loader) error {
	path := a.cfg.PipelinePath()
	a.logger.Debug("Loading pipeline...", "path", path)

	model, decoder, err := loader.Load(ctx, path)
	if err != nil {
		return configError("failed to load pipeline: %w", err)
	}
	a.logger.Debug("Pipeline loaded and translated into unified model.")

	if err := a.registry.Validate(ctx, model, decoder); err != nil {
		return &ConfigError{Err: err}
	}
	a.logger.Debug("Registry validation passed.")

	a.model = model
	a.decoder = decoder
	a.logger.Info("Pipeline loaded successfully.", "path", path, "tasks", len(model.Tasks), "watches", len(model.Watches))
	return nil
}
