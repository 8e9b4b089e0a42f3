package testutil

import (
	"context"

	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/registry"
)

// NoOpModule registers a "noop" step that passes files through unchanged.
// It's useful for tests that exercise loading and ordering rather than
// transformations.
type NoOpModule struct{}

// Register implements the registry.Module interface.
func (m *NoOpModule) Register(r *registry.Registry) {
	type noopInput struct{}
	r.RegisterStep("noop", registry.Step("Passes files through.",
		func(_ context.Context, _ *registry.Env, _ *noopInput, files []*asset.File) ([]*asset.File, error) {
			return files, nil
		}))
}
