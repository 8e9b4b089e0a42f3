package testutil

import (
	"testing"

	"github.com/vk/assetgrid/internal/registry"
)

// LoadPipelineTest loads a pipeline without running anything. Steps are
// served by NoOpModule plus any given modules.
func LoadPipelineTest(t *testing.T, pipeline string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	modules = append([]registry.Module{&NoOpModule{}}, modules...)
	result, _ := NewTestApp(t, pipeline, nil, modules...)
	return result
}
