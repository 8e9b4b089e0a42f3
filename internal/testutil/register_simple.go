package testutil

import "github.com/vk/assetgrid/internal/registry"

// SimpleModule is a test helper for easily creating a mock module that
// registers a single step.
type SimpleModule struct {
	StepName string
	Step     *registry.RegisteredStep
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	if m.StepName != "" && m.Step != nil {
		r.RegisterStep(m.StepName, m.Step)
	}
}
