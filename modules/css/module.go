// Package css registers steps that rewrite stylesheets at the token level:
// 'url_adjust' and 'uncss'.
package css

import (
	"github.com/vk/assetgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("url_adjust", registry.Step("Rewrites url() references in CSS.", OnRunURLAdjust))
	r.RegisterStep("uncss", registry.Step("Removes CSS rules that match nothing in a set of HTML documents.", OnRunUncss).WithSideInputs())
}
