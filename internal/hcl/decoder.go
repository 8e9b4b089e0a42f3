package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
)

// Decoder is the HCL implementation of config.Decoder. It evaluates step
// arguments against the context captured when the pipeline was loaded.
type Decoder struct {
	evalCtx *hcl.EvalContext
}

// DecodeStep populates target, a pointer to a struct with `hcl` tags, from
// the step's body. A nil target means the step accepts no arguments.
func (d *Decoder) DecodeStep(ctx context.Context, step *config.Step, target any) error {
	logger := ctxlog.FromContext(ctx)
	if step.Body == nil {
		return nil
	}
	if target == nil {
		attrs, diags := step.Body.JustAttributes()
		if diags.HasErrors() {
			return diags
		}
		for name, attr := range attrs {
			return rangeError(attr.Range, "step %q does not accept arguments, got %q", step.Type, name)
		}
		return nil
	}
	if diags := gohcl.DecodeBody(step.Body, d.evalCtx, target); diags.HasErrors() {
		return fmt.Errorf("step %q: %w", step.Type, diags)
	}
	logger.Debug("Decoded step arguments.", "step", step.Type, "input", fmt.Sprintf("%+v", target))
	return nil
}
