package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
)

// Validate performs a strict check of a pipeline against the registry: every
// step type must be registered and its arguments must decode, and every task
// or watch reference must resolve. All problems are reported together.
func (r *Registry) Validate(ctx context.Context, model *config.Model, decoder config.Decoder) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range model.TaskOrder {
		task := model.Tasks[name]
		for _, dep := range task.DependsOn {
			if _, ok := model.Tasks[dep]; !ok {
				errs = append(errs, fmt.Sprintf("task '%s': depends on unknown task '%s'", name, dep))
			}
		}
		for _, dep := range task.After {
			if _, ok := model.Tasks[dep]; !ok {
				errs = append(errs, fmt.Sprintf("task '%s': ordered after unknown task '%s'", name, dep))
			}
		}
		if len(task.Pipes) == 0 && len(task.DependsOn) == 0 {
			logger.Warn("Task has neither pipes nor dependencies and does nothing.", "task", name)
		}
		for i, pipe := range task.Pipes {
			for _, step := range pipe.Steps {
				reg, ok := r.steps[step.Type]
				if !ok {
					errs = append(errs, fmt.Sprintf("task '%s', pipe %d: unknown step type '%s' (%s)", name, i, step.Type, step.DeclRange))
					continue
				}
				var input any
				if reg.NewInput != nil {
					input = reg.NewInput()
				}
				if err := decoder.DecodeStep(ctx, step, input); err != nil {
					errs = append(errs, fmt.Sprintf("task '%s', pipe %d: %v", name, i, err))
				}
			}
		}
	}

	if model.DefaultTask != "" {
		if _, ok := model.Tasks[model.DefaultTask]; !ok {
			errs = append(errs, fmt.Sprintf("default task '%s' is not declared", model.DefaultTask))
		}
	}

	for _, w := range model.Watches {
		if len(w.Paths) == 0 {
			errs = append(errs, fmt.Sprintf("watch '%s': no paths", w.Name))
		}
		for _, t := range w.Tasks {
			if _, ok := model.Tasks[t]; !ok {
				errs = append(errs, fmt.Sprintf("watch '%s': unknown task '%s'", w.Name, t))
			}
		}
	}

	if srv := model.Server; srv != nil {
		for _, t := range srv.Before {
			if _, ok := model.Tasks[t]; !ok {
				errs = append(errs, fmt.Sprintf("server: unknown task '%s' in before", t))
			}
		}
		for _, w := range srv.Watches {
			if model.Watch(w) == nil {
				errs = append(errs, fmt.Sprintf("server: unknown watch '%s'", w))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("pipeline validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
