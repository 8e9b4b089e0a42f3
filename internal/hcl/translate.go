// This file translates the decoded HCL schema structs into the
// format-agnostic configuration model.

package hcl

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/assetgrid/internal/config"
)

func translateFile(f *fileSchema, model *config.Model) error {
	if f.Default != "" {
		if model.DefaultTask != "" && model.DefaultTask != f.Default {
			return fmt.Errorf("conflicting default tasks %q and %q", model.DefaultTask, f.Default)
		}
		model.DefaultTask = f.Default
	}

	for _, tb := range f.Tasks {
		task, err := translateTask(tb)
		if err != nil {
			return err
		}
		if err := model.AddTask(task); err != nil {
			return err
		}
	}

	for _, wb := range f.Watches {
		w := &config.Watch{
			Name:      wb.Name,
			Paths:     wb.Paths,
			Tasks:     wb.Tasks,
			DeclRange: bodyRange(wb.Body),
		}
		if prev := model.Watch(w.Name); prev != nil {
			return fmt.Errorf("%s: duplicate watch %q, first declared at %s", w.DeclRange, w.Name, prev.DeclRange)
		}
		model.Watches = append(model.Watches, w)
	}

	for _, sb := range f.Servers {
		if model.Server != nil {
			return fmt.Errorf("%s: only one server block is allowed, first declared at %s", bodyRange(sb.Body), model.Server.DeclRange)
		}
		srv, err := translateServer(sb)
		if err != nil {
			return err
		}
		model.Server = srv
	}
	return nil
}

func translateTask(tb *taskBlock) (*config.Task, error) {
	task := &config.Task{
		Name:        tb.Name,
		Description: tb.Description,
		DependsOn:   tb.DependsOn,
		After:       tb.After,
		DeclRange:   bodyRange(tb.Body),
	}
	for _, pb := range tb.Pipes {
		pipe, err := translatePipe(pb)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tb.Name, err)
		}
		task.Pipes = append(task.Pipes, pipe)
	}
	return task, nil
}

func translatePipe(pb *pipeBlock) (*config.Pipe, error) {
	rng := bodyRange(pb.Body)
	mode, err := config.ParseErrorMode(pb.OnError)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rng, err)
	}
	if len(pb.Src) > 0 && pb.Dest == "" && !hasSinkStep(pb.Steps) {
		return nil, fmt.Errorf("%s: pipe reads %v but has no dest", rng, pb.Src)
	}
	pipe := &config.Pipe{
		Src:         pb.Src,
		Base:        pb.Base,
		Dest:        pb.Dest,
		Sourcemaps:  pb.Sourcemaps,
		Reload:      pb.Reload,
		OnError:     mode,
		Incremental: pb.Incremental,
		DeclRange:   rng,
	}
	for _, sb := range pb.Steps {
		pipe.Steps = append(pipe.Steps, &config.Step{
			Type:      sb.Type,
			Body:      sb.Body,
			DeclRange: bodyRange(sb.Body),
		})
	}
	return pipe, nil
}

// sinkSteps consume their input instead of passing it on to a dest.
var sinkSteps = map[string]bool{
	"print":     true,
	"s3_upload": true,
}

func hasSinkStep(steps []*stepBlock) bool {
	for _, s := range steps {
		if sinkSteps[s.Type] {
			return true
		}
	}
	return false
}

func translateServer(sb *serverBlock) (*config.Server, error) {
	srv := &config.Server{
		Port:      sb.Port,
		Proxy:     sb.Proxy,
		Root:      sb.Root,
		Before:    sb.Before,
		Watches:   sb.Watches,
		ReloadOn:  sb.ReloadOn,
		Debounce:  100 * time.Millisecond,
		DeclRange: bodyRange(sb.Body),
	}
	if srv.Port == 0 {
		srv.Port = 3000
	}
	if srv.Proxy != "" && srv.Root != "" {
		return nil, fmt.Errorf("%s: server accepts either proxy or root, not both", srv.DeclRange)
	}
	if sb.Debounce != "" {
		d, err := time.ParseDuration(sb.Debounce)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid debounce: %w", srv.DeclRange, err)
		}
		srv.Debounce = d
	}
	return srv, nil
}

// rangeError attaches a source range to an error message.
func rangeError(rng hcl.Range, format string, args ...any) error {
	return fmt.Errorf("%s: %s", rng, fmt.Sprintf(format, args...))
}
