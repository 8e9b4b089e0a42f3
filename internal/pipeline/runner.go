package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/buildcache"
	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Notifier is told which files a pipe with `reload` enabled has written.
type Notifier interface {
	Notify(ctx context.Context, paths []string)
}

// Runner executes tasks against a project filesystem.
type Runner struct {
	fs       billy.Filesystem
	registry *registry.Registry
	decoder  config.Decoder
	cache    *buildcache.Cache
	tracer   trace.Tracer

	mu       sync.RWMutex
	notifier Notifier
}

// NewRunner creates a runner. cache may be nil to disable incremental runs.
func NewRunner(fs billy.Filesystem, reg *registry.Registry, decoder config.Decoder, cache *buildcache.Cache) *Runner {
	return &Runner{
		fs:       fs,
		registry: reg,
		decoder:  decoder,
		cache:    cache,
		tracer:   telemetry.Tracer(),
	}
}

// SetNotifier installs the receiver of reload notifications.
func (r *Runner) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// RunTask runs all pipes of task concurrently and returns once every pipe
// has finished. The first failing pipe cancels the others.
func (r *Runner) RunTask(ctx context.Context, task *config.Task) error {
	ctx, span := r.tracer.Start(ctx, "task "+task.Name, trace.WithAttributes(
		attribute.String("assetgrid.task", task.Name),
		attribute.Int("assetgrid.pipes", len(task.Pipes)),
	))
	defer span.End()

	logger := ctxlog.FromContext(ctx).With("task", task.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("▶️ Starting task")
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, pipe := range task.Pipes {
		g.Go(func() error {
			return r.runPipe(gctx, task, i, pipe)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Info("✅ Finished task", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// pipeKey identifies a pipe in the build cache.
func pipeKey(task string, index int) string {
	return fmt.Sprintf("%s#%d", task, index)
}

type preparedStep struct {
	step  *config.Step
	reg   *registry.RegisteredStep
	input any
}

func (r *Runner) runPipe(ctx context.Context, task *config.Task, index int, pipe *config.Pipe) (err error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("pipe %s#%d", task.Name, index), trace.WithAttributes(
		attribute.StringSlice("assetgrid.src", pipe.Src),
		attribute.String("assetgrid.dest", pipe.Dest),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger := ctxlog.FromContext(ctx).With("pipe", index)
	ctx = ctxlog.WithLogger(ctx, logger)

	steps, err := r.prepare(ctx, pipe)
	if err != nil {
		return fmt.Errorf("task '%s', pipe %d: %w", task.Name, index, err)
	}

	var files []*asset.File
	if len(pipe.Src) > 0 {
		files, err = asset.Src(ctx, r.fs, pipe.Src, pipe.Base)
		if err != nil {
			return fmt.Errorf("task '%s', pipe %d: %w", task.Name, index, err)
		}
	}
	logger.Debug("Read source files.", "count", len(files))

	key := pipeKey(task.Name, index)
	var digest string
	if r.incremental(pipe, steps) {
		sum, digestErr := pipeDigest(pipe, steps, files)
		switch {
		case digestErr != nil:
			logger.Warn("Pipe digest unavailable, running without cache.", "error", digestErr)
		case r.upToDate(ctx, key, sum, pipe):
			logger.Info("⏭️ Pipe up to date, skipping.", "files", len(files))
			span.SetAttributes(attribute.Bool("assetgrid.skipped", true))
			return nil
		default:
			digest = sum
		}
	}

	env := &registry.Env{FS: r.fs, Sourcemaps: pipe.Sourcemaps, Task: task.Name}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		files, err = s.reg.Fn(ctx, env, s.input, files)
		if err != nil {
			err = fmt.Errorf("task '%s', pipe %d, step '%s' (%s): %w", task.Name, index, s.step.Type, s.step.DeclRange, err)
			if pipe.OnError == config.OnErrorContinue {
				logger.Error("Pipe failed, continuing without writing.", "step", s.step.Type, "error", err)
				return nil
			}
			return err
		}
	}

	var written []string
	if pipe.Dest != "" {
		written, err = asset.Dest(r.fs, pipe.Dest, files, pipe.Sourcemaps)
		if err != nil {
			return fmt.Errorf("task '%s', pipe %d: %w", task.Name, index, err)
		}
		logger.Debug("Wrote files.", "dest", pipe.Dest, "count", len(written))
	}

	if pipe.Reload && len(written) > 0 {
		r.notify(ctx, written)
	}

	if digest != "" {
		if err := r.cache.Store(ctx, key, digest); err != nil {
			logger.Warn("Failed to record pipe digest.", "error", err)
		}
	}
	return nil
}

// prepare resolves and decodes every step of the pipe before any file is
// read, so that argument errors never leave partial output behind.
func (r *Runner) prepare(ctx context.Context, pipe *config.Pipe) ([]preparedStep, error) {
	steps := make([]preparedStep, 0, len(pipe.Steps))
	for _, s := range pipe.Steps {
		reg, ok := r.registry.Lookup(s.Type)
		if !ok {
			return nil, fmt.Errorf("unknown step type '%s' (%s)", s.Type, s.DeclRange)
		}
		var input any
		if reg.NewInput != nil {
			input = reg.NewInput()
		}
		if err := r.decoder.DecodeStep(ctx, s, input); err != nil {
			return nil, err
		}
		steps = append(steps, preparedStep{step: s, reg: reg, input: input})
	}
	return steps, nil
}

// incremental reports whether the pipe may be skipped on a digest match.
// Steps with side inputs always force a run.
func (r *Runner) incremental(pipe *config.Pipe, steps []preparedStep) bool {
	if r.cache == nil || !pipe.Incremental || len(pipe.Src) == 0 || pipe.Dest == "" {
		return false
	}
	for _, s := range steps {
		if s.reg.SideInputs {
			return false
		}
	}
	return true
}

// upToDate reports whether the stored digest matches and the destination
// still exists.
func (r *Runner) upToDate(ctx context.Context, key, digest string, pipe *config.Pipe) bool {
	stored, ok, err := r.cache.Lookup(ctx, key)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to read pipe digest.", "error", err)
		return false
	}
	if !ok || stored != digest {
		return false
	}
	_, err = r.fs.Stat(filepath.FromSlash(pipe.Dest))
	return err == nil
}

func (r *Runner) notify(ctx context.Context, paths []string) {
	r.mu.RLock()
	n := r.notifier
	r.mu.RUnlock()
	if n != nil {
		n.Notify(ctx, paths)
	}
}

// pipeDigest hashes everything that determines a pipe's output: its
// settings, the decoded arguments of each step and the source files.
func pipeDigest(pipe *config.Pipe, steps []preparedStep, files []*asset.File) (string, error) {
	d := buildcache.NewDigest().
		String(pipe.Dest).
		String(pipe.Base).
		Value(pipe.Sourcemaps)
	for _, s := range steps {
		d.String(s.step.Type).Value(s.input)
	}
	for _, f := range files {
		d.String(f.Path).Bytes(f.Contents)
	}
	if err := d.Err(); err != nil {
		return "", err
	}
	return d.Sum(), nil
}
