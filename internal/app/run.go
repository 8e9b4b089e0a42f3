package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/dag"
)

// Run builds the given tasks and everything they depend on. With no
// targets the pipeline's default task is run.
func (a *App) Run(ctx context.Context, targets []string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "targets", targets)

	if len(targets) == 0 {
		if a.model.DefaultTask == "" {
			return configError("no task given and the pipeline declares no default task")
		}
		targets = []string{a.model.DefaultTask}
	}

	a.logger.Debug("Building dependency graph from config model...")
	graph, err := dag.Build(ctx, a.model, targets)
	if err != nil {
		return &ConfigError{Err: fmt.Errorf("failed to build dependency graph: %w", err)}
	}
	a.logger.Debug("Dependency graph built.", "node_count", graph.Len())

	exec := dag.NewExecutor(graph, a.cfg.Workers, func(ctx context.Context, name string) error {
		return a.runner.RunTask(ctx, a.model.Tasks[name])
	})

	a.logger.Info("🚀 Starting concurrent execution...", "targets", targets, "tasks", graph.Len())
	start := time.Now()
	if err := exec.Run(ctx); err != nil {
		return err
	}
	a.logger.Info("🏁 Execution finished.", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// runSerialized runs targets, waiting for any build already in progress.
// Canceled runs are not reported as failures.
func (a *App) runSerialized(ctx context.Context, targets []string) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	err := a.Run(ctx, targets)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
