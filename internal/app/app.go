package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/vk/assetgrid/internal/buildcache"
	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/pipeline"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/internal/telemetry"
)

// ConfigError marks failures caused by the pipeline file, the configuration
// or the arguments, as opposed to failures of a run.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

func configError(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	root     string
	fs       billy.Filesystem
	registry *registry.Registry
	model    *config.Model
	decoder  config.Decoder
	cache    *buildcache.Cache
	runner   *pipeline.Runner

	// runMu serializes builds started by watches.
	runMu sync.Mutex

	healthServer      *http.Server
	telemetryShutdown func(context.Context) error
	closeOnce         sync.Once
}

// NewApp is the constructor for the main application. It loads and
// validates the pipeline and returns a fully initialized App with its own
// isolated logger and registry. When no modules are given the built-in
// steps are registered.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, configError("invalid project directory %q: %w", cfg.Dir, err)
	}

	a := &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		root:   root,
		fs:     osfs.New(root),
	}

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules()
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	a.registry = reg
	logger.Debug("All Go modules registered.", "count", len(modules), "steps", reg.Names())

	if err := a.load(ctx, loader); err != nil {
		_ = reg.Close()
		return nil, err
	}

	if err := a.openCache(ctx); err != nil {
		_ = reg.Close()
		return nil, err
	}

	shutdown, err := telemetry.Setup(ctx, cfg.OtelEndpoint)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.telemetryShutdown = shutdown

	a.runner = pipeline.NewRunner(a.fs, reg, a.decoder, a.cache)

	if cfg.HealthcheckPort > 0 {
		a.startHealthcheckServer(cfg.HealthcheckPort)
	}
	return a, nil
}

func (a *App) openCache(ctx context.Context) error {
	if !a.cfg.Cache {
		a.logger.Debug("Build cache disabled.")
		return nil
	}
	path := a.cfg.CachePath
	if path == "" {
		p, err := buildcache.DefaultPath(a.root)
		if err != nil {
			return fmt.Errorf("failed to resolve build cache path: %w", err)
		}
		path = p
	}
	cache, err := buildcache.Open(ctx, path)
	if err != nil {
		return err
	}
	a.cache = cache
	a.logger.Debug("Build cache opened.", "path", path)
	return nil
}

// Context returns ctx carrying the application's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Root returns the absolute project directory.
func (a *App) Root() string {
	return a.root
}

// Tasks returns the declared tasks in declaration order.
func (a *App) Tasks() []*config.Task {
	tasks := make([]*config.Task, 0, len(a.model.TaskOrder))
	for _, name := range a.model.TaskOrder {
		tasks = append(tasks, a.model.Tasks[name])
	}
	return tasks
}

// Watches returns the declared watches in declaration order.
func (a *App) Watches() []*config.Watch {
	return a.model.Watches
}

// DefaultTask returns the task run when none is named, or "".
func (a *App) DefaultTask() string {
	return a.model.DefaultTask
}

// Server returns the dev server configuration, or nil.
func (a *App) Server() *config.Server {
	return a.model.Server
}

// Close releases every resource held by the app. It is safe to call more
// than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		ctx := a.Context(context.Background())
		if err := a.closeHealthCheckServer(ctx); err != nil {
			a.logger.Warn("Failed to close health check server.", "error", err)
		}
		var errs []error
		if a.registry != nil {
			errs = append(errs, a.registry.Close())
		}
		if a.cache != nil {
			errs = append(errs, a.cache.Close())
		}
		if a.telemetryShutdown != nil {
			errs = append(errs, a.telemetryShutdown(ctx))
		}
		if err := errors.Join(errs...); err != nil {
			a.logger.Warn("Errors while shutting down.", "error", err)
		}
		a.logger.Debug("App closed.")
	})
}
