package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/devserver"
	"github.com/vk/assetgrid/internal/watch"
	"golang.org/x/sync/errgroup"
)

// Serve runs the server's before tasks, then starts the dev server together
// with its watches until ctx is canceled. Pipes with reload enabled and
// changes matching reload_on refresh connected browsers.
func (a *App) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	srvCfg := a.model.Server
	if srvCfg == nil {
		return configError("the pipeline declares no server block")
	}

	if len(srvCfg.Before) > 0 {
		if err := a.runSerialized(ctx, srvCfg.Before); err != nil {
			a.logger.Error("Initial build failed, serving anyway.", "error", err)
		}
	}

	var watches []*config.Watch
	for _, name := range srvCfg.Watches {
		watches = append(watches, a.model.Watch(name))
	}
	rules := a.watchRules(watches)

	opts := devserver.Options{
		Addr:     fmt.Sprintf(":%d", srvCfg.Port),
		Proxy:    srvCfg.Proxy,
		Debounce: srvCfg.Debounce,
	}
	if srvCfg.Root != "" {
		opts.Root = srvCfg.Root
		if !filepath.IsAbs(opts.Root) {
			opts.Root = filepath.Join(a.root, opts.Root)
		}
	}
	srv, err := devserver.New(ctx, opts)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if len(srvCfg.ReloadOn) > 0 {
		rules = append(rules, watch.Rule{
			Name:     "reload_on",
			Patterns: srvCfg.ReloadOn,
			Debounce: srvCfg.Debounce,
			Run: func(ctx context.Context, changed []string) error {
				srv.Notify(ctx, changed)
				return nil
			},
		})
	}

	var w *watch.Watcher
	if len(rules) > 0 {
		if w, err = watch.New(a.root, rules...); err != nil {
			srv.Close()
			return err
		}
	}
	if err := srv.Listen(); err != nil {
		srv.Close()
		if w != nil {
			_ = w.Close()
		}
		return err
	}

	a.runner.SetNotifier(srv)
	defer a.runner.SetNotifier(nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	if w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}
