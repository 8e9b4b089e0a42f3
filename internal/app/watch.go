package app

import (
	"context"

	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/vk/assetgrid/internal/watch"
)

// Watch runs the named watches until ctx is canceled. With no names every
// declared watch is started.
func (a *App) Watch(ctx context.Context, names []string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	watches, err := a.selectWatches(names)
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		return configError("the pipeline declares no watches")
	}

	w, err := watch.New(a.root, a.watchRules(watches)...)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func (a *App) selectWatches(names []string) ([]*config.Watch, error) {
	if len(names) == 0 {
		return a.model.Watches, nil
	}
	var out []*config.Watch
	for _, name := range names {
		w := a.model.Watch(name)
		if w == nil {
			return nil, configError("unknown watch '%s'", name)
		}
		out = append(out, w)
	}
	return out, nil
}

// watchRules turns watches into rules that rebuild their tasks.
func (a *App) watchRules(watches []*config.Watch) []watch.Rule {
	rules := make([]watch.Rule, 0, len(watches))
	for _, w := range watches {
		tasks := w.Tasks
		rules = append(rules, watch.Rule{
			Name:     w.Name,
			Patterns: w.Paths,
			Run: func(ctx context.Context, changed []string) error {
				return a.runSerialized(ctx, tasks)
			},
		})
	}
	return rules
}
