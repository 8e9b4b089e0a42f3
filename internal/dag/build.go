package dag

import (
	"context"
	"fmt"

	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/ctxlog"
)

// Build constructs the validated dependency graph of the given targets.
//
// The graph contains every target plus, transitively, every task named in
// a `depends_on`. Edges from `after` are added only between tasks that are
// already part of the graph.
func Build(ctx context.Context, model *config.Model, targets []string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "targets", targets)
	g := New()

	// First pass: select the targets and their hard dependencies.
	var selectTask func(name, requiredBy string) error
	selectTask = func(name, requiredBy string) error {
		task, ok := model.Tasks[name]
		if !ok {
			if requiredBy == "" {
				return fmt.Errorf("unknown task '%s'", name)
			}
			return fmt.Errorf("task '%s' depends on unknown task '%s'", requiredBy, name)
		}
		if g.Has(name) {
			return nil
		}
		g.AddNode(name)
		for _, dep := range task.DependsOn {
			if err := selectTask(dep, name); err != nil {
				return err
			}
		}
		return nil
	}
	for _, target := range targets {
		if err := selectTask(target, ""); err != nil {
			return nil, err
		}
	}
	logger.Debug("Build: Node selection complete.", "node_count", g.Len())

	// Second pass: link dependencies.
	for _, id := range g.IDs() {
		task := model.Tasks[id]
		for _, dep := range task.DependsOn {
			if err := g.AddEdge(dep, id); err != nil {
				return nil, fmt.Errorf("linking task '%s': %w", id, err)
			}
		}
		for _, prev := range task.After {
			if !g.Has(prev) {
				logger.Debug("Build: Ordering constraint not part of this run.", "task", id, "after", prev)
				continue
			}
			if err := g.AddEdge(prev, id); err != nil {
				return nil, fmt.Errorf("linking task '%s': %w", id, err)
			}
		}
	}
	logger.Debug("Build: Node linking complete.")

	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Graph construction successful.")
	return g, nil
}
