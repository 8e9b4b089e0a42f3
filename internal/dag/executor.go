package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vk/assetgrid/internal/ctxlog"
)

// TaskFunc executes a single task.
type TaskFunc func(ctx context.Context, name string) error

// Executor runs the tasks of a Graph on a pool of workers.
type Executor struct {
	graph      *Graph
	numWorkers int
	run        TaskFunc

	wg     sync.WaitGroup
	states map[string]*taskState
}

// taskState is the runtime bookkeeping for one node.
type taskState struct {
	id string
	// depCount is the number of dependencies that have not completed yet.
	depCount atomic.Int32
	status   atomic.Int32
	err      error
}

// NewExecutor creates an executor for g. A worker count below one is
// treated as one.
func NewExecutor(g *Graph, numWorkers int, run TaskFunc) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	e := &Executor{
		graph:      g,
		numWorkers: numWorkers,
		run:        run,
		states:     make(map[string]*taskState, g.Len()),
	}
	for _, id := range g.IDs() {
		st := &taskState{id: id}
		deps, _ := g.Dependencies(id)
		st.depCount.Store(int32(len(deps)))
		e.states[id] = st
	}
	return e
}

// Status returns the final state of a task after Run.
func (e *Executor) Status(id string) Status {
	st, ok := e.states[id]
	if !ok {
		return Pending
	}
	return Status(st.status.Load())
}

// Run executes the entire graph concurrently and returns an error if any task fails.
// It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "run_id", runID)
	logger := ctxlog.FromContext(ctx)

	if len(e.states) == 0 {
		logger.Warn("No tasks selected, execution not required.")
		return nil
	}

	readyChan := make(chan *taskState, len(e.states))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.wg.Add(len(e.states))

	logger.Debug("Initializing executor, finding root tasks...")
	for _, id := range e.graph.IDs() {
		if st := e.states[id]; st.depCount.Load() == 0 {
			logger.Debug("Found root task.", "task", id)
			readyChan <- st
		}
	}

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
	logger.Debug("All tasks completed.")

	var failed []string
	var rootCause error
	for _, id := range e.graph.IDs() {
		st := e.states[id]
		if Status(st.status.Load()) != Failed {
			continue
		}
		if errors.Is(st.err, context.Canceled) {
			continue
		}
		failed = append(failed, id)
		if rootCause == nil {
			rootCause = st.err
		}
	}
	if rootCause != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *taskState, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for st := range readyChan {
		workerLogger := logger.With("workerID", workerID, "task", st.id)

		if ctx.Err() != nil {
			if e.transition(st, Pending, Skipped, ctx.Err()) {
				workerLogger.Warn("Context canceled, skipping task.")
				e.skipDependents(ctx, st.id)
			}
			continue
		}

		if !st.status.CompareAndSwap(int32(Pending), int32(Running)) {
			// Already skipped by an upstream failure.
			continue
		}
		workerLogger.Debug("Worker picked up task for execution.")
		err := e.run(ctxlog.WithLogger(ctx, workerLogger), st.id)
		if err != nil {
			workerLogger.Error("Task failed.", "error", err)
			e.transition(st, Running, Failed, err)
			cancel()
			e.skipDependents(ctx, st.id)
			continue
		}

		workerLogger.Debug("Task succeeded.")
		dependents, _ := e.graph.Dependents(st.id)
		// Dependents must be enqueued before this node is marked finished,
		// otherwise the WaitGroup could reach zero with work outstanding.
		for _, id := range dependents {
			dep := e.states[id]
			if dep.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent task.", "dependent", id)
				readyChan <- dep
			}
		}
		e.transition(st, Running, Done, nil)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// transition moves a node into a final state and releases its WaitGroup
// slot. It reports false when the node was not in the expected state.
func (e *Executor) transition(st *taskState, from, to Status, err error) bool {
	if !st.status.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	st.err = err
	e.wg.Done()
	return true
}

// skipDependents recursively marks all pending downstream tasks as skipped.
func (e *Executor) skipDependents(ctx context.Context, id string) {
	logger := ctxlog.FromContext(ctx)
	dependents, _ := e.graph.Dependents(id)
	for _, depID := range dependents {
		dep := e.states[depID]
		if e.transition(dep, Pending, Skipped, fmt.Errorf("skipped due to upstream failure of '%s'", id)) {
			logger.Warn("Skipping dependent task due to upstream failure.", "task", depID, "dependency", id)
			e.skipDependents(ctx, depID)
		}
	}
}
