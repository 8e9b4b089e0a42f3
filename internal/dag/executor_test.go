package dag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a TaskFunc that records the order in which tasks complete.
type recorder struct {
	mu    sync.Mutex
	order []string
	fail  map[string]error
}

func (r *recorder) run(ctx context.Context, name string) error {
	if err := r.fail[name]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
	return nil
}

func (r *recorder) index(name string) int {
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return -1
}

func diamond(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, id := range []string{"clean", "styles", "scripts", "build"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("clean", "styles"))
	require.NoError(t, g.AddEdge("clean", "scripts"))
	require.NoError(t, g.AddEdge("styles", "build"))
	require.NoError(t, g.AddEdge("scripts", "build"))
	return g
}

func TestExecutor_RunsInDependencyOrder(t *testing.T) {
	rec := &recorder{}
	e := NewExecutor(diamond(t), 4, rec.run)

	require.NoError(t, e.Run(context.Background()))

	require.Len(t, rec.order, 4)
	assert.Equal(t, "clean", rec.order[0])
	assert.Equal(t, "build", rec.order[3])
	for _, id := range []string{"clean", "styles", "scripts", "build"} {
		assert.Equal(t, Done, e.Status(id), id)
	}
}

func TestExecutor_WaitsForCompletionNotTime(t *testing.T) {
	// A slow upstream must still finish before its dependent starts.
	g := New()
	g.AddNode("sprite")
	g.AddNode("styles")
	require.NoError(t, g.AddEdge("sprite", "styles"))

	var spriteDone atomic.Bool
	var sawSprite bool
	e := NewExecutor(g, 2, func(ctx context.Context, name string) error {
		switch name {
		case "sprite":
			time.Sleep(50 * time.Millisecond)
			spriteDone.Store(true)
		case "styles":
			sawSprite = spriteDone.Load()
		}
		return nil
	})

	require.NoError(t, e.Run(context.Background()))
	assert.True(t, sawSprite)
}

func TestExecutor_FailureSkipsDependents(t *testing.T) {
	boom := errors.New("sass: undefined variable")
	rec := &recorder{fail: map[string]error{"styles": boom}}
	e := NewExecutor(diamond(t), 1, rec.run)

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "execution failed for styles")

	assert.Equal(t, Failed, e.Status("styles"))
	assert.Equal(t, Skipped, e.Status("build"))
	assert.Equal(t, -1, rec.index("build"))
	assert.Equal(t, 0, rec.index("clean"))
}

func TestExecutor_EmptyGraph(t *testing.T) {
	e := NewExecutor(New(), 0, func(context.Context, string) error {
		t.Fatal("no task expected")
		return nil
	})
	assert.NoError(t, e.Run(context.Background()))
}

func TestExecutor_ContextCanceled(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	require.NoError(t, g.AddEdge("a", "b"))

	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(g, 1, func(_ context.Context, name string) error {
		if name == "a" {
			cancel()
		}
		return nil
	})

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Done, e.Status("a"))
	assert.Equal(t, Skipped, e.Status("b"))
}
