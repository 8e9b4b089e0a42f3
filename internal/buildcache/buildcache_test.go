package buildcache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	_, ok, err := c.Lookup(ctx, "css#0")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, "css#0", "abc"))
	got, ok, err := c.Lookup(ctx, "css#0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	require.NoError(t, c.Store(ctx, "css#0", "def"))
	got, _, err = c.Lookup(ctx, "css#0")
	require.NoError(t, err)
	assert.Equal(t, "def", got)

	require.NoError(t, c.Forget(ctx, "css#0"))
	_, ok, err = c.Lookup(ctx, "css#0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, c.Store(ctx, "js#0", "1234"))
	require.NoError(t, c.Close())

	c, err = Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()
	got, ok, err := c.Lookup(ctx, "js#0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1234", got)
	assert.Equal(t, path, c.Path())
}

func TestCacheConcurrentStores(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Store(ctx, "pipe", NewDigest().Value(i).Sum()))
		}(i)
	}
	wg.Wait()

	_, ok, err := c.Lookup(ctx, "pipe")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDigest(t *testing.T) {
	a := NewDigest().String("ab").String("c").Sum()
	b := NewDigest().String("a").String("bc").Sum()
	assert.NotEqual(t, a, b, "fields are length-prefixed")

	same1 := NewDigest().Value(struct{ Path string }{"x"}).Bytes([]byte{1, 2}).Sum()
	same2 := NewDigest().Value(struct{ Path string }{"x"}).Bytes([]byte{1, 2}).Sum()
	assert.Equal(t, same1, same2)
}

func TestDigestUnencodableValue(t *testing.T) {
	d := NewDigest().Value(struct{ Fn func() }{func() {}})
	require.Error(t, d.Err())
	assert.ErrorContains(t, d.Err(), "cannot digest")

	assert.NoError(t, NewDigest().Value(map[string]int{"a": 1}).Err())
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	p1, err := DefaultPath("/projects/a")
	require.NoError(t, err)
	p2, err := DefaultPath("/projects/b")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.Equal(t, ".db", filepath.Ext(p1))
	assert.Contains(t, p1, "assetgrid")
}
