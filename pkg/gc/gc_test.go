package gc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/smogvm/pkg/gc"
	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/object"
	"github.com/kristofer/smogvm/pkg/value"
)

type fakeRoots struct {
	roots []interface{}
}

func (f *fakeRoots) Roots() []interface{} { return f.roots }

func TestCollectFreesUnreachableObjects(t *testing.T) {
	pool := intern.New()
	reachable := object.New(nil)
	reachable.Set("name", pool.InternString("kept"))
	unreachable := object.New(nil)
	unreachable.Set("name", pool.InternString("discarded"))

	roots := &fakeRoots{roots: []interface{}{reachable}}
	c := gc.New(gc.DefaultConfig(), pool, roots, nil)
	c.Register(reachable, 64)
	c.Register(unreachable, 64)

	c.Collect()

	stats := c.Stats()
	require.Equal(t, 1, stats.Tracked)
	// The unreachable object plus the "discarded" string only it
	// referenced, which the pool sweep frees.
	require.Equal(t, 2, stats.LastFreed)
	require.False(t, reachable.Marked(), "sweep clears mark bits for the next cycle")
}

func TestCollectKeepsReachableAcrossMultipleCycles(t *testing.T) {
	pool := intern.New()
	obj := object.New(nil)
	roots := &fakeRoots{roots: []interface{}{obj}}
	c := gc.New(gc.DefaultConfig(), pool, roots, nil)
	c.Register(obj, 32)

	c.Collect()
	c.Collect()
	c.Collect()

	require.Equal(t, 3, c.Stats().Collections)
	require.Equal(t, 1, c.Stats().Tracked)
}

func TestCollectSweepsUnreachableStringsFromPool(t *testing.T) {
	pool := intern.New()
	kept := pool.InternString("kept")
	_ = pool.InternString("discarded")

	obj := object.New(nil)
	obj.Set("s", kept)
	roots := &fakeRoots{roots: []interface{}{obj}}
	c := gc.New(gc.DefaultConfig(), pool, roots, nil)
	c.Register(obj, 32)

	c.Collect()

	require.Equal(t, 1, pool.Len())
	v, lookup := obj.Get("s", 10)
	require.Equal(t, object.Found, lookup)
	require.Equal(t, value.KindString, v.Kind())
}
