package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(name string, servers ...Real) *Func {
	return NewFunc(name, name, func(v []float64) float64 {
		out := 1.0
		for _, x := range v {
			out *= x
		}
		return out
	}, servers...)
}

func TestValue_CachingIdempotence(t *testing.T) {
	x := NewVar("x", 3, 0, 10)
	a := NewVar("a", 2, -10, 10)
	f := product("f", a, x)

	first := f.Core().Value(nil)
	second := f.Core().Value(nil)

	assert.Equal(t, 6.0, first)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(1), f.Core().EvalCount(), "second read must not re-evaluate")
}

func TestValue_DirtyPropagation(t *testing.T) {
	t.Run("mutation_through_any_path_recomputes", func(t *testing.T) {
		x := NewVar("x", 2, 0, 10)
		g := product("g", x)
		h := product("h", x)
		top := NewFunc("top", "g+h", func(v []float64) float64 {
			return v[0] + v[1]
		}, g, h)

		require.Equal(t, 4.0, top.Core().Value(nil))
		x.SetVal(3)
		assert.Equal(t, 6.0, top.Core().Value(nil))
		assert.Equal(t, uint64(2), top.Core().EvalCount())
	})

	t.Run("unrelated_mutation_does_not_recompute", func(t *testing.T) {
		x := NewVar("x", 2, 0, 10)
		y := NewVar("y", 5, 0, 10)
		f := product("f", x)

		require.Equal(t, 2.0, f.Core().Value(nil))
		y.SetVal(7)
		f.Core().Value(nil)
		assert.Equal(t, uint64(1), f.Core().EvalCount())
	})

	t.Run("dirty_server_under_clean_client_still_propagates", func(t *testing.T) {
		x := NewVar("x", 1, 0, 10)
		f := product("f", x)
		top := product("top", f)
		require.Equal(t, 1.0, top.Core().Value(nil))

		// An integration-style sweep mutates and restores x mid-read, then
		// the protocol clears the sweeping client's own flag. f stays dirty.
		x.SetVal(2)
		x.SetVal(1)
		top.Core().SetDirtyFlags(false, false)
		require.True(t, f.Core().IsValueDirty())

		x.SetVal(3)
		assert.True(t, top.Core().IsValueDirty(), "mutation behind an already-dirty server must still reach its clients")
		assert.Equal(t, 3.0, top.Core().Value(nil))
	})

	t.Run("diamond_marks_once", func(t *testing.T) {
		x := NewVar("x", 1, 0, 10)
		g := product("g", x)
		h := product("h", x)
		top := product("top", g, h)

		top.Core().Value(nil)
		x.SetVal(2)
		assert.True(t, top.Core().IsValueDirty())
		assert.Equal(t, 4.0, top.Core().Value(nil))
	})
}

func TestOperModes(t *testing.T) {
	t.Run("always_clean_serves_forced_value", func(t *testing.T) {
		x := NewVar("x", 2, 0, 10)
		f := product("f", x)
		require.Equal(t, 2.0, f.Core().Value(nil))

		x.Core().SetOperMode(AlwaysClean)
		x.Core().ForceValue(9, false)
		x.SetVal(5) // dropped: frozen leaf neither recomputes nor propagates

		assert.Equal(t, 2.0, f.Core().Value(nil), "client must not observe mutation behind a frozen server")
		assert.Equal(t, 9.0, x.Core().Value(nil))
	})

	t.Run("leaving_always_clean_rearms_dirty", func(t *testing.T) {
		x := NewVar("x", 2, 0, 10)
		x.Core().Value(nil)
		x.Core().SetOperMode(AlwaysClean)
		x.Core().SetOperMode(Auto)
		assert.True(t, x.Core().IsValueDirty())
	})

	t.Run("always_dirty_recomputes_every_read", func(t *testing.T) {
		x := NewVar("x", 2, 0, 10)
		f := product("f", x)
		f.Core().SetOperMode(AlwaysDirty)

		f.Core().Value(nil)
		f.Core().Value(nil)
		assert.Equal(t, uint64(2), f.Core().EvalCount())
	})
}

func TestForceValue_NotifyClients(t *testing.T) {
	x := NewVar("x", 2, 0, 10)
	f := product("f", x)
	require.Equal(t, 2.0, f.Core().Value(nil))

	x.Core().ForceValue(4, false)
	f.Core().Value(nil)
	assert.Equal(t, uint64(1), f.Core().EvalCount(), "silent force-set must not invalidate clients")

	x.Core().ForceValue(4, true)
	assert.Equal(t, 4.0, f.Core().Value(nil))
	assert.Equal(t, uint64(2), f.Core().EvalCount())
}

func TestValue_NormSetIdentity(t *testing.T) {
	t.Run("identityless_set_rejected", func(t *testing.T) {
		x := NewVar("x", 1, 0, 1)
		assert.Panics(t, func() {
			x.Core().Value(&Set{})
		})
	})

	t.Run("norm_change_hook_fires_on_identity_change_only", func(t *testing.T) {
		x := NewVar("x", 1, 0, 1)
		hook := &normSpy{}
		hook.Init(hook, "spy", "spy", x)

		ns := NewSet(x)
		hook.Value(ns)
		hook.Value(ns)
		assert.Equal(t, 1, hook.calls, "same identity must not re-trigger the hook")

		hook.Value(NewSet(x))
		assert.Equal(t, 2, hook.calls)
	})
}

type normSpy struct {
	Node
	calls int
}

func (s *normSpy) Evaluate() float64  { return 0 }
func (s *normSpy) NormChanged(_ *Set) { s.calls++ }

func TestValue_NaNIsRecoverable(t *testing.T) {
	SetEvalErrorLoggingMode(CountErrors)
	defer SetEvalErrorLoggingMode(PrintErrors)
	ClearEvalErrorLog()

	x := NewVar("x", -1, -10, 10)
	f := NewFunc("sqrt", "sqrt(x)", func(v []float64) float64 {
		return math.Sqrt(v[0])
	}, x)

	got := f.Core().Value(nil)
	assert.True(t, math.IsNaN(got), "the NaN value is still returned")
	assert.Equal(t, 1, NumEvalErrors())
}

func TestConsistencyCheck(t *testing.T) {
	SetConsistencyCheck(true)
	defer SetConsistencyCheck(false)

	x := NewVar("x", 2, 0, 10)
	f := product("f", x)
	require.Equal(t, 2.0, f.Core().Value(nil))

	// Clean reads with an intact cache pass the verification.
	assert.NotPanics(t, func() { f.Core().Value(nil) })

	// Corrupting the cache behind the protocol's back is fatal.
	f.Core().ForceValue(123, false)
	assert.Panics(t, func() { f.Core().Value(nil) })
}

func TestEquals(t *testing.T) {
	x := NewVar("x", 2, 0, 10)
	y := NewVar("y", 2, 0, 10)
	z := NewVar("z", 3, 0, 10)

	assert.True(t, x.Equals(2.0))
	assert.True(t, x.Equals(y))
	assert.False(t, x.Equals(z))
	assert.False(t, x.Equals("2"), "type mismatch compares false, never panics")
}

func TestOffsetHiding(t *testing.T) {
	o := &offsetNode{off: 10}
	o.Init(o, "off", "off")

	require.True(t, HideOffset())
	assert.Equal(t, 11.0, o.Core().Value(nil))

	SetHideOffset(false)
	defer SetHideOffset(true)
	assert.Equal(t, 1.0, o.Core().Value(nil))
}

type offsetNode struct {
	Node
	off float64
}

func (o *offsetNode) Evaluate() float64 { return 1 }
func (o *offsetNode) Offset() float64   { return o.off }

func TestRedirectServers(t *testing.T) {
	x := NewVar("x", 2, 0, 10)
	x2 := NewVar("x", 5, 0, 10)
	f := product("f", x)
	require.Equal(t, 2.0, f.Core().Value(nil))

	n := f.Core().RedirectServers(map[string]Real{"x": x2})
	require.Equal(t, 1, n)
	assert.Equal(t, 5.0, f.Core().Value(nil))

	// The old server no longer reaches f.
	x.SetVal(7)
	f.Core().Value(nil)
	x2.SetVal(3)
	assert.Equal(t, 3.0, f.Core().Value(nil))
}

func TestSamplingHintDefaults(t *testing.T) {
	x := NewVar("x", 0, 0, 1)
	f := product("f", x)
	assert.Nil(t, SamplingHint(f, x, 0, 1))
	assert.Nil(t, BinBoundaries(f, x, 0, 1))
}
