package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/skuld/pkg/graph"
)

func TestEval_MatchesScalarLoop(t *testing.T) {
	for _, n := range []int{1, 5, 100} {
		x := graph.NewVar("x", 0, -10, 10)
		a := graph.NewVar("a", 2, 0, 10)
		f := graph.NewFunc("f", "a*x^2", func(v []float64) float64 {
			return v[0] * v[1] * v[1]
		}, a, x)

		xs := make([]float64, n)
		for i := range xs {
			xs[i] = float64(i)*0.1 - 2
		}

		want := make([]float64, n)
		for i, xv := range xs {
			x.SetVal(xv)
			want[i] = f.Core().Value(nil)
		}

		x.SetVal(0.5)
		got := make([]float64, n)
		err := Eval(f, n, map[*graph.Var][]float64{x: xs}, got)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, want, got, "n=%d", n)
	}
}

func TestEval_Broadcast(t *testing.T) {
	x := graph.NewVar("x", 0, -10, 10)
	a := graph.NewVar("a", 1, 0, 10)
	f := graph.NewFunc("f", "a*x", func(v []float64) float64 {
		return v[0] * v[1]
	}, a, x)

	t.Run("length_one_is_constant", func(t *testing.T) {
		out := make([]float64, 3)
		err := Eval(f, 3, map[*graph.Var][]float64{
			x: {1, 2, 3},
			a: {10},
		}, out)
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 20, 30}, out)
	})

	t.Run("short_buffer_clamps_to_last", func(t *testing.T) {
		out := make([]float64, 4)
		err := Eval(f, 4, map[*graph.Var][]float64{
			x: {1, 2},
			a: {10},
		}, out)
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 20, 20, 20}, out)
	})
}

func TestEval_RestoresState(t *testing.T) {
	x := graph.NewVar("x", 0.5, -10, 10)
	f := graph.NewFunc("f", "x+1", func(v []float64) float64 {
		return v[0] + 1
	}, x)
	require.Equal(t, 1.5, f.Core().Value(nil))

	out := make([]float64, 4)
	err := Eval(f, 4, map[*graph.Var][]float64{x: {1, 2, 3, 4}}, out)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4, 5}, out)

	assert.Equal(t, graph.Auto, x.Core().OperMode(), "mode must be restored")
	assert.Equal(t, 0.5, x.Val(), "variable value must be untouched")
	assert.Equal(t, 1.5, f.Core().Value(nil), "graph must compute as before the sweep")
}

func TestEval_Validation(t *testing.T) {
	x := graph.NewVar("x", 0, -10, 10)
	f := graph.NewFunc("f", "x", func(v []float64) float64 {
		return v[0]
	}, x)

	t.Run("zero_events", func(t *testing.T) {
		assert.Error(t, Eval(f, 0, nil, nil))
	})

	t.Run("short_output", func(t *testing.T) {
		assert.Error(t, Eval(f, 3, map[*graph.Var][]float64{x: {1, 2, 3}}, make([]float64, 2)))
	})

	t.Run("empty_buffer", func(t *testing.T) {
		assert.Error(t, Eval(f, 3, map[*graph.Var][]float64{x: {}}, make([]float64, 3)))
	})
}

func TestEval_NoInputs(t *testing.T) {
	x := graph.NewVar("x", 2, -10, 10)
	f := graph.NewFunc("f", "x^2", func(v []float64) float64 {
		return v[0] * v[0]
	}, x)

	out := make([]float64, 3)
	require.NoError(t, Eval(f, 3, nil, out))
	assert.Equal(t, []float64{4, 4, 4}, out)
}
