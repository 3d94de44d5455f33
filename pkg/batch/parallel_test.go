package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/skuld/pkg/graph"
)

func TestParallelEval_MatchesSerial(t *testing.T) {
	x := graph.NewVar("x", 0, -10, 10)
	a := graph.NewVar("a", 3, 0, 10)
	f := graph.NewFunc("f", "a*x^2+1", func(v []float64) float64 {
		return v[0]*v[1]*v[1] + 1
	}, a, x)

	const n = 97
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i) * 0.05
	}
	inputs := map[*graph.Var][]float64{x: xs, a: {3}}

	want := make([]float64, n)
	require.NoError(t, Eval(f, n, inputs, want))

	got := make([]float64, n)
	require.NoError(t, ParallelEval(f, n, inputs, got, 4))
	assert.Equal(t, want, got)

	assert.Equal(t, 0.0, x.Val(), "caller's graph must be untouched")
	assert.Equal(t, graph.Auto, x.Core().OperMode())
}

func TestParallelEval_ShortBufferClampsAcrossChunks(t *testing.T) {
	x := graph.NewVar("x", 0, -10, 10)
	f := graph.NewFunc("f", "x", func(v []float64) float64 {
		return v[0]
	}, x)

	const n = 9
	inputs := map[*graph.Var][]float64{x: {1, 2, 3}}

	want := make([]float64, n)
	require.NoError(t, Eval(f, n, inputs, want))
	assert.Equal(t, []float64{1, 2, 3, 3, 3, 3, 3, 3, 3}, want)

	got := make([]float64, n)
	require.NoError(t, ParallelEval(f, n, inputs, got, 3))
	assert.Equal(t, want, got)
}

func TestParallelEval_SingleWorkerFallsBack(t *testing.T) {
	x := graph.NewVar("x", 0, -10, 10)
	f := graph.NewFunc("f", "x", func(v []float64) float64 {
		return v[0]
	}, x)

	out := make([]float64, 3)
	require.NoError(t, ParallelEval(f, 3, map[*graph.Var][]float64{x: {1, 2, 3}}, out, 1))
	assert.Equal(t, []float64{1, 2, 3}, out)
}

func TestParallelEval_UnknownVariable(t *testing.T) {
	x := graph.NewVar("x", 0, -10, 10)
	q := graph.NewVar("q", 0, -10, 10)
	f := graph.NewFunc("f", "x", func(v []float64) float64 {
		return v[0]
	}, x)

	out := make([]float64, 4)
	err := ParallelEval(f, 4, map[*graph.Var][]float64{q: {1, 2, 3, 4}}, out, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not appear")
}
