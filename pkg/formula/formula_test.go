package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/skuld/pkg/graph"
)

func TestParse_Arithmetic(t *testing.T) {
	x := graph.NewVar("x", 2, -10, 10)
	y := graph.NewVar("y", 3, -10, 10)
	vars := graph.NewSet(x, y)

	cases := []struct {
		expr string
		want float64
	}{
		{"x + y", 5},
		{"x - y", -1},
		{"x * y", 6},
		{"y / x", 1.5},
		{"x ^ y", 8},
		{"-x", -2},
		{"x + y * 2", 8},
		{"(x + y) * 2", 10},
		{"2 ^ 3 ^ 2", 512},
		{"-x ^ 2", -4},
		{"1e-1 * x", 0.2},
		{"sqrt(x * 2)", 2},
		{"pow(x, 3)", 8},
		{"min(x, y) + max(x, y)", 5},
		{"abs(x - y)", 1},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			f, err := Parse("f", tc.expr, vars)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, f.Core().Value(nil), 1e-12)
		})
	}
}

func TestParse_Functions(t *testing.T) {
	x := graph.NewVar("x", 0.5, -10, 10)
	f, err := Parse("f", "exp(-x^2 / 2) / sqrt(2 * 3.141592653589793)", graph.NewSet(x))
	require.NoError(t, err)

	want := math.Exp(-0.125) / math.Sqrt(2*math.Pi)
	assert.InDelta(t, want, f.Core().Value(nil), 1e-12)
}

func TestParse_GraphIntegration(t *testing.T) {
	x := graph.NewVar("x", 2, -10, 10)
	a := graph.NewVar("a", 1, -10, 10)
	f, err := Parse("f", "a * x + 1", graph.NewSet(x, a))
	require.NoError(t, err)

	require.Equal(t, 3.0, f.Core().Value(nil))
	a.SetVal(2)
	assert.Equal(t, 5.0, f.Core().Value(nil), "formula must join dirty tracking")
	f.Core().Value(nil)
	assert.Equal(t, uint64(2), f.Core().EvalCount())
}

func TestParse_SharedVariableUsesOneServer(t *testing.T) {
	x := graph.NewVar("x", 3, -10, 10)
	f, err := Parse("f", "x * x + x", graph.NewSet(x))
	require.NoError(t, err)

	require.Len(t, f.Core().Servers(), 1)
	assert.Equal(t, 12.0, f.Core().Value(nil))
}

func TestParse_Errors(t *testing.T) {
	x := graph.NewVar("x", 0, -10, 10)
	vars := graph.NewSet(x)

	for _, expr := range []string{
		"",
		"x +",
		"(x",
		"x y",
		"q + 1",
		"pow(x)",
		"sin()",
		"* x",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse("f", expr, vars)
			assert.Error(t, err, "expression %q", expr)
		})
	}
}
