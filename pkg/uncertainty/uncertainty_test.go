package uncertainty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/skuld/pkg/graph"
)

func linearModel(t *testing.T) (*graph.Var, *graph.Var, *graph.Func, *FitResult) {
	t.Helper()
	x := graph.NewVar("x", 3, -10, 10)
	a := graph.NewVar("a", 2, 0, 10)
	f := graph.NewFunc("f", "a*x", func(v []float64) float64 {
		return v[0] * v[1]
	}, a, x)
	fr, err := NewFitResult([]string{"a"}, []float64{2}, []float64{0.1}, nil)
	require.NoError(t, err)
	return x, a, f, fr
}

func TestNewFitResult(t *testing.T) {
	t.Run("dimension_mismatch", func(t *testing.T) {
		_, err := NewFitResult([]string{"a", "b"}, []float64{1}, []float64{1, 2}, nil)
		assert.Error(t, err)
	})

	t.Run("duplicate_name", func(t *testing.T) {
		_, err := NewFitResult([]string{"a", "a"}, []float64{1, 1}, []float64{1, 1}, nil)
		assert.Error(t, err)
	})

	t.Run("nil_covariance_is_diagonal", func(t *testing.T) {
		fr, err := NewFitResult([]string{"a", "b"}, []float64{1, 2}, []float64{0.5, 2}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.25, fr.Covariance().At(0, 0))
		assert.Equal(t, 4.0, fr.Covariance().At(1, 1))
		assert.Equal(t, 0.0, fr.Covariance().At(0, 1))
	})
}

func TestPropagatedError_Linear(t *testing.T) {
	x, _, f, fr := linearModel(t)

	e, err := PropagatedError(f, fr)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, e, 1e-12, "d(a*x)/da * sigma_a at x=3")

	x.SetVal(5)
	e, err = PropagatedError(f, fr)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, e, 1e-12)
}

func TestPropagatedError_RestoresParameters(t *testing.T) {
	_, a, f, fr := linearModel(t)
	_, err := PropagatedError(f, fr)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.Val())
	assert.Equal(t, 6.0, f.Core().Value(nil))
}

func TestPropagatedError_RestoresOnPanic(t *testing.T) {
	a := graph.NewVar("a", 2, 0, 10)
	f := graph.NewFunc("f", "a", func(v []float64) float64 {
		if v[0] != 2 {
			panic("evaluation blew up")
		}
		return v[0]
	}, a)
	fr, err := NewFitResult([]string{"a"}, []float64{2}, []float64{0.1}, nil)
	require.NoError(t, err)

	require.Panics(t, func() { _, _ = PropagatedError(f, fr) })
	assert.Equal(t, 2.0, a.Val(), "parameter must be restored even when evaluation panics")
}

func TestPropagatedError_ConsistencyCheck(t *testing.T) {
	_, a, f, fr := linearModel(t)
	a.SetVal(2.5)

	_, err := PropagatedError(f, fr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moved since the fit")
}

func TestPropagatedError_ClipsToDomain(t *testing.T) {
	x := graph.NewVar("x", 1, -10, 10)
	a := graph.NewVar("a", 9.95, 0, 10)
	f := graph.NewFunc("f", "a*x", func(v []float64) float64 {
		return v[0] * v[1]
	}, a, x)
	fr, err := NewFitResult([]string{"a"}, []float64{9.95}, []float64{0.2}, nil)
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	e, err := PropagatedError(f, fr, WithLogger(zap.New(core)))
	require.NoError(t, err)

	// Upward variation stops at 10, downward reaches 9.75.
	assert.InDelta(t, (10.0-9.75)/2, e, 1e-12)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "variation clipped to domain", logs.All()[0].Message)
}

func TestPropagatedError_Correlated(t *testing.T) {
	x := graph.NewVar("x", 1, -10, 10)
	a := graph.NewVar("a", 1, -10, 10)
	b := graph.NewVar("b", 1, -10, 10)
	f := graph.NewFunc("f", "a+b*x", func(v []float64) float64 {
		return v[0] + v[1]*v[2]
	}, a, b, x)

	cov := mat.NewSymDense(2, []float64{
		0.04, -0.04,
		-0.04, 0.04,
	})
	fr, err := NewFitResult([]string{"a", "b"}, []float64{1, 1}, []float64{0.2, 0.2}, cov)
	require.NoError(t, err)

	// Fully anticorrelated equal errors cancel in a+b at x=1.
	e, err := PropagatedError(f, fr)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, e, 1e-9)
}

func TestPropagatedError_NoSharedParameters(t *testing.T) {
	x := graph.NewVar("x", 1, -10, 10)
	f := graph.NewFunc("f", "x", func(v []float64) float64 {
		return v[0]
	}, x)
	fr, err := NewFitResult([]string{"unrelated"}, []float64{1}, []float64{0.1}, nil)
	require.NoError(t, err)

	e, err := PropagatedError(f, fr)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e)
}

func TestLinearBand(t *testing.T) {
	x, _, f, fr := linearModel(t)

	xs := []float64{1, 2, 3}
	band, err := LinearBand(f, x, xs, fr, 2)
	require.NoError(t, err)

	for i, xv := range xs {
		assert.InDelta(t, 2*xv, band.Center[i], 1e-12)
		assert.InDelta(t, 2*xv-2*0.1*xv, band.Lower[i], 1e-9)
		assert.InDelta(t, 2*xv+2*0.1*xv, band.Upper[i], 1e-9)
	}
	assert.Equal(t, 3.0, x.Val(), "scan variable must be restored")
}

func TestSampleCount(t *testing.T) {
	// The one-sigma tail is erfc(1/sqrt2) ~ 0.317311, so 315.15 draws are
	// needed and the count rounds up.
	assert.Equal(t, 316, sampleCount(1))
	assert.GreaterOrEqual(t, sampleCount(0.001), 100)
}

func TestSampledBand(t *testing.T) {
	x, a, f, fr := linearModel(t)

	xs := []float64{1, 3}
	band, err := SampledBand(f, x, xs, fr, 1, WithSeed(7))
	require.NoError(t, err)

	assert.Equal(t, 2.0, a.Val(), "sampling must perturb the clone only")
	assert.Equal(t, 3.0, x.Val())

	for i, xv := range xs {
		assert.InDelta(t, 2*xv, band.Center[i], 1e-12)
		assert.InDelta(t, (2-0.1)*xv, band.Lower[i], 0.1*xv,
			"lower edge near one sigma below center")
		assert.InDelta(t, (2+0.1)*xv, band.Upper[i], 0.1*xv,
			"upper edge near one sigma above center")
		assert.Less(t, band.Lower[i], band.Center[i])
		assert.Greater(t, band.Upper[i], band.Center[i])
	}

	t.Run("bad_significance", func(t *testing.T) {
		_, err := SampledBand(f, x, xs, fr, 0)
		assert.Error(t, err)
	})
}
