package uncertainty

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/orneryd/skuld/pkg/graph"
)

// Band is a confidence band over a scan variable: for each scan point the
// central value and the lower and upper edges at the requested significance.
type Band struct {
	X      []float64
	Center []float64
	Lower  []float64
	Upper  []float64
}

// LinearBand scans x over xs and surrounds the curve with z times the
// linearly propagated error at every point.
func LinearBand(f graph.Real, x *graph.Var, xs []float64, fr *FitResult, z float64, opts ...Option) (*Band, error) {
	if z <= 0 {
		return nil, fmt.Errorf("uncertainty: significance must be positive, got %g", z)
	}

	band := &Band{
		X:      append([]float64(nil), xs...),
		Center: make([]float64, len(xs)),
		Lower:  make([]float64, len(xs)),
		Upper:  make([]float64, len(xs)),
	}
	saved := x.Val()
	defer x.SetVal(saved)

	for i, xv := range xs {
		x.SetVal(xv)
		c := f.Core().Value(nil)
		e, err := PropagatedError(f, fr, opts...)
		if err != nil {
			return nil, err
		}
		band.Center[i] = c
		band.Lower[i] = c - z*e
		band.Upper[i] = c + z*e
	}
	return band, nil
}

// sampleCount picks the number of covariance draws needed to make the
// z-sigma quantiles of the sampled curves statistically meaningful.
func sampleCount(z float64) int {
	tail := math.Erfc(z / math.Sqrt2)
	n := 100
	if tail > 0 {
		if m := int(math.Ceil(100 / tail)); m > n {
			n = m
		}
	}
	return n
}

// SampledBand scans x over xs and estimates the band by drawing parameter
// vectors from the fit covariance and taking the central interval of the
// resulting curves at every scan point.
//
// The function is deep-cloned and the clone's parameters are the ones
// perturbed, so the caller's graph never sees the sampling.
func SampledBand(f graph.Real, x *graph.Var, xs []float64, fr *FitResult, z float64, opts ...Option) (*Band, error) {
	if z <= 0 {
		return nil, fmt.Errorf("uncertainty: significance must be positive, got %g", z)
	}
	o := buildOptions(opts)

	clone, cloneSet, err := graph.CloneTree(f)
	if err != nil {
		return nil, err
	}
	cx, ok := cloneSet.Find(x.Name()).(*graph.Var)
	if !ok {
		return nil, fmt.Errorf("uncertainty: %q does not depend on scan variable %q", f.Name(), x.Name())
	}

	params := floatingParams(clone, fr)
	if len(params) == 0 {
		return nil, fmt.Errorf("uncertainty: %q shares no floating parameters with the fit result", f.Name())
	}
	if err := checkConsistency(params, fr); err != nil {
		return nil, err
	}

	names := make([]string, len(params))
	mu := make([]float64, len(params))
	for i, p := range params {
		names[i] = p.Name()
		mu[i], _ = fr.Value(p.Name())
	}
	cov, err := fr.subCovariance(names)
	if err != nil {
		return nil, err
	}
	dist, ok := distmv.NewNormal(mu, cov, rand.NewSource(o.seed))
	if !ok {
		return nil, fmt.Errorf("uncertainty: covariance of %q is not positive definite", f.Name())
	}

	n := sampleCount(z)
	curves := make([][]float64, n)
	draw := make([]float64, len(params))
	for s := 0; s < n; s++ {
		dist.Rand(draw)
		for i, p := range params {
			v := draw[i]
			if v < p.Min() {
				v = p.Min()
			}
			if v > p.Max() {
				v = p.Max()
			}
			p.SetVal(v)
		}
		curve := make([]float64, len(xs))
		for i, xv := range xs {
			cx.SetVal(xv)
			curve[i] = clone.Core().Value(nil)
		}
		curves[s] = curve
	}

	band := &Band{
		X:      append([]float64(nil), xs...),
		Center: make([]float64, len(xs)),
		Lower:  make([]float64, len(xs)),
		Upper:  make([]float64, len(xs)),
	}

	saved := x.Val()
	for i, xv := range xs {
		x.SetVal(xv)
		band.Center[i] = f.Core().Value(nil)
	}
	x.SetVal(saved)

	// Central interval covering erf(z/sqrt(2)) of the sampled curves.
	coverage := math.Erf(z / math.Sqrt2)
	loQ := (1 - coverage) / 2
	hiQ := 1 - loQ
	column := make([]float64, n)
	for i := range xs {
		for s := 0; s < n; s++ {
			column[s] = curves[s][i]
		}
		sort.Float64s(column)
		band.Lower[i] = column[quantileIndex(loQ, n)]
		band.Upper[i] = column[quantileIndex(hiQ, n)]
	}
	return band, nil
}

func quantileIndex(q float64, n int) int {
	i := int(q * float64(n))
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i
}
