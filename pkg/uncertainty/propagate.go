package uncertainty

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/orneryd/skuld/pkg/graph"
)

// consistencyFraction is the tolerated drift between a parameter's fitted
// value and its current graph value, as a fraction of the fit error.
const consistencyFraction = 0.01

// Option configures error propagation and band construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
	seed   uint64
}

// WithLogger routes warnings (bound clipping, degenerate parameters) to the
// given logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithSeed fixes the random seed used by sampling bands.
func WithSeed(seed uint64) Option { return func(o *options) { o.seed = seed } }

func buildOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop(), seed: 1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// floatingParams returns the leaf variables of f that float in the fit
// result, in covariance order.
func floatingParams(f graph.Real, fr *FitResult) []*graph.Var {
	leaves := graph.Leaves(f)
	var out []*graph.Var
	for _, nm := range fr.names {
		if v, ok := leaves.Find(nm).(*graph.Var); ok {
			out = append(out, v)
		}
	}
	return out
}

// checkConsistency verifies that each parameter's current graph value still
// matches its fitted value to within a percent of the fit error. A larger
// drift means the covariance no longer describes the graph's state.
func checkConsistency(params []*graph.Var, fr *FitResult) error {
	for _, p := range params {
		fit, _ := fr.Value(p.Name())
		sigma, _ := fr.Error(p.Name())
		if sigma <= 0 {
			continue
		}
		if math.Abs(fit-p.Val()) > consistencyFraction*sigma {
			return fmt.Errorf("uncertainty: parameter %q moved since the fit: fitted %g, current %g, error %g",
				p.Name(), fit, p.Val(), sigma)
		}
	}
	return nil
}

// PropagatedError linearly propagates the fit result's covariance onto f at
// the graph's current state.
//
// Each floating parameter is varied by plus and minus one fit error, clipped
// to the parameter's domain when a variation would leave it, and the half
// difference of the two function values forms the gradient component. The
// result is sqrt(F^T C F) with C the correlation submatrix of the involved
// parameters.
func PropagatedError(f graph.Real, fr *FitResult, opts ...Option) (float64, error) {
	o := buildOptions(opts)

	params := floatingParams(f, fr)
	if len(params) == 0 {
		return 0, nil
	}
	if err := checkConsistency(params, fr); err != nil {
		return 0, err
	}

	grad := make([]float64, len(params))
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
		center := p.Val()
		sigma, _ := fr.Error(p.Name())

		up := center + sigma
		if up > p.Max() {
			o.logger.Warn("variation clipped to domain",
				zap.String("parameter", p.Name()),
				zap.Float64("wanted", up),
				zap.Float64("clipped", p.Max()))
			up = p.Max()
		}
		down := center - sigma
		if down < p.Min() {
			o.logger.Warn("variation clipped to domain",
				zap.String("parameter", p.Name()),
				zap.Float64("wanted", down),
				zap.Float64("clipped", p.Min()))
			down = p.Min()
		}

		var plus, minus float64
		func() {
			defer p.SetVal(center)
			p.SetVal(up)
			plus = f.Core().Value(nil)
			p.SetVal(down)
			minus = f.Core().Value(nil)
		}()

		grad[i] = (plus - minus) / 2
	}

	corr, err := fr.subCorrelation(names)
	if err != nil {
		return 0, err
	}

	g := mat.NewVecDense(len(grad), grad)
	var cg mat.VecDense
	cg.MulVec(corr, g)
	sum := mat.Dot(g, &cg)
	if sum < 0 {
		// Exact cancellations land a hair below zero in floating point.
		if sum > -1e-12 {
			sum = 0
		} else {
			return 0, fmt.Errorf("uncertainty: covariance of %q is not positive semi-definite", f.Name())
		}
	}
	return math.Sqrt(sum), nil
}
