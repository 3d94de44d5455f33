// Package uncertainty propagates parameter uncertainties from a fit onto
// derived quantities of an expression graph: a linearized propagated error
// for a single value, and confidence bands over a scan variable computed
// either linearly or by sampling the parameter covariance.
package uncertainty

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitResult holds the outcome of a parameter estimation: the floating
// parameter names, their fitted values and symmetric errors, and the full
// covariance matrix in the same parameter order.
type FitResult struct {
	names  []string
	index  map[string]int
	values []float64
	errors []float64
	cov    *mat.SymDense
}

// NewFitResult assembles a fit result. A nil covariance is taken as
// uncorrelated and built from the squared errors.
func NewFitResult(names []string, values, errors []float64, cov *mat.SymDense) (*FitResult, error) {
	n := len(names)
	if len(values) != n || len(errors) != n {
		return nil, fmt.Errorf("uncertainty: %d names with %d values and %d errors", n, len(values), len(errors))
	}
	if cov == nil {
		cov = mat.NewSymDense(n, nil)
		for i, e := range errors {
			cov.SetSym(i, i, e*e)
		}
	} else if r := cov.SymmetricDim(); r != n {
		return nil, fmt.Errorf("uncertainty: covariance is %dx%d for %d parameters", r, r, n)
	}

	index := make(map[string]int, n)
	for i, nm := range names {
		if _, dup := index[nm]; dup {
			return nil, fmt.Errorf("uncertainty: duplicate parameter %q", nm)
		}
		index[nm] = i
	}
	return &FitResult{
		names:  append([]string(nil), names...),
		index:  index,
		values: append([]float64(nil), values...),
		errors: append([]float64(nil), errors...),
		cov:    cov,
	}, nil
}

// Names returns the floating parameter names in covariance order.
func (fr *FitResult) Names() []string {
	return append([]string(nil), fr.names...)
}

// Value returns the fitted value of a parameter.
func (fr *FitResult) Value(name string) (float64, bool) {
	i, ok := fr.index[name]
	if !ok {
		return 0, false
	}
	return fr.values[i], true
}

// Error returns the symmetric fit error of a parameter.
func (fr *FitResult) Error(name string) (float64, bool) {
	i, ok := fr.index[name]
	if !ok {
		return 0, false
	}
	return fr.errors[i], true
}

// Covariance returns the full covariance matrix.
func (fr *FitResult) Covariance() *mat.SymDense { return fr.cov }

// subCovariance extracts the covariance submatrix for the named parameters,
// in the given order.
func (fr *FitResult) subCovariance(names []string) (*mat.SymDense, error) {
	idx := make([]int, len(names))
	for k, nm := range names {
		i, ok := fr.index[nm]
		if !ok {
			return nil, fmt.Errorf("uncertainty: parameter %q not in fit result", nm)
		}
		idx[k] = i
	}
	out := mat.NewSymDense(len(names), nil)
	for a := range idx {
		for b := a; b < len(idx); b++ {
			out.SetSym(a, b, fr.cov.At(idx[a], idx[b]))
		}
	}
	return out, nil
}

// subCorrelation extracts the correlation submatrix for the named
// parameters: the covariance with unit diagonal.
func (fr *FitResult) subCorrelation(names []string) (*mat.SymDense, error) {
	cov, err := fr.subCovariance(names)
	if err != nil {
		return nil, err
	}
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			d := math.Sqrt(cov.At(a, a) * cov.At(b, b))
			if d == 0 {
				if a == b {
					out.SetSym(a, b, 1)
				}
				continue
			}
			out.SetSym(a, b, cov.At(a, b)/d)
		}
	}
	return out, nil
}
