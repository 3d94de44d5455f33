// Package integrate provides the numeric integration kernels used by
// integral nodes.
//
// One-dimensional quadrature is built on fixed-order Gauss-Legendre rules
// from gonum (gonum.org/v1/gonum/integrate/quad), refined by adaptive
// interval bisection until the requested tolerance is met. Multi-dimensional
// integrals are assembled by the integral package as nested one-dimensional
// passes, which keeps parameterized inner bounds working for free.
//
// A process-wide default configuration is shared by all integrals that do
// not carry their own; it can be replaced wholesale (for example from a
// loaded config file).
//
// Example Usage:
//
//	v, err := integrate.Integrate1D(math.Sin, 0, math.Pi, nil) // ≈ 2
//
//	cfg := integrate.Config{RelTol: 1e-12, Points: 31}
//	v, err = integrate.Integrate1D(f, a, b, &cfg)
package integrate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// Config selects the integration algorithm and its tolerances. Zero fields
// fall back to the process default.
type Config struct {
	// Method is "adaptive" (bisect until tolerance, the default) or
	// "fixed" (a single fixed-order rule over the interval).
	Method string `yaml:"method"`

	// RelTol is the relative tolerance of the adaptive refinement.
	RelTol float64 `yaml:"rel_tol"`

	// AbsTol is the absolute tolerance floor, useful near zero.
	AbsTol float64 `yaml:"abs_tol"`

	// Points is the Gauss-Legendre order per panel.
	Points int `yaml:"points"`

	// MaxDepth bounds the adaptive bisection recursion.
	MaxDepth int `yaml:"max_depth"`
}

// defaults for unset Config fields.
const (
	defaultMethod   = "adaptive"
	defaultRelTol   = 1e-9
	defaultAbsTol   = 1e-12
	defaultPoints   = 21
	defaultMaxDepth = 24
)

var processDefault = Config{
	Method:   defaultMethod,
	RelTol:   defaultRelTol,
	AbsTol:   defaultAbsTol,
	Points:   defaultPoints,
	MaxDepth: defaultMaxDepth,
}

// DefaultConfig returns a copy of the process-wide default configuration.
func DefaultConfig() Config { return processDefault }

// SetDefault replaces the process-wide default configuration. Zero fields
// in cfg keep their built-in defaults.
func SetDefault(cfg Config) { processDefault = cfg.normalized() }

func (c Config) normalized() Config {
	if c.Method == "" {
		c.Method = defaultMethod
	}
	if c.RelTol <= 0 {
		c.RelTol = defaultRelTol
	}
	if c.AbsTol <= 0 {
		c.AbsTol = defaultAbsTol
	}
	if c.Points < 2 {
		c.Points = defaultPoints
	}
	if c.MaxDepth < 1 {
		c.MaxDepth = defaultMaxDepth
	}
	return c
}

// Validate checks a configuration for nonsensical settings.
func (c Config) Validate() error {
	if c.Method != "" && c.Method != "adaptive" && c.Method != "fixed" {
		return fmt.Errorf("integrate: unknown method %q (want \"adaptive\" or \"fixed\")", c.Method)
	}
	if c.RelTol < 0 || c.AbsTol < 0 {
		return fmt.Errorf("integrate: negative tolerance")
	}
	if c.Points < 0 || c.MaxDepth < 0 {
		return fmt.Errorf("integrate: negative points or depth")
	}
	return nil
}

// Integrate1D computes the integral of f over [lo, hi] with the given
// configuration (nil means the process default). A reversed interval flips
// the sign, degenerate intervals integrate to zero.
func Integrate1D(f func(float64) float64, lo, hi float64, cfg *Config) (float64, error) {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, fmt.Errorf("integrate: invalid interval [%g, %g]", lo, hi)
	}
	c := processDefault
	if cfg != nil {
		c = cfg.normalized()
	}
	if lo == hi {
		return 0, nil
	}
	sign := 1.0
	if lo > hi {
		lo, hi = hi, lo
		sign = -1
	}

	if c.Method == "fixed" {
		return sign * gauss(f, lo, hi, c.Points), nil
	}
	whole := gauss(f, lo, hi, c.Points)
	return sign * adapt(f, lo, hi, whole, c, c.MaxDepth), nil
}

// gauss applies a single fixed-order Gauss-Legendre rule.
func gauss(f func(float64) float64, lo, hi float64, n int) float64 {
	return quad.Fixed(f, lo, hi, n, quad.Legendre{}, 0)
}

// adapt bisects until the halved estimate agrees with the whole-interval
// estimate within tolerance. Depth exhaustion accepts the current refinement;
// for a fixed-order rule of this order that only happens on pathologically
// spiky integrands.
func adapt(f func(float64) float64, lo, hi, whole float64, c Config, depth int) float64 {
	mid := lo + (hi-lo)/2
	left := gauss(f, lo, mid, c.Points)
	right := gauss(f, mid, hi, c.Points)
	split := left + right

	diff := math.Abs(split - whole)
	if diff <= math.Max(c.AbsTol, c.RelTol*math.Abs(split)) || depth <= 0 {
		return split
	}
	return adapt(f, lo, mid, left, c, depth-1) + adapt(f, mid, hi, right, c, depth-1)
}
