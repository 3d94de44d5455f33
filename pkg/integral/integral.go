// Package integral builds integral nodes over expression graphs.
//
// Create is the entry point: given a function node and a set of variables to
// integrate, it assembles one or more integral nodes wired into the same
// graph. The interesting work is the decomposition: variables with ranges
// parameterized by other integrated variables must be integrated inner-to-
// outer, and requests over several named ranges become a sum of per-range
// integrals after an overlap check.
//
// Features:
//   - Recursive decomposition of interdependent parameterized ranges
//   - Multi-range integrals with overlap rejection
//   - Analytic-integral hook for integrands that can do better than
//     numeric quadrature
//   - Optional interpolating parameter cache and persistent result store
//   - Running integrals (one-sided cumulative integrals) built from
//     parameterized ranges
//
// Example Usage:
//
//	x := graph.NewVar("x", 0, 0, 1)
//	f := graph.NewFunc("f", "x^2", func(v []float64) float64 {
//		return v[0] * v[0]
//	}, x)
//
//	ig, err := integral.Create(f, graph.NewSet(x))
//	// ig.Core().Value(nil) == 1/3
package integral

import (
	"math"

	"github.com/orneryd/skuld/pkg/cache"
	"github.com/orneryd/skuld/pkg/graph"
	"github.com/orneryd/skuld/pkg/integrate"
)

// AnalyticIntegrand is implemented by nodes that can integrate themselves
// analytically over some variable sets. The hook returns false when the
// requested combination is not supported analytically, in which case the
// integral falls back to numeric quadrature.
type AnalyticIntegrand interface {
	graph.Real
	AnalyticalIntegral(vars *graph.Set, rangeName string) (float64, bool)
}

// Integral is an expression node whose value is the integral of its
// integrand over a set of variables, optionally restricted to a named range
// and normalized against a normalization set.
//
// Bounds are resolved lazily at evaluation time, so a range parameterized by
// a variable that an enclosing integral is currently sweeping reads the
// sweep's current point.
type Integral struct {
	graph.Node
	integrand graph.Real
	vars      *graph.Set
	normSet   *graph.Set
	rangeName string
	cfg       *integrate.Config
	store     *cache.Store
}

// newIntegral wires an integral node. Servers are the integrand, the
// integrated variables (their domains shape the result) and any bound
// functions of parameterized ranges (their values move the result).
func newIntegral(name, title string, integrand graph.Real, vars, normSet *graph.Set,
	rangeName string, cfg *integrate.Config, store *cache.Store) *Integral {

	servers := []graph.Real{integrand}
	for _, v := range vars.Vars() {
		servers = append(servers, v)
		r := v.RangeSpec(rangeName)
		if r.Parameterized() {
			servers = append(servers, r.Lo, r.Hi)
		}
	}

	ig := &Integral{
		integrand: integrand,
		vars:      vars,
		normSet:   normSet,
		rangeName: rangeName,
		cfg:       cfg,
		store:     store,
	}
	ig.Init(ig, name, title, servers...)
	return ig
}

// Integrand returns the node being integrated.
func (ig *Integral) Integrand() graph.Real { return ig.integrand }

// Vars returns the integration variable set.
func (ig *Integral) Vars() *graph.Set { return ig.vars }

// RangeName returns the named range the integral is restricted to, if any.
func (ig *Integral) RangeName() string { return ig.rangeName }

// Evaluate computes the integral at the graph's current state.
func (ig *Integral) Evaluate() float64 {
	if ig.vars.Len() == 0 {
		// Normalization anchor: the integrand itself, evaluated in the
		// requested normalization context.
		return ig.integrand.Core().Value(ig.normSet)
	}

	if a, ok := ig.integrand.(AnalyticIntegrand); ok {
		if v, done := a.AnalyticalIntegral(ig.vars, ig.rangeName); done {
			return v
		}
	}

	var key cache.Key
	if ig.store != nil {
		key = cache.Fingerprint(ig.Name(), ig.freeParamValues())
		if v, found, err := ig.store.Get(key); err == nil && found {
			return v
		}
	}

	v := ig.integrateNumeric()

	if ig.store != nil && !math.IsNaN(v) {
		// Best effort; a failed write only costs a future recomputation.
		_ = ig.store.Put(key, v)
	}
	return v
}

// integrateNumeric sweeps the integration variables as nested 1D passes,
// restoring their values afterwards.
func (ig *Integral) integrateNumeric() float64 {
	vars := ig.vars.Vars()
	saved := make([]float64, len(vars))
	for i, v := range vars {
		saved[i] = v.Val()
	}
	defer func() {
		for i, v := range vars {
			v.SetVal(saved[i])
		}
	}()
	return ig.integrateDim(vars, 0)
}

func (ig *Integral) integrateDim(vars []*graph.Var, d int) float64 {
	v := vars[d]
	lo, hi := v.Range(ig.rangeName)
	f := func(x float64) float64 {
		v.SetVal(x)
		if d == len(vars)-1 {
			return ig.integrand.Core().Value(ig.normSet)
		}
		return ig.integrateDim(vars, d+1)
	}
	val, err := integrate.Integrate1D(f, lo, hi, ig.cfg)
	if err != nil {
		graph.LogEvalError(ig, err.Error())
		return math.NaN()
	}
	return val
}

// freeParamValues snapshots the current values of every leaf variable the
// integral's value depends on besides the integrated ones. Together with
// the integral's deterministic name this pins down the result.
func (ig *Integral) freeParamValues() map[string]float64 {
	out := make(map[string]float64)
	for _, p := range graph.Parameters(ig, ig.vars).Vars() {
		out[p.Name()] = p.Val()
	}
	return out
}

// CloneWith reconstructs the integral over a remapped server list. The
// integrand is the first server; integrated variables are matched by name.
// The remapped servers are adopted verbatim, bound nodes of parameterized
// ranges included, so a deep clone keeps sweeping its own copies.
func (ig *Integral) CloneWith(name string, servers []graph.Real) graph.Real {
	vars := graph.NewSet()
	for _, v := range ig.vars.Items() {
		for _, s := range servers[1:] {
			if s.Name() == v.Name() {
				vars.Add(s)
				break
			}
		}
	}
	out := &Integral{
		integrand: servers[0],
		vars:      vars,
		normSet:   ig.normSet,
		rangeName: ig.rangeName,
		cfg:       ig.cfg,
		store:     ig.store,
	}
	out.Init(out, name, ig.Title(), servers...)
	return out
}

// RedirectHook keeps the typed integrand reference in sync when servers are
// redirected.
func (ig *Integral) RedirectHook(repl map[string]graph.Real) {
	if nw, ok := repl[ig.integrand.Name()]; ok {
		ig.integrand = nw
	}
	for _, v := range ig.vars.Items() {
		if nw, ok := repl[v.Name()]; ok {
			ig.vars.Remove(v)
			ig.vars.Add(nw)
		}
	}
}

// Sum adds its terms; it is the node produced for multi-range integrals and
// owns its per-range components.
type Sum struct {
	graph.Node
}

// NewSum creates an addition node over the given terms.
func NewSum(name, title string, terms ...graph.Real) *Sum {
	s := &Sum{}
	s.Init(s, name, title, terms...)
	return s
}

// Evaluate sums the current term values.
func (s *Sum) Evaluate() float64 {
	total := 0.0
	for _, t := range s.Servers() {
		total += t.Core().Value(nil)
	}
	return total
}

// CloneWith clones the sum over remapped terms.
func (s *Sum) CloneWith(name string, servers []graph.Real) graph.Real {
	return NewSum(name, s.Title(), servers...)
}
