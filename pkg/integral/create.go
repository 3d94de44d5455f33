package integral

import (
	"fmt"
	"strings"

	"github.com/orneryd/skuld/pkg/cache"
	"github.com/orneryd/skuld/pkg/graph"
	"github.com/orneryd/skuld/pkg/integrate"
)

// AttrCacheParams marks a function node whose integrals should be wrapped
// in an interpolating cache over the named parameters. The attribute value
// is a comma-separated parameter name list.
const AttrCacheParams = "cacheParams"

// SetCacheParams requests that integrals of f be cached and interpolated in
// the given parameters instead of recomputed on every parameter change.
func SetCacheParams(f graph.Real, params ...*graph.Var) error {
	names := make([]string, 0, len(params))
	for _, p := range params {
		if !graph.DependsOn(f, p) {
			return fmt.Errorf("cache parameter %q is not a dependent of %q", p.Name(), f.Name())
		}
		names = append(names, p.Name())
	}
	f.Core().SetAttribute(AttrCacheParams, strings.Join(names, ","))
	return nil
}

// Option configures integral creation.
type Option func(*options)

type options struct {
	normSet   *graph.Set
	rangeName string
	cfg       *integrate.Config
	store     *cache.Store
}

// WithNormSet attaches a normalization set to the innermost integration
// step.
func WithNormSet(ns *graph.Set) Option { return func(o *options) { o.normSet = ns } }

// WithRange restricts the integral to a named range. A comma-separated list
// produces a sum over the listed ranges, provided they do not overlap.
func WithRange(name string) Option { return func(o *options) { o.rangeName = name } }

// WithConfig overrides the numeric integrator configuration.
func WithConfig(cfg integrate.Config) Option { return func(o *options) { o.cfg = &cfg } }

// WithStore persists integral results keyed by parameter fingerprint.
func WithStore(s *cache.Store) Option { return func(o *options) { o.store = s } }

// Create builds an integral of f over vars. The returned node is owned by
// the caller; component nodes created during decomposition are owned by the
// returned node and released with it.
//
// Variables whose range bounds depend on other variables in vars are
// integrated before the variables they depend on. A circular bound
// dependency is reported as an error.
func Create(f graph.Real, vars *graph.Set, opts ...Option) (graph.Real, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	for _, item := range vars.Items() {
		if _, ok := item.(*graph.Var); !ok {
			return nil, fmt.Errorf("%s: cannot integrate over %q, only leaf variables are integrable", f.Name(), item.Name())
		}
	}

	if strings.Contains(o.rangeName, ",") {
		return createMultiRange(f, vars, o)
	}
	return createObj(f, vars, o.normSet, o.rangeName, o)
}

// createMultiRange builds a sum of per-range integrals after checking that
// no two of the requested ranges overlap in the integrated variables.
func createMultiRange(f graph.Real, vars *graph.Set, o *options) (graph.Real, error) {
	ranges := strings.Split(o.rangeName, ",")
	if overlap, a, b := rangesOverlap(vars, ranges); overlap {
		return nil, fmt.Errorf("%s: requested ranges %q and %q overlap, integrals would double count", f.Name(), a, b)
	}

	terms := make([]graph.Real, 0, len(ranges))
	for _, rn := range ranges {
		term, err := createObj(f, vars, o.normSet, rn, o)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}

	name := f.Name() + NameSuffix(vars, o.normSet, o.rangeName, false)
	sum := NewSum(name, "Integral of "+f.Title(), terms...)
	sum.AddOwnedComponents(terms...)
	return sum, nil
}

// rangesOverlap reports whether any pair of the named ranges overlaps. Two
// ranges overlap when their intervals intersect in every integrated
// variable; sharing a single boundary point does not count.
func rangesOverlap(vars *graph.Set, ranges []string) (bool, string, string) {
	vs := vars.Vars()
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			separated := false
			for _, v := range vs {
				lo1, hi1 := v.Range(ranges[i])
				lo2, hi2 := v.Range(ranges[j])
				if hi1 <= lo2 || hi2 <= lo1 {
					separated = true
					break
				}
			}
			if !separated {
				return true, ranges[i], ranges[j]
			}
		}
	}
	return false, "", ""
}

// createObj performs the recursive decomposition for a single named range.
// Each pass selects the innermost integrable subset, builds an integral
// over it and feeds that integral to the next pass. The normalization set
// applies to the innermost step only; outer steps integrate an already
// normalized object.
func createObj(f graph.Real, vars *graph.Set, normSet *graph.Set, rangeName string, o *options) (graph.Real, error) {
	if vars.Len() == 0 {
		name := f.Name() + NameSuffix(vars, normSet, rangeName, false)
		return newIntegral(name, "Integral of "+f.Title(), f, graph.NewSet(), normSet, rangeName, o.cfg, o.store), nil
	}

	pending := vars.Clone()
	integrand := f
	curNorm := normSet
	var built *Integral

	for pending.Len() > 0 {
		inner := findInnerMost(pending, rangeName)
		if inner.Len() == 0 {
			return nil, fmt.Errorf("%s: cannot integrate over %s, range parameterization is circular", f.Name(), pending.NameString())
		}

		name := integrand.Name() + NameSuffix(inner, curNorm, rangeName, false)
		next := newIntegral(name, "Integral of "+f.Title(), integrand, inner, curNorm, rangeName, o.cfg, o.store)
		if built != nil {
			next.AddOwnedComponents(built)
		}
		built = next
		integrand = next
		curNorm = nil
		pending.RemoveAll(inner)
	}

	return applyCacheParams(f, built, vars)
}

// findInnerMost returns the subset of pending that can be integrated in
// this pass. Variables serving as range bound parameters of other pending
// variables must stay for an outer pass; everything else, including
// variables whose own bounds depend on those parameters, goes inner so
// the bounds are swept by the enclosing integral.
func findInnerMost(pending *graph.Set, rangeName string) *graph.Set {
	fixed := pending.Clone()
	paramRange := graph.NewSet()
	servingAsParam := graph.NewSet()

	for _, v := range pending.Vars() {
		r := v.RangeSpec(rangeName)
		if !r.Parameterized() {
			continue
		}
		bound := r.BoundObservables(pending)
		if bound.Len() == 0 {
			// Bounds depend only on external parameters; the range is
			// effectively fixed for this decomposition.
			continue
		}
		paramRange.Add(v)
		fixed.Remove(v)
		servingAsParam.AddAll(bound)
	}

	inner := graph.NewSet()
	for _, v := range fixed.Items() {
		if !servingAsParam.Contains(v) {
			inner.Add(v)
		}
	}
	for _, v := range paramRange.Items() {
		if !servingAsParam.Contains(v) {
			inner.Add(v)
		}
	}
	return inner
}

// applyCacheParams wraps the finished integral in an interpolating cache
// when the original function carries the cache parameter attribute.
func applyCacheParams(f graph.Real, built *Integral, vars *graph.Set) (graph.Real, error) {
	spec := f.Core().Attribute(AttrCacheParams)
	if spec == "" {
		return built, nil
	}

	free := graph.Parameters(built, vars)
	cacheParams := graph.NewSet()
	for _, name := range strings.Split(spec, ",") {
		if p := free.Find(name); p != nil {
			cacheParams.Add(p)
		}
	}
	if cacheParams.Len() == 0 {
		return built, nil
	}

	name := built.Name() + "_CACHE_[" + cacheParams.NameString() + "]"
	cached := NewCachedReal(name, built.Title(), built, cacheParams)
	cached.AddOwnedComponents(built)
	if built.OperMode() == graph.AlwaysDirty {
		cached.SetOperMode(graph.AlwaysDirty)
	}
	return cached, nil
}

// NameSuffix builds the deterministic name suffix identifying an integral
// configuration: the integrated variables with optional range, then the
// normalization set. Variable names are sorted, so equal configurations
// produce equal names.
func NameSuffix(vars, normSet *graph.Set, rangeName string, omitEmpty bool) string {
	var b strings.Builder
	if vars.Len() > 0 {
		b.WriteString("_Int[")
		b.WriteString(vars.NameString())
		if rangeName != "" {
			b.WriteString("|")
			b.WriteString(rangeName)
		}
		b.WriteString("]")
	} else if !omitEmpty {
		b.WriteString("_Int[]")
	}
	if normSet != nil && normSet.Len() > 0 {
		b.WriteString("_Norm[")
		b.WriteString(normSet.NameString())
		b.WriteString("]")
	}
	return b.String()
}
