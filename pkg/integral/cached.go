package integral

import (
	"sort"

	"github.com/orneryd/skuld/pkg/cache"
	"github.com/orneryd/skuld/pkg/graph"
)

const (
	defaultInterpOrder = 2
	defaultGridBins    = 32
	memoCacheSize      = 4096
)

// CachedReal caches a function on a grid over selected parameters and
// answers queries by polynomial interpolation between grid points. It is
// produced by Create for functions tagged with cache parameters, where the
// wrapped node is an integral that is expensive to reevaluate on every
// parameter change.
//
// Grid values are filled lazily and memoized. Changing a non-cached
// dependent of the wrapped function flushes the memo; changing a cached
// parameter only moves the interpolation point.
type CachedReal struct {
	graph.Node
	fn     graph.Real
	params []*graph.Var
	order  int
	bins   int
	grids  [][]float64
	memo   *cache.ResultCache
	// values of the non-cached dependents at the time the memo was filled
	snapshot map[string]float64
}

// NewCachedReal wraps fn in an interpolating cache over params. Each
// parameter's grid spans its domain limits with a fixed number of bins.
func NewCachedReal(name, title string, fn graph.Real, params *graph.Set) *CachedReal {
	ps := params.Vars()
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name() < ps[j].Name() })

	c := &CachedReal{
		fn:     fn,
		params: ps,
		order:  defaultInterpOrder,
		bins:   defaultGridBins,
		memo:   cache.NewResultCache(memoCacheSize, 0),
	}
	servers := []graph.Real{fn}
	for _, p := range ps {
		servers = append(servers, p)
	}
	c.Init(c, name, title, servers...)
	c.rebuildGrids()
	return c
}

// SetInterpolationOrder sets the polynomial interpolation order. Order n
// interpolates through n+1 grid points per parameter.
func (c *CachedReal) SetInterpolationOrder(order int) {
	if order < 1 {
		order = 1
	}
	c.order = order
	c.SetValueDirty()
}

// SetGridBins sets the number of grid intervals per parameter and discards
// cached grid values.
func (c *CachedReal) SetGridBins(bins int) {
	if bins < c.order {
		bins = c.order
	}
	c.bins = bins
	c.rebuildGrids()
	c.memo.Clear()
	c.SetValueDirty()
}

func (c *CachedReal) rebuildGrids() {
	c.grids = make([][]float64, len(c.params))
	for i, p := range c.params {
		lo, hi := p.Min(), p.Max()
		step := (hi - lo) / float64(c.bins)
		g := make([]float64, c.bins+1)
		for k := range g {
			g[k] = lo + float64(k)*step
		}
		c.grids[i] = g
	}
}

// Evaluate interpolates the wrapped function at the current parameter
// point, filling grid values on demand.
func (c *CachedReal) Evaluate() float64 {
	c.checkSnapshot()

	point := make([]float64, len(c.params))
	for i, p := range c.params {
		point[i] = p.Val()
	}

	saved := make([]float64, len(c.params))
	for i, p := range c.params {
		saved[i] = p.Val()
	}
	defer func() {
		for i, p := range c.params {
			p.SetVal(saved[i])
		}
	}()

	return c.interp(0, point, make([]float64, len(c.params)))
}

// checkSnapshot flushes the memo when any non-cached dependent moved since
// the grid was last filled.
func (c *CachedReal) checkSnapshot() {
	cachedSet := graph.NewSet()
	for _, p := range c.params {
		cachedSet.Add(p)
	}
	current := make(map[string]float64)
	for _, p := range graph.Parameters(c.fn, cachedSet).Vars() {
		current[p.Name()] = p.Val()
	}

	if c.snapshot != nil && len(current) == len(c.snapshot) {
		same := true
		for k, v := range current {
			if old, ok := c.snapshot[k]; !ok || old != v {
				same = false
				break
			}
		}
		if same {
			return
		}
	}
	c.memo.Clear()
	c.snapshot = current
}

// interp performs tensor-product Lagrange interpolation, one dimension per
// recursion level. coords accumulates the grid point under construction.
func (c *CachedReal) interp(dim int, point, coords []float64) float64 {
	if dim == len(c.params) {
		return c.gridValue(coords)
	}

	grid := c.grids[dim]
	i0 := c.stencilStart(grid, point[dim])
	n := c.order + 1

	total := 0.0
	for a := 0; a < n; a++ {
		xa := grid[i0+a]
		w := 1.0
		for b := 0; b < n; b++ {
			if b == a {
				continue
			}
			xb := grid[i0+b]
			w *= (point[dim] - xb) / (xa - xb)
		}
		coords[dim] = xa
		total += w * c.interp(dim+1, point, coords)
	}
	return total
}

// stencilStart picks the first index of an order+1 point stencil bracketing
// x, clipped to the grid.
func (c *CachedReal) stencilStart(grid []float64, x float64) int {
	i := sort.SearchFloat64s(grid, x)
	start := i - (c.order+1)/2
	if start < 0 {
		start = 0
	}
	if start > len(grid)-c.order-1 {
		start = len(grid) - c.order - 1
	}
	return start
}

// gridValue evaluates the wrapped function at a grid point, memoized.
func (c *CachedReal) gridValue(coords []float64) float64 {
	pt := make(map[string]float64, len(coords))
	for i, p := range c.params {
		pt[p.Name()] = coords[i]
	}
	key := cache.Fingerprint(c.Name(), pt)
	if v, ok := c.memo.Get(key); ok {
		return v
	}

	for i, p := range c.params {
		p.SetVal(coords[i])
	}
	v := c.fn.Core().Value(nil)
	c.memo.Put(key, v)
	return v
}

// CloneWith clones the cache wrapper around a remapped function and
// parameter list. The clone starts with an empty memo.
func (c *CachedReal) CloneWith(name string, servers []graph.Real) graph.Real {
	params := graph.NewSet()
	for _, p := range c.params {
		for _, s := range servers[1:] {
			if s.Name() == p.Name() {
				params.Add(s)
				break
			}
		}
	}
	nc := NewCachedReal(name, c.Title(), servers[0], params)
	nc.order = c.order
	nc.bins = c.bins
	nc.rebuildGrids()
	return nc
}

// RedirectHook keeps the typed references in sync on server redirects.
func (c *CachedReal) RedirectHook(repl map[string]graph.Real) {
	if nw, ok := repl[c.fn.Name()]; ok {
		c.fn = nw
	}
	for i, p := range c.params {
		if nw, ok := repl[p.Name()]; ok {
			if v, isVar := nw.(*graph.Var); isVar {
				c.params[i] = v
			}
		}
	}
	c.memo.Clear()
	c.snapshot = nil
}
