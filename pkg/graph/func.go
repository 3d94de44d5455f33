package graph

// Func is a formula node: a scalar function of its servers. The callback
// receives the current server values in registration order, so a Func keeps
// working unchanged when its servers are redirected or cloned.
//
// Example:
//
//	gauss := graph.NewFunc("gauss", "unit gaussian", func(v []float64) float64 {
//		z := (v[0] - v[1]) / v[2]
//		return math.Exp(-0.5*z*z) / (v[2] * math.Sqrt(2*math.Pi))
//	}, x, mean, sigma)
type Func struct {
	Node
	fn   func(args []float64) float64
	args []float64
}

// NewFunc creates a formula node over the given servers.
func NewFunc(name, title string, fn func(args []float64) float64, servers ...Real) *Func {
	f := &Func{fn: fn}
	f.Init(f, name, title, servers...)
	f.args = make([]float64, len(f.servers))
	return f
}

// Evaluate reads current server values and applies the formula.
func (f *Func) Evaluate() float64 {
	for i, s := range f.servers {
		f.args[i] = s.Core().Value(nil)
	}
	return f.fn(f.args)
}

// CloneWith clones the formula over a remapped server list.
func (f *Func) CloneWith(name string, servers []Real) Real {
	return NewFunc(name, f.Title(), f.fn, servers...)
}
