package graph

// SamplingAdvisor is implemented by nodes that can suggest evaluation points
// inside a plotted interval, for example around known discontinuities.
type SamplingAdvisor interface {
	// SamplingHint returns suggested evaluation points in (lo, hi), or nil
	// when the node has no preference.
	SamplingHint(obs *Var, lo, hi float64) []float64
}

// BinBoundaryAdvisor is implemented by nodes whose value is binned in an
// observable and that can expose the bin edges.
type BinBoundaryAdvisor interface {
	// BinBoundaries returns bin edges inside [lo, hi], or nil when the node
	// is not binned in obs.
	BinBoundaries(obs *Var, lo, hi float64) []float64
}

// SamplingHint queries f's sampling advice for obs on [lo, hi]. Nodes that
// do not implement the advisory interface yield no hint.
func SamplingHint(f Real, obs *Var, lo, hi float64) []float64 {
	if a, ok := f.(SamplingAdvisor); ok {
		return a.SamplingHint(obs, lo, hi)
	}
	return nil
}

// BinBoundaries queries f's bin edges for obs on [lo, hi]. Nodes that are
// not binned yield no edges.
func BinBoundaries(f Real, obs *Var, lo, hi float64) []float64 {
	if a, ok := f.(BinBoundaryAdvisor); ok {
		return a.BinBoundaries(obs, lo, hi)
	}
	return nil
}
