// Package batch evaluates an expression graph node over arrays of input
// values, one output per event, without disturbing the graph's state.
//
// The adapter freezes each buffered leaf in always-clean mode, side-loads
// the per-event value into its cache slot and pulls the root through the
// normal caching protocol. Whatever happens during the sweep, the leaves'
// previous cache contents, operating modes and dirty flags are restored
// before returning.
package batch

import (
	"fmt"

	"github.com/orneryd/skuld/pkg/graph"
)

type leafState struct {
	value      float64
	mode       graph.OperMode
	valueDirty bool
	shapeDirty bool
}

// Eval evaluates f for n events. Each buffered variable supplies one value
// per event; a shorter buffer is broadcast by clamping the event index to
// its last element, so a length-1 buffer acts as a constant. Results are
// written to out, which must hold at least n values.
func Eval(f graph.Real, n int, inputs map[*graph.Var][]float64, out []float64) error {
	if n <= 0 {
		return fmt.Errorf("batch: event count must be positive, got %d", n)
	}
	if len(out) < n {
		return fmt.Errorf("batch: output buffer holds %d values, need %d", len(out), n)
	}

	vars := make([]*graph.Var, 0, len(inputs))
	bufs := make([][]float64, 0, len(inputs))
	for v, buf := range inputs {
		if len(buf) == 0 {
			return fmt.Errorf("batch: empty buffer for %q", v.Name())
		}
		vars = append(vars, v)
		bufs = append(bufs, buf)
	}

	saved := make([]leafState, len(vars))
	for i, v := range vars {
		nd := v.Core()
		saved[i] = leafState{
			value:      nd.CachedValue(),
			mode:       nd.OperMode(),
			valueDirty: nd.IsValueDirty(),
			shapeDirty: nd.IsShapeDirty(),
		}
		nd.SetOperMode(graph.AlwaysClean)
	}
	defer func() {
		for i, v := range vars {
			nd := v.Core()
			nd.SetOperMode(saved[i].mode)
			nd.ForceValue(saved[i].value, true)
			nd.SetDirtyFlags(saved[i].valueDirty, saved[i].shapeDirty)
		}
	}()

	for ev := 0; ev < n; ev++ {
		for i, v := range vars {
			buf := bufs[i]
			idx := ev
			if idx > len(buf)-1 {
				idx = len(buf) - 1
			}
			v.Core().ForceValue(buf[idx], true)
		}
		out[ev] = f.Core().Value(nil)
	}
	return nil
}
