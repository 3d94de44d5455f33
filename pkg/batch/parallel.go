package batch

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/orneryd/skuld/pkg/graph"
)

// ParallelEval evaluates f for n events across several workers. Each worker
// gets its own deep clone of the graph, so the dirty protocol never crosses
// goroutines and the caller's graph is left untouched.
//
// Buffers follow the same broadcast rule as Eval. workers <= 0 picks one
// worker per CPU. For graphs that are cheap to evaluate, Eval on a single
// goroutine is usually faster than paying for the clones.
func ParallelEval(f graph.Real, n int, inputs map[*graph.Var][]float64, out []float64, workers int) error {
	if n <= 0 {
		return fmt.Errorf("batch: event count must be positive, got %d", n)
	}
	if len(out) < n {
		return fmt.Errorf("batch: output buffer holds %d values, need %d", len(out), n)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers == 1 {
		return Eval(f, n, inputs, out)
	}

	for v, buf := range inputs {
		if len(buf) == 0 {
			return fmt.Errorf("batch: empty buffer for %q", v.Name())
		}
	}

	type job struct {
		root   graph.Real
		clones *graph.Set
		inputs map[*graph.Var][]float64
		lo, hi int
	}

	jobs := make([]job, 0, workers)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}

		clone, cloneSet, err := graph.CloneTree(f)
		if err != nil {
			return err
		}
		cloneInputs := make(map[*graph.Var][]float64, len(inputs))
		for v, buf := range inputs {
			cv, ok := cloneSet.Find(v.Name()).(*graph.Var)
			if !ok {
				return fmt.Errorf("batch: %q does not appear in the graph of %q", v.Name(), f.Name())
			}
			// Shift the window to the chunk so the per-worker clamp lands
			// on the same global index. A buffer exhausted before the chunk
			// starts degenerates to a broadcast of its last value.
			switch {
			case len(buf) == 1:
				cloneInputs[cv] = buf
			case lo >= len(buf):
				cloneInputs[cv] = buf[len(buf)-1:]
			default:
				cloneInputs[cv] = buf[lo:]
			}
		}
		jobs = append(jobs, job{root: clone, clones: cloneSet, inputs: cloneInputs, lo: lo, hi: hi})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j := jobs[i]
			errs[i] = Eval(j.root, j.hi-j.lo, j.inputs, out[j.lo:j.hi])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
