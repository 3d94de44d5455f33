package integral

import (
	"fmt"

	"github.com/orneryd/skuld/pkg/graph"
)

// runningRange names the parameterized range a running integral sweeps.
const runningRange = "running"

// CreateRunning builds a running integral of f: a node whose value at the
// current point of each variable in vars is the integral of f from the
// variable's lower domain limit up to that point. With one variable and a
// density as integrand this is its cumulative distribution.
//
// Internally each variable x is replaced by a primed clone integrated over
// the parameterized range [x.Min(), x], so moving x moves the upper bound
// and dirties the result through the usual propagation.
func CreateRunning(f graph.Real, vars *graph.Set, opts ...Option) (graph.Real, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.rangeName != "" {
		return nil, fmt.Errorf("%s: running integrals define their own sweep range", f.Name())
	}

	origVars := vars.Vars()
	if len(origVars) != vars.Len() {
		return nil, fmt.Errorf("%s: running integrals require leaf variables", f.Name())
	}
	for _, x := range origVars {
		if !graph.DependsOn(f, x) {
			return nil, fmt.Errorf("%s: running integral variable %q is not a dependent", f.Name(), x.Name())
		}
	}

	clone, cloneSet, err := graph.CloneTree(f)
	if err != nil {
		return nil, err
	}

	primed := graph.NewSet()
	repl := make(map[string]graph.Real, len(origVars))
	primes := make([]*graph.Var, len(origVars))
	for i, x := range origVars {
		xp := graph.NewVar(x.Name()+"_prime", x.Val(), x.Min(), x.Max())
		primes[i] = xp
		primed.Add(xp)
		repl[x.Name()] = xp
	}
	graph.RecursiveRedirect(clone, repl)

	// The sweep range keeps referencing the original variable as its moving
	// upper bound; it is defined after the redirect so the redirect cannot
	// rewrite the bound onto the prime itself.
	for i, x := range origVars {
		primes[i].SetParamRange(runningRange, graph.NewNamedConst(x.Name()+"_lowbound", x.Min()), x)
	}

	ri, err := createObj(clone, primed, o.normSet, runningRange, o)
	if err != nil {
		return nil, err
	}

	ri.Core().SetName(f.Name() + "_RUNINT" + NameSuffix(vars, o.normSet, "", true))
	ri.Core().SetTitle("Running integral of " + f.Title())
	ri.Core().AddOwnedComponents(cloneSet.Items()...)
	ri.Core().AddOwnedComponents(primed.Items()...)
	return ri, nil
}
