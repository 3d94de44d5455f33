// Package projection builds projections of expression graph functions: a
// deep clone of the source function, anchored on the caller's variables and
// integrated over the variables to be projected out. The result is a new
// function of the remaining dependent variables, leaving the source graph
// untouched.
package projection

import (
	"fmt"

	"github.com/orneryd/skuld/pkg/graph"
	"github.com/orneryd/skuld/pkg/integral"
	"github.com/orneryd/skuld/pkg/integrate"
)

// Result holds a built projection. Projection is the node to evaluate;
// Clones owns every node created for it and must stay alive as long as the
// projection is in use. NormSet is the normalization context the projection
// should be evaluated in.
type Result struct {
	Projection graph.Real
	Clones     *graph.Set
	NormSet    *graph.Set
}

// Option configures projection creation.
type Option func(*options)

type options struct {
	condObs   *graph.Set
	rangeName string
	cfg       *integrate.Config
}

// WithConditionalObservables marks observables the projection is
// conditional on. They are excluded from the normalization set.
func WithConditionalObservables(obs *graph.Set) Option {
	return func(o *options) { o.condObs = obs }
}

// WithRange restricts the projection integral to a named range.
func WithRange(name string) Option { return func(o *options) { o.rangeName = name } }

// WithConfig overrides the numeric integrator configuration for the
// projection integral.
func WithConfig(cfg integrate.Config) Option { return func(o *options) { o.cfg = &cfg } }

// Create projects projVars out of f, leaving a function of depVars.
//
// Every variable in depVars must be a dependent of f. Variables in projVars
// that f does not depend on are ignored; integrating over them would only
// scale the result. After cloning, the clone's leaves are redirected to the
// caller's variables, so moving a depVar moves the projection.
func Create(f graph.Real, depVars, projVars *graph.Set, opts ...Option) (*Result, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	for _, v := range depVars.Items() {
		if !graph.DependsOn(f, v) {
			return nil, fmt.Errorf("%s: dependent variable %q is not a dependent", f.Name(), v.Name())
		}
	}
	if depVars.Overlaps(projVars) {
		return nil, fmt.Errorf("%s: dependent and projected variable sets intersect", f.Name())
	}

	// Projected variables the function never sees contribute nothing.
	projected := graph.NewSet()
	for _, v := range projVars.Items() {
		if graph.DependsOn(f, v) {
			projected.Add(v)
		}
	}

	clone, cloneSet, err := graph.CloneTree(f)
	if err != nil {
		return nil, err
	}

	// Anchor the clone on the caller's variables.
	repl := make(map[string]graph.Real)
	addRepl := func(s *graph.Set) {
		if s == nil {
			return
		}
		for _, v := range s.Items() {
			repl[v.Name()] = v
		}
	}
	addRepl(depVars)
	addRepl(projected)
	addRepl(o.condObs)
	graph.RecursiveRedirect(clone, repl)

	normSet := graph.NewSet()
	normSet.AddAll(depVars)
	normSet.AddAll(projected)
	if o.condObs != nil {
		normSet.RemoveAll(o.condObs)
	}

	if projected.Len() == 0 {
		return &Result{Projection: clone, Clones: cloneSet, NormSet: normSet}, nil
	}

	iopts := []integral.Option{integral.WithNormSet(normSet)}
	if o.rangeName != "" {
		iopts = append(iopts, integral.WithRange(o.rangeName))
	}
	if o.cfg != nil {
		iopts = append(iopts, integral.WithConfig(*o.cfg))
	}
	proj, err := integral.Create(clone, projected, iopts...)
	if err != nil {
		return nil, err
	}
	cloneSet.Add(proj)

	return &Result{Projection: proj, Clones: cloneSet, NormSet: normSet}, nil
}
