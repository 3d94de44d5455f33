package graph

import (
	"fmt"
	"strconv"
)

// VarRange is one named range of a variable. Bounds are expression nodes:
// constants for a fixed range, arbitrary functions for a parameterized one.
type VarRange struct {
	Lo Real
	Hi Real
}

// Parameterized reports whether either bound is something other than a
// constant.
func (r VarRange) Parameterized() bool {
	_, loConst := r.Lo.(*Const)
	_, hiConst := r.Hi.(*Const)
	return !loConst || !hiConst
}

// BoundObservables returns the members of within that either bound of the
// range depends on.
func (r VarRange) BoundObservables(within *Set) *Set {
	out := NewSet()
	for _, bound := range []Real{r.Lo, r.Hi} {
		if _, isConst := bound.(*Const); isConst {
			continue
		}
		for _, leaf := range Leaves(bound).Items() {
			if within.Contains(leaf) {
				out.Add(leaf)
			}
		}
	}
	return out
}

// Var is a leaf variable: an assignable real value with a domain and a set
// of named ranges. Mutating a Var invalidates every cached node downstream.
//
// Example:
//
//	x := graph.NewVar("x", 0.5, 0, 1)
//	x.SetRange("left", 0, 0.5)
//	x.SetParamRange("cdf", lowBound, xPrime) // bounds as expression nodes
type Var struct {
	Node
	val    float64
	min    float64
	max    float64
	ranges map[string]VarRange
}

// NewVar creates a variable with the given current value and domain.
func NewVar(name string, val, min, max float64) *Var {
	v := &Var{val: val, min: min, max: max}
	v.Init(v, name, name)
	return v
}

// Evaluate returns the currently assigned value.
func (v *Var) Evaluate() float64 { return v.val }

// Val returns the currently assigned value without touching the cache
// machinery.
func (v *Var) Val() float64 { return v.val }

// SetVal assigns a new value and marks all dependent nodes dirty.
func (v *Var) SetVal(x float64) {
	if x == v.val {
		return
	}
	v.val = x
	v.SetValueDirty()
}

// Min returns the lower edge of the variable's domain.
func (v *Var) Min() float64 { return v.min }

// Max returns the upper edge of the variable's domain.
func (v *Var) Max() float64 { return v.max }

// SetLimits changes the domain. This is a shape change: dependent nodes that
// integrate over the variable must recompute.
func (v *Var) SetLimits(min, max float64) {
	v.min = min
	v.max = max
	v.SetShapeDirty()
}

// InRange reports whether x lies inside the named range (the domain when
// name is empty or unknown).
func (v *Var) InRange(x float64, name string) bool {
	lo, hi := v.Range(name)
	return x >= lo && x <= hi
}

// SetRange defines or replaces a fixed named range.
func (v *Var) SetRange(name string, lo, hi float64) {
	v.setRange(name, VarRange{Lo: NewConst(lo), Hi: NewConst(hi)})
}

// SetParamRange defines or replaces a named range whose bounds are
// expression nodes. The bounds are evaluated each time the range is
// resolved, so a range may depend on other variables.
func (v *Var) SetParamRange(name string, lo, hi Real) {
	v.setRange(name, VarRange{Lo: lo, Hi: hi})
}

func (v *Var) setRange(name string, r VarRange) {
	if v.ranges == nil {
		v.ranges = make(map[string]VarRange)
	}
	v.ranges[name] = r
	v.SetShapeDirty()
}

// HasRange reports whether a range with the given name was defined.
func (v *Var) HasRange(name string) bool {
	_, ok := v.ranges[name]
	return ok
}

// RangeSpec returns the named range definition. The fallback for an empty or
// unknown name is the variable's domain as a fixed range.
func (v *Var) RangeSpec(name string) VarRange {
	if r, ok := v.ranges[name]; ok {
		return r
	}
	return VarRange{Lo: NewConst(v.min), Hi: NewConst(v.max)}
}

// Range resolves the named range to concrete bounds at the current state of
// the graph. Parameterized bounds are evaluated on the spot.
func (v *Var) Range(name string) (lo, hi float64) {
	r := v.RangeSpec(name)
	return r.Lo.Core().Value(nil), r.Hi.Core().Value(nil)
}

// CloneWith deep-clones the variable under a new name. Range definitions are
// carried over referencing the original bound nodes; CloneTree remaps bounds
// that were cloned alongside the variable afterwards.
func (v *Var) CloneWith(name string, _ []Real) Real {
	out := NewVar(name, v.val, v.min, v.max)
	for rname, r := range v.ranges {
		out.setRange(rname, r)
	}
	return out
}

// redirectRanges swaps range-bound references according to repl, returning
// the number of bounds replaced.
func (v *Var) redirectRanges(repl map[string]Real) int {
	replaced := 0
	for name, r := range v.ranges {
		lo, hi := r.Lo, r.Hi
		changed := false
		if nw, ok := repl[lo.Name()]; ok && nw != lo {
			lo = nw
			changed = true
		}
		if nw, ok := repl[hi.Name()]; ok && nw != hi {
			hi = nw
			changed = true
		}
		if changed {
			v.ranges[name] = VarRange{Lo: lo, Hi: hi}
			replaced++
		}
	}
	return replaced
}

func (v *Var) String() string {
	return fmt.Sprintf("%s = %g [%g, %g]", v.Name(), v.val, v.min, v.max)
}

// Const is an immutable leaf holding a literal value.
type Const struct {
	Node
	val float64
}

// NewConst creates a constant node named after its value.
func NewConst(val float64) *Const {
	return NewNamedConst(strconv.FormatFloat(val, 'g', -1, 64), val)
}

// NewNamedConst creates a constant node with an explicit name.
func NewNamedConst(name string, val float64) *Const {
	c := &Const{val: val}
	c.Init(c, name, name)
	c.mode = AlwaysClean
	c.value = val
	c.valueDirty = false
	return c
}

// Evaluate returns the literal value.
func (c *Const) Evaluate() float64 { return c.val }

// Val returns the literal value.
func (c *Const) Val() float64 { return c.val }

// CloneWith returns a fresh constant with the same value.
func (c *Const) CloneWith(name string, _ []Real) Real {
	return NewNamedConst(name, c.val)
}
