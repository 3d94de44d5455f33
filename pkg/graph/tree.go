package graph

import "fmt"

// Leaves returns the leaf nodes (nodes without servers) reachable from root,
// root included when it is itself a leaf.
func Leaves(root Real) *Set {
	out := NewSet()
	walkTree(root, func(r Real) {
		if len(r.Core().servers) == 0 {
			out.Add(r)
		}
	})
	return out
}

// TreeNodes returns every node reachable from root, root included.
func TreeNodes(root Real) *Set {
	out := NewSet()
	walkTree(root, func(r Real) { out.Add(r) })
	return out
}

// Observables returns the leaf variables of root that are members of the
// given set. This is the subset of "all leaves" that the caller has declared
// to be observables rather than parameters.
func Observables(root Real, of *Set) *Set {
	out := NewSet()
	if of == nil {
		return out
	}
	for _, leaf := range Leaves(root).Items() {
		if of.Contains(leaf) {
			out.Add(leaf)
		}
	}
	return out
}

// Parameters returns the leaf variables of root that are not members of
// observables. Constants are never parameters.
func Parameters(root Real, observables *Set) *Set {
	out := NewSet()
	for _, leaf := range Leaves(root).Items() {
		if _, isVar := leaf.(*Var); !isVar {
			continue
		}
		if observables.Contains(leaf) {
			continue
		}
		out.Add(leaf)
	}
	return out
}

// DependsOn reports whether target is reachable from root through server
// links (by name).
func DependsOn(root, target Real) bool {
	if root == nil || target == nil {
		return false
	}
	found := false
	walkTree(root, func(r Real) {
		if r.Name() == target.Name() {
			found = true
		}
	})
	return found
}

func walkTree(root Real, visit func(Real)) {
	seen := make(map[*Node]bool)
	var walk func(r Real)
	walk = func(r Real) {
		nd := r.Core()
		if seen[nd] {
			return
		}
		seen[nd] = true
		visit(r)
		for _, s := range nd.servers {
			walk(s)
		}
	}
	walk(root)
}

// CloneTree deep-clones the expression subgraph rooted at root. Every node,
// leaves included, is copied; names are preserved so clones can be matched
// to their originals by name. The second return value is the clone set
// holding every copied node; the caller owns it and must keep it alive as
// long as any clone is in use.
//
// Diamond dependencies are cloned once and re-shared, mirroring the original
// topology.
func CloneTree(root Real) (Real, *Set, error) {
	cloneSet := NewSet()
	memo := make(map[*Node]Real)
	var clone func(r Real) (Real, error)
	clone = func(r Real) (Real, error) {
		nd := r.Core()
		if c, ok := memo[nd]; ok {
			return c, nil
		}
		servers := nd.servers
		cloned := make([]Real, len(servers))
		for i, s := range servers {
			cs, err := clone(s)
			if err != nil {
				return nil, err
			}
			cloned[i] = cs
		}
		cl, ok := r.(Cloner)
		if !ok {
			return nil, fmt.Errorf("graph: cannot deep-clone %q: %T does not support cloning", r.Name(), r)
		}
		c := cl.CloneWith(r.Name(), cloned)
		memo[nd] = c
		cloneSet.Add(c)
		return c, nil
	}
	out, err := clone(root)
	if err != nil {
		return nil, nil, err
	}

	// Range bounds are typed references outside the server lists. Where a
	// bound node was itself cloned, the cloned variable must point at the
	// copy, or the clone would keep reading state from the original graph.
	for _, c := range memo {
		cv, ok := c.(*Var)
		if !ok {
			continue
		}
		for name, r := range cv.ranges {
			lo, hi := r.Lo, r.Hi
			if m, ok := memo[lo.Core()]; ok {
				lo = m
			}
			if m, ok := memo[hi.Core()]; ok {
				hi = m
			}
			cv.ranges[name] = VarRange{Lo: lo, Hi: hi}
		}
	}
	return out, cloneSet, nil
}
