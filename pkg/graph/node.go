// Package graph implements the lazily-evaluated expression graph at the core
// of Skuld.
//
// An expression is a directed acyclic graph of real-valued nodes. Each node
// caches its last computed value together with a dirty flag; reading a value
// recomputes only when a leaf that feeds the node was mutated since the
// previous read. Derived expressions (integrals, projections, uncertainty
// bands) are themselves nodes wired into the same graph and evaluated through
// the same caching protocol.
//
// Features:
//   - Dirty-flag value caching with transitive invalidation on leaf mutation
//   - Per-node operating modes (Auto, AlwaysClean, AlwaysDirty)
//   - Identity-tagged normalization sets for cheap context-change detection
//   - Deep cloning and recursive server redirection for projection building
//   - Process-wide evaluation-error log with print/count/collect modes
//
// Concurrency: a graph is a single-threaded cooperative structure. Nothing
// here is safe for concurrent mutation of a shared node without external
// synchronization.
//
// Example Usage:
//
//	x := graph.NewVar("x", 1.5, 0, 10)
//	a := graph.NewVar("a", 2.0, -10, 10)
//	f := graph.NewFunc("f", "a*x", func(v []float64) float64 {
//		return v[0] * v[1]
//	}, a, x)
//
//	val := f.Core().Value(nil) // 3.0
//	x.SetVal(2)               // marks f dirty
//	val = f.Core().Value(nil) // 4.0, recomputed once
package graph

import (
	"fmt"
	"math"
)

// OperMode controls how a node participates in the caching protocol.
type OperMode int

const (
	// Auto is the normal mode: recompute when the dirty flag is set.
	Auto OperMode = iota
	// AlwaysClean suppresses recomputation entirely; the node serves its
	// last force-set cached value. Dirty propagation stops at such nodes.
	// This is the mechanism the batch evaluation adapter exploits.
	AlwaysClean
	// AlwaysDirty bypasses the cache; every read recomputes.
	AlwaysDirty
)

func (m OperMode) String() string {
	switch m {
	case Auto:
		return "Auto"
	case AlwaysClean:
		return "AlwaysClean"
	case AlwaysDirty:
		return "AlwaysDirty"
	}
	return fmt.Sprintf("OperMode(%d)", int(m))
}

// Real is the capability every expression node implements: identity plus a
// pure scalar computation in terms of the node's servers.
type Real interface {
	Name() string
	Title() string
	// Core returns the embedded bookkeeping core shared by all node kinds.
	Core() *Node
	// Evaluate computes the node's value from current server values. It
	// must not have side effects beyond reading servers.
	Evaluate() float64
}

// LValue is implemented by nodes whose value can be assigned directly
// (leaf variables and anything substitutable for one).
type LValue interface {
	Real
	SetVal(x float64)
}

// NormListener is implemented by nodes that need a hook when the identity of
// the evaluation's normalization set changes.
type NormListener interface {
	NormChanged(normSet *Set)
}

// Offsetter is implemented by nodes that carry a numerical-stability offset.
// When offset hiding is enabled (the default) the offset is added back on
// read so callers observe the un-shifted value.
type Offsetter interface {
	Offset() float64
}

// Cloner is implemented by node kinds that support deep cloning with a
// remapped server list. All node kinds shipped by Skuld implement it.
type Cloner interface {
	CloneWith(name string, servers []Real) Real
}

// RedirectHook lets composite nodes that hold typed references to their
// servers (beyond the generic server list) update those references when
// servers are redirected.
type RedirectHook interface {
	RedirectHook(repl map[string]Real)
}

// hideOffset controls whether Offsetter offsets are folded back into values
// returned by Value. On by default, matching the convention that offsets are
// an internal numerical device invisible to callers.
var hideOffset = true

// SetHideOffset toggles global offset hiding.
func SetHideOffset(flag bool) { hideOffset = flag }

// HideOffset reports the current global offset-hiding flag.
func HideOffset() bool { return hideOffset }

// consistencyCheck enables the runtime cache-consistency verification: a
// clean cache read additionally recomputes the value and panics if the two
// disagree beyond a relative tolerance of 1e-9. Off by default; enabling it
// makes every read pay the full evaluation cost.
var consistencyCheck = false

// consistencyTol is the relative tolerance of the cache-consistency check.
const consistencyTol = 1e-9

// SetConsistencyCheck toggles the cache-consistency verification.
func SetConsistencyCheck(flag bool) { consistencyCheck = flag }

// ConsistencyCheck reports whether cache-consistency verification is active.
func ConsistencyCheck() bool { return consistencyCheck }

// Node is the bookkeeping core embedded by every expression node kind. It
// owns the cached value, the dirty flags, the operating mode, the server and
// client links, and the list of privately owned auxiliary components.
//
// Servers are the node's direct inputs; the node does not own them. Owned
// components are auxiliary nodes the node created for itself (for example the
// inner integrals of a recursive decomposition); the owns relation is kept
// acyclic even though the depends-on relation may reconverge.
type Node struct {
	name  string
	title string

	// self points back at the embedding node kind so the core can reach
	// the kind-specific Evaluate. Wired by Init.
	self Real

	value      float64
	valueDirty bool
	shapeDirty bool
	mode       OperMode
	lastNormID uint64

	servers []Real
	clients []*Node
	owned   []Real

	attributes map[string]string

	evalCount uint64
}

// Init wires the embedding node kind into the core and registers the node as
// a client of each server. Servers with duplicate names are dropped so the
// server list stays name-unique. Must be called exactly once, from the
// constructor of the embedding kind.
func (n *Node) Init(self Real, name, title string, servers ...Real) {
	n.self = self
	n.name = name
	n.title = title
	n.valueDirty = true
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if s == nil || seen[s.Name()] {
			continue
		}
		seen[s.Name()] = true
		n.servers = append(n.servers, s)
		sn := s.Core()
		sn.clients = append(sn.clients, n)
	}
}

// Core returns the core itself. Embedders promote this method, which is what
// lets any kind that embeds Node satisfy Real. The method cannot be named
// after the struct: the promoted field would shadow it.
func (n *Node) Core() *Node { return n }

// Name returns the node's stable name, unique within its graph.
func (n *Node) Name() string { return n.name }

// Title returns the human-readable title.
func (n *Node) Title() string { return n.title }

// SetName renames the node. Renaming a node that is already a member of a
// Set leaves the set's index stale; rename before registration.
func (n *Node) SetName(name string) { n.name = name }

// SetTitle replaces the human-readable title.
func (n *Node) SetTitle(title string) { n.title = title }

// Self returns the embedding node kind.
func (n *Node) Self() Real { return n.self }

// Servers returns the node's direct inputs in registration order.
func (n *Node) Servers() []Real {
	out := make([]Real, len(n.servers))
	copy(out, n.servers)
	return out
}

// FindServer returns the server with the given name, or nil.
func (n *Node) FindServer(name string) Real {
	for _, s := range n.servers {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// OperMode returns the node's operating mode.
func (n *Node) OperMode() OperMode { return n.mode }

// SetOperMode changes the operating mode. Switching away from AlwaysClean
// re-arms the dirty flag, since mutations during the clean period were
// deliberately dropped.
func (n *Node) SetOperMode(m OperMode) {
	if n.mode == AlwaysClean && m != AlwaysClean {
		n.valueDirty = true
	}
	n.mode = m
}

// IsValueDirty reports the raw dirty flag, ignoring the operating mode.
func (n *Node) IsValueDirty() bool { return n.valueDirty }

// IsShapeDirty reports the shape dirty flag.
func (n *Node) IsShapeDirty() bool { return n.shapeDirty }

// SetDirtyFlags restores both dirty flags verbatim. Used by the batch
// adapter's state snapshot/restore protocol.
func (n *Node) SetDirtyFlags(valueDirty, shapeDirty bool) {
	n.valueDirty = valueDirty
	n.shapeDirty = shapeDirty
}

// EvalCount returns how many times Evaluate has been invoked through the
// caching protocol. Test instrumentation.
func (n *Node) EvalCount() uint64 { return n.evalCount }

// CachedValue returns the raw cached value without consulting dirty state.
func (n *Node) CachedValue() float64 { return n.value }

// Value returns the node's value in the given normalization context,
// recomputing only when required by the caching protocol.
//
// A nil normSet means "no explicit normalization". A non-nil set must have
// been created through NewSet: sets without identity would silently corrupt
// identity-keyed caches across the graph, so they are rejected with a panic
// regardless of error-logging mode.
func (n *Node) Value(normSet *Set) float64 {
	if normSet != nil {
		if normSet.ID() == 0 {
			panic(fmt.Sprintf("graph: node %q evaluated with a normalization set that has no identity; "+
				"construct normalization sets with graph.NewSet and reuse the instance", n.name))
		}
		if normSet.ID() != n.lastNormID {
			if l, ok := n.self.(NormListener); ok {
				l.NormChanged(normSet)
			}
			n.lastNormID = normSet.ID()
		}
	}

	if n.needsEval() {
		n.value = n.traceEval()
		n.valueDirty = false
	} else if consistencyCheck && n.mode == Auto {
		n.verifyCache()
	}

	if hideOffset {
		if off, ok := n.self.(Offsetter); ok {
			return n.value + off.Offset()
		}
	}
	return n.value
}

func (n *Node) needsEval() bool {
	switch n.mode {
	case AlwaysClean:
		return false
	case AlwaysDirty:
		return true
	default:
		return n.valueDirty
	}
}

// traceEval runs the kind-specific evaluation with error tracing. A NaN
// result is a recoverable condition: it is reported to the evaluation-error
// log and the value is returned as computed.
func (n *Node) traceEval() float64 {
	n.evalCount++
	v := n.self.Evaluate()
	if math.IsNaN(v) {
		LogEvalError(n.self, "function value is NaN")
	}
	return v
}

// verifyCache recomputes a clean node and compares against the cached value.
// A mismatch beyond the relative tolerance means the caching contract itself
// is broken; continuing would propagate silently wrong numbers, so this is
// fatal.
func (n *Node) verifyCache() {
	full := n.self.Evaluate()
	ref := n.value
	var rel float64
	if ref != 0 {
		rel = (ref - full) / ref
	} else {
		rel = ref - full
	}
	if math.IsNaN(rel) || math.Abs(rel) > consistencyTol {
		panic(fmt.Sprintf("graph: cache consistency violation on %q: cached=%.17g recomputed=%.17g (rel %.3g)",
			n.name, ref, full, rel))
	}
}

// SetValueDirty marks this node and all transitive clients dirty, respecting
// AlwaysClean boundaries.
func (n *Node) SetValueDirty() {
	if n.mode == AlwaysClean {
		return
	}
	n.valueDirty = true
	n.propagateValueDirty()
}

// propagateValueDirty marks every transitive client dirty. A client's own
// dirty flag says nothing about its clients: evaluation sweeps (numeric
// integration, grid filling) restore server values as their last step, which
// leaves a dirty server under a client whose flag the protocol clears right
// after. The walk therefore terminates on visit bookkeeping, not on flags.
func (n *Node) propagateValueDirty() {
	seen := map[*Node]bool{n: true}
	var walk func(*Node)
	walk = func(m *Node) {
		for _, c := range m.clients {
			if seen[c] {
				continue
			}
			seen[c] = true
			if c.mode == AlwaysClean {
				// Frozen nodes neither recompute nor forward invalidation.
				continue
			}
			c.valueDirty = true
			walk(c)
		}
	}
	walk(n)
}

// SetShapeDirty marks shape (domain/binning) state stale on this node and
// all transitive clients. Shape changes also invalidate values. Like
// propagateValueDirty, the walk does not trust flags for termination.
func (n *Node) SetShapeDirty() {
	if n.mode == AlwaysClean {
		return
	}
	seen := map[*Node]bool{}
	var walk func(*Node)
	walk = func(m *Node) {
		if seen[m] || m.mode == AlwaysClean {
			return
		}
		seen[m] = true
		m.shapeDirty = true
		m.valueDirty = true
		for _, c := range m.clients {
			walk(c)
		}
	}
	walk(n)
}

// ForceValue installs a cached value directly, marking the node clean. With
// notifyClients set, clients are invalidated so they observe the new value;
// without it the write is invisible to the dirty protocol (the batch
// adapter's per-event side-load).
func (n *Node) ForceValue(v float64, notifyClients bool) {
	n.value = v
	n.valueDirty = false
	if notifyClients {
		n.propagateValueDirty()
	}
}

// AddOwnedComponents registers auxiliary nodes this node privately created
// and exclusively owns. Ownership must stay acyclic.
func (n *Node) AddOwnedComponents(items ...Real) {
	n.owned = append(n.owned, items...)
}

// Owned returns the privately owned component list.
func (n *Node) Owned() []Real {
	out := make([]Real, len(n.owned))
	copy(out, n.owned)
	return out
}

// SetAttribute attaches a string attribute to the node. An empty value
// removes the attribute.
func (n *Node) SetAttribute(key, value string) {
	if value == "" {
		delete(n.attributes, key)
		return
	}
	if n.attributes == nil {
		n.attributes = make(map[string]string)
	}
	n.attributes[key] = value
}

// Attribute returns the named attribute, or the empty string.
func (n *Node) Attribute(key string) string { return n.attributes[key] }

// Equals compares the node against a literal value or another real-valued
// node. Comparing against anything else returns false; this never panics.
func (n *Node) Equals(other any) bool {
	switch v := other.(type) {
	case float64:
		return n.Value(nil) == v
	case int:
		return n.Value(nil) == float64(v)
	case Real:
		return n.Value(nil) == v.Core().Value(nil)
	default:
		return false
	}
}

// RedirectServers replaces servers by name according to repl, updating
// client back-links on both sides. Composite nodes holding typed server
// references are given a chance to update them through RedirectHook. The
// normalization identity tag is reset because the rewired node may evaluate
// in a different context. Returns the number of replacements made.
func (n *Node) RedirectServers(repl map[string]Real) int {
	replaced := 0
	for i, s := range n.servers {
		nw, ok := repl[s.Name()]
		if !ok || nw == s {
			continue
		}
		s.Core().removeClient(n)
		n.servers[i] = nw
		nw.Core().clients = append(nw.Core().clients, n)
		replaced++
	}
	if replaced > 0 {
		if h, ok := n.self.(RedirectHook); ok {
			h.RedirectHook(repl)
		}
		n.lastNormID = 0
		n.valueDirty = true
	}
	return replaced
}

func (n *Node) removeClient(c *Node) {
	for i, cl := range n.clients {
		if cl == c {
			n.clients = append(n.clients[:i], n.clients[i+1:]...)
			return
		}
	}
}

// RecursiveRedirect applies RedirectServers to every node reachable from
// root, leaves included. Variable range bounds are redirected as well, since
// a parameterized range references its bound nodes outside the server list.
// Returns the total number of replacements.
func RecursiveRedirect(root Real, repl map[string]Real) int {
	total := 0
	visited := make(map[*Node]bool)
	var walk func(r Real)
	walk = func(r Real) {
		nd := r.Core()
		if visited[nd] {
			return
		}
		visited[nd] = true
		total += nd.RedirectServers(repl)
		if v, ok := nd.self.(*Var); ok {
			total += v.redirectRanges(repl)
			for _, rng := range v.ranges {
				walk(rng.Lo)
				walk(rng.Hi)
			}
		}
		for _, s := range nd.servers {
			walk(s)
		}
	}
	walk(root)
	return total
}
