package graph

import (
	"sort"
	"strings"
	"sync/atomic"
)

// setIDCounter issues process-unique identities for Sets. Identity 0 is
// reserved to mean "no identity" (a Set that was not built through NewSet).
var setIDCounter atomic.Uint64

// Set is an ordered, name-unique collection of expression nodes.
//
// Every Set carries a process-unique identity. Nodes use this identity to
// detect cheaply whether the normalization context of an evaluation changed,
// instead of comparing set contents deeply. Two Sets with identical members
// still have different identities; callers that want "same context" semantics
// must reuse the same Set instance.
//
// Example:
//
//	obs := graph.NewSet(x, y)
//	pdf.Core().Value(obs) // normalization context = {x, y}
type Set struct {
	id    uint64
	items []Real
	index map[string]Real
}

// NewSet creates a set with a fresh identity containing the given nodes.
// Duplicate names are silently dropped (first entry wins).
func NewSet(items ...Real) *Set {
	s := &Set{
		id:    setIDCounter.Add(1),
		index: make(map[string]Real),
	}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// ID returns the set's unique identity. Zero means the set was not created
// through NewSet and must not be used as a normalization set.
func (s *Set) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Add inserts a node. Returns false if a node with the same name is already
// present.
func (s *Set) Add(item Real) bool {
	name := item.Name()
	if _, dup := s.index[name]; dup {
		return false
	}
	s.items = append(s.items, item)
	s.index[name] = item
	return true
}

// AddAll inserts every member of other, skipping duplicates.
func (s *Set) AddAll(other *Set) {
	if other == nil {
		return
	}
	for _, it := range other.items {
		s.Add(it)
	}
}

// Remove deletes the member with the same name as item. Returns false if no
// such member exists.
func (s *Set) Remove(item Real) bool {
	return s.RemoveByName(item.Name())
}

// RemoveByName deletes the named member if present.
func (s *Set) RemoveByName(name string) bool {
	if _, ok := s.index[name]; !ok {
		return false
	}
	delete(s.index, name)
	for i, it := range s.items {
		if it.Name() == name {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return true
}

// RemoveAll deletes every member of other from s.
func (s *Set) RemoveAll(other *Set) {
	if other == nil {
		return
	}
	for _, it := range other.items {
		s.Remove(it)
	}
}

// Find returns the member with the given name, or nil.
func (s *Set) Find(name string) Real {
	if s == nil {
		return nil
	}
	return s.index[name]
}

// Contains reports whether a member with the same name as item exists.
func (s *Set) Contains(item Real) bool {
	if s == nil || item == nil {
		return false
	}
	_, ok := s.index[item.Name()]
	return ok
}

// Overlaps reports whether the two sets share at least one member name.
func (s *Set) Overlaps(other *Set) bool {
	if s == nil || other == nil {
		return false
	}
	for _, it := range other.items {
		if s.Contains(it) {
			return true
		}
	}
	return false
}

// Items returns the members in insertion order. The returned slice is a copy.
func (s *Set) Items() []Real {
	if s == nil {
		return nil
	}
	out := make([]Real, len(s.items))
	copy(out, s.items)
	return out
}

// First returns the first member in insertion order, or nil for an empty set.
func (s *Set) First() Real {
	if s == nil || len(s.items) == 0 {
		return nil
	}
	return s.items[0]
}

// Names returns the member names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.items))
	for i, it := range s.items {
		out[i] = it.Name()
	}
	return out
}

// NameString returns member names sorted and joined by commas. Used to build
// deterministic derived-node names regardless of insertion order.
func (s *Set) NameString() string {
	names := s.Names()
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Select returns a new set (fresh identity) containing the named members
// that exist in s.
func (s *Set) Select(names ...string) *Set {
	out := NewSet()
	for _, name := range names {
		if it := s.Find(name); it != nil {
			out.Add(it)
		}
	}
	return out
}

// SelectCommon returns a new set with the members of s that also appear in
// other (matched by name).
func (s *Set) SelectCommon(other *Set) *Set {
	out := NewSet()
	if s == nil || other == nil {
		return out
	}
	for _, it := range s.items {
		if other.Contains(it) {
			out.Add(it)
		}
	}
	return out
}

// Clone returns a new set with a fresh identity and the same members.
// Members themselves are shared, not copied; use CloneTree for deep copies.
func (s *Set) Clone() *Set {
	out := NewSet()
	if s != nil {
		for _, it := range s.items {
			out.Add(it)
		}
	}
	return out
}

// Vars returns the members that are leaf variables, in insertion order.
func (s *Set) Vars() []*Var {
	var out []*Var
	if s == nil {
		return out
	}
	for _, it := range s.items {
		if v, ok := it.(*Var); ok {
			out = append(out, v)
		}
	}
	return out
}
