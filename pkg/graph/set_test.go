package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_NameUniqueness(t *testing.T) {
	x := NewVar("x", 1, 0, 1)
	x2 := NewVar("x", 2, 0, 1)
	y := NewVar("y", 1, 0, 1)

	s := NewSet(x, y)
	assert.False(t, s.Add(x2), "duplicate name rejected")
	assert.Equal(t, 2, s.Len())
	assert.Same(t, x, s.Find("x").(*Var))
}

func TestSet_Identity(t *testing.T) {
	x := NewVar("x", 1, 0, 1)

	a := NewSet(x)
	b := NewSet(x)
	require.NotZero(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID(), "identical members, distinct identities")
	assert.NotEqual(t, a.ID(), a.Clone().ID())
	assert.Zero(t, (&Set{}).ID())
	assert.Zero(t, (*Set)(nil).ID())
}

func TestSet_Operations(t *testing.T) {
	x := NewVar("x", 1, 0, 1)
	y := NewVar("y", 1, 0, 1)
	z := NewVar("z", 1, 0, 1)

	s := NewSet(x, y)
	other := NewSet(y, z)

	assert.True(t, s.Overlaps(other))
	assert.False(t, NewSet(x).Overlaps(NewSet(z)))

	common := s.SelectCommon(other)
	assert.Equal(t, []string{"y"}, common.Names())

	s.RemoveAll(other)
	assert.Equal(t, []string{"x"}, s.Names())

	s.AddAll(other)
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.RemoveByName("z"))
	assert.False(t, s.RemoveByName("z"))
}

func TestSet_NameStringIsDeterministic(t *testing.T) {
	x := NewVar("x", 1, 0, 1)
	y := NewVar("y", 1, 0, 1)

	assert.Equal(t, "x,y", NewSet(y, x).NameString())
	assert.Equal(t, "x,y", NewSet(x, y).NameString())
}

func TestTreeWalks(t *testing.T) {
	x := NewVar("x", 2, 0, 10)
	a := NewVar("a", 3, 0, 10)
	inner := product("inner", x, a)
	top := product("top", inner, x)

	leaves := Leaves(top)
	assert.ElementsMatch(t, []string{"x", "a"}, leaves.Names())

	all := TreeNodes(top)
	assert.Equal(t, 4, all.Len())

	params := Parameters(top, NewSet(x))
	assert.Equal(t, []string{"a"}, params.Names())

	assert.True(t, DependsOn(top, x))
	assert.False(t, DependsOn(inner, NewVar("q", 0, 0, 1)))
}

func TestCloneTree(t *testing.T) {
	x := NewVar("x", 2, 0, 10)
	a := NewVar("a", 3, 0, 10)
	g := product("g", x)
	h := product("h", x, a)
	top := product("top", g, h)

	clone, cloneSet, err := CloneTree(top)
	require.NoError(t, err)
	require.Equal(t, 5, cloneSet.Len())

	assert.Equal(t, top.Core().Value(nil), clone.Core().Value(nil))

	// Mutating the original does not disturb the clone, and vice versa.
	x.SetVal(5)
	assert.Equal(t, 2.0*2*3, clone.Core().Value(nil))

	cx := cloneSet.Find("x").(*Var)
	cx.SetVal(1)
	assert.Equal(t, 1.0*1*3, clone.Core().Value(nil))
	assert.Equal(t, 5.0*5*3, top.Core().Value(nil))

	// Diamonds stay diamonds: both cloned branches share one cloned x.
	cg := cloneSet.Find("g").(*Func)
	ch := cloneSet.Find("h").(*Func)
	assert.Same(t, cg.Core().FindServer("x"), ch.Core().FindServer("x"))
}

func TestCloneTree_ParameterizedRangeBounds(t *testing.T) {
	x := NewVar("x", 1, 0, 10)
	b := NewVar("b", 4, 0, 10)
	x.SetParamRange("cut", NewConst(0), b)
	top := product("top", x, b)

	_, cloneSet, err := CloneTree(top)
	require.NoError(t, err)

	cx := cloneSet.Find("x").(*Var)
	cb := cloneSet.Find("b").(*Var)
	require.NotSame(t, b, cb)
	assert.Same(t, cb, cx.RangeSpec("cut").Hi, "cloned bound must replace the original")

	// The cloned range reads the cloned bound, the original keeps its own.
	cb.SetVal(7)
	_, hi := cx.Range("cut")
	assert.Equal(t, 7.0, hi)
	_, hi = x.Range("cut")
	assert.Equal(t, 4.0, hi)
}
