package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapAmbient map[string]Value

func (m mapAmbient) Lookup(name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}

func (m mapAmbient) Define(name string, v Value) { m[name] = v }

func TestDeclareStartsUndefined(t *testing.T) {
	s := NewScope(nil)
	s.Declare("x")

	v, err := s.Load("x")
	require.NoError(t, err)
	assert.True(t, v.IsUndefined())
}

func TestDeclareIsIdempotent(t *testing.T) {
	s := NewScope(nil)
	s.Declare("x")
	require.NoError(t, s.Assign("x", Number(5)))
	s.Declare("x") // re-declaring must not clobber the value

	v, err := s.Load("x")
	require.NoError(t, err)
	assert.Equal(t, float64(5), v.AsNumber())
}

func TestLoadWalksParentChain(t *testing.T) {
	outer := NewScope(nil)
	outer.Declare("x")
	require.NoError(t, outer.Assign("x", Number(1)))
	inner := NewScope(outer)

	v, err := inner.Load("x")
	require.NoError(t, err)
	assert.Equal(t, float64(1), v.AsNumber())
}

func TestAssignWalksParentChain(t *testing.T) {
	outer := NewScope(nil)
	outer.Declare("x")
	inner := NewScope(outer)

	require.NoError(t, inner.Assign("x", Number(7)))
	v, err := outer.Load("x")
	require.NoError(t, err)
	assert.Equal(t, float64(7), v.AsNumber())
}

func TestShadowing(t *testing.T) {
	outer := NewScope(nil)
	outer.Declare("x")
	require.NoError(t, outer.Assign("x", Number(1)))
	inner := NewScope(outer)
	inner.Declare("x")
	require.NoError(t, inner.Assign("x", Number(2)))

	innerV, _ := inner.Load("x")
	outerV, _ := outer.Load("x")
	assert.Equal(t, float64(2), innerV.AsNumber())
	assert.Equal(t, float64(1), outerV.AsNumber())
}

func TestLoadUnresolvedIsError(t *testing.T) {
	s := NewScope(nil)
	_, err := s.Load("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved reference")
}

func TestAssignUnresolvedIsError(t *testing.T) {
	s := NewScope(nil)
	err := s.Assign("missing", Number(1))
	require.Error(t, err)
}

func TestGlobalScopeFallsBackToAmbientOnLoad(t *testing.T) {
	ambient := mapAmbient{"print": Number(42)}
	global := NewGlobalScope(ambient)
	inner := NewScope(global)

	v, err := inner.Load("print")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v.AsNumber())
}

func TestGlobalScopeCreatesAmbientBindingOnAssignMiss(t *testing.T) {
	ambient := mapAmbient{}
	global := NewGlobalScope(ambient)
	inner := NewScope(global)

	require.NoError(t, inner.Assign("fresh", Number(3)))
	v, ok := ambient.Lookup("fresh")
	require.True(t, ok)
	assert.Equal(t, float64(3), v.AsNumber())
}

func TestDeclaredGlobalShadowsAmbient(t *testing.T) {
	ambient := mapAmbient{"x": Number(1)}
	global := NewGlobalScope(ambient)
	global.Declare("x")
	require.NoError(t, global.Assign("x", Number(2)))

	v, _ := global.Load("x")
	assert.Equal(t, float64(2), v.AsNumber())
	// The ambient value is untouched.
	av, _ := ambient.Lookup("x")
	assert.Equal(t, float64(1), av.AsNumber())
}
