package vm

import (
	"fmt"

	"quill/pkg/errors"
)

// Ambient is the embedder-supplied global environment consulted by the
// global scope when a name cannot be resolved in the chain.
type Ambient interface {
	// Lookup returns the ambient value for name, if any.
	Lookup(name string) (Value, bool)
	// Define creates or replaces an ambient binding.
	Define(name string, v Value)
}

// Scope is a parent-linked environment of name to value bindings. The
// global scope (the root of every chain) carries an Ambient fallback;
// ordinary scopes raise on unresolved names.
type Scope struct {
	parent   *Scope
	bindings map[string]Value
	ambient  Ambient // non-nil only on the global scope
}

// NewScope creates a child scope of parent.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, bindings: make(map[string]Value)}
}

// NewGlobalScope creates a root scope backed by the given ambient
// environment.
func NewGlobalScope(ambient Ambient) *Scope {
	return &Scope{bindings: make(map[string]Value), ambient: ambient}
}

// Declare introduces name with the value undefined. Re-declaring an
// existing name leaves its current value untouched (hoisting may declare
// the same name more than once, e.g. a parameter shadowed by `var`).
func (s *Scope) Declare(name string) {
	if _, ok := s.bindings[name]; ok {
		return
	}
	s.bindings[name] = Undefined()
}

// DeclareValue introduces name bound to v, replacing any prior binding in
// this scope. Used for `this` and named-function-expression self-binding.
func (s *Scope) DeclareValue(name string, v Value) {
	s.bindings[name] = v
}

// Load resolves name by walking the parent chain. The global scope falls
// back to the ambient environment; an unresolved name is a runtime error.
func (s *Scope) Load(name string) (Value, error) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.bindings[name]; ok {
			return v, nil
		}
		if cur.ambient != nil {
			if v, ok := cur.ambient.Lookup(name); ok {
				return v, nil
			}
		}
	}
	return Undefined(), &errors.RuntimeError{
		Msg: fmt.Sprintf("unresolved reference %q", name),
	}
}

// Assign sets name to v in the nearest scope that binds it. On a complete
// miss the global scope silently creates the binding in the ambient
// environment; ordinary chains without a global root raise.
func (s *Scope) Assign(name string, v Value) error {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.bindings[name]; ok {
			cur.bindings[name] = v
			return nil
		}
		if cur.ambient != nil {
			cur.ambient.Define(name, v)
			return nil
		}
	}
	return &errors.RuntimeError{
		Msg: fmt.Sprintf("cannot assign unresolved reference %q", name),
	}
}

// Has reports whether name is bound anywhere in the chain (including the
// ambient environment).
func (s *Scope) Has(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.bindings[name]; ok {
			return true
		}
		if cur.ambient != nil {
			if _, ok := cur.ambient.Lookup(name); ok {
				return true
			}
		}
	}
	return false
}
