package driver

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"quill/pkg/vm"
)

// MapAmbient is a map-backed vm.Ambient. The global scope consults it on
// load misses and silently creates bindings in it on assignment misses.
type MapAmbient struct {
	values map[string]vm.Value
}

// NewMapAmbient creates an empty ambient environment.
func NewMapAmbient() *MapAmbient {
	return &MapAmbient{values: make(map[string]vm.Value)}
}

// Lookup implements vm.Ambient.
func (m *MapAmbient) Lookup(name string) (vm.Value, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Define implements vm.Ambient.
func (m *MapAmbient) Define(name string, v vm.Value) {
	m.values[name] = v
}

// DefaultAmbient builds the default global environment offered to scripts:
// a handful of host functions and the usual global constants.
func DefaultAmbient() *MapAmbient {
	a := NewMapAmbient()

	a.Define("undefined", vm.Undefined())
	a.Define("NaN", vm.Number(math.NaN()))
	a.Define("Infinity", vm.Number(math.Inf(1)))
	// `this` at the script root resolves through the ambient environment.
	a.Define("this", vm.Undefined())

	a.defineNative("print", func(this vm.Value, args []vm.Value) (vm.Value, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = vm.ToString(arg)
		}
		fmt.Fprint(os.Stdout, strings.Join(parts, " "))
		return vm.Undefined(), nil
	})
	a.defineNative("println", func(this vm.Value, args []vm.Value) (vm.Value, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = vm.ToString(arg)
		}
		fmt.Fprintln(os.Stdout, strings.Join(parts, " "))
		return vm.Undefined(), nil
	})
	a.defineNative("clock", func(this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Number(float64(time.Now().UnixNano()) / 1e9), nil
	})
	a.defineNative("String", func(this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 {
			return vm.String(""), nil
		}
		return vm.String(vm.ToString(args[0])), nil
	})
	a.defineNative("Number", func(this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 {
			return vm.Number(0), nil
		}
		return vm.Number(vm.ToNumber(args[0])), nil
	})
	a.defineNative("Boolean", func(this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 {
			return vm.Boolean(false), nil
		}
		return vm.Boolean(vm.ToBoolean(args[0])), nil
	})

	return a
}

func (m *MapAmbient) defineNative(name string, fn func(this vm.Value, args []vm.Value) (vm.Value, error)) {
	m.Define(name, vm.NativeValue(&vm.NativeFunction{Name: name, Fn: fn}))
}
