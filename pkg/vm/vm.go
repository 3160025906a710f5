package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/rs/zerolog"

	"quill/pkg/errors"
)

// MaxCallDepth bounds guest recursion so a runaway program fails with a
// runtime error instead of exhausting the host stack.
const MaxCallDepth = 10000

// VM executes assembled bytecode. The code buffer is immutable after
// assembly; recursive frames share it by read-only reference.
type VM struct {
	code   []byte
	depth  int // current guest call depth
	logger zerolog.Logger
}

// New creates a VM over the given code buffer.
func New(code []byte) *VM {
	return &VM{code: code, logger: zerolog.Nop()}
}

// SetLogger installs a logger for frame-level tracing.
func (m *VM) SetLogger(l zerolog.Logger) {
	m.logger = l
}

// Run executes the program from entry with the given scope (normally the
// global scope) and returns the value yielded by the top-level RET.
func (m *VM) Run(entry uint32, scope *Scope) (Value, error) {
	f := &frame{vm: m, code: m.code, scope: scope, pc: int(entry)}
	m.logger.Debug().Uint32("entry", entry).Msg("vm: start")
	v, err := f.run()
	if err != nil {
		return Undefined(), err
	}
	m.logger.Debug().Str("result", v.Inspect()).Msg("vm: done")
	return v, nil
}

// CallClosure invokes a closure from the host side, for embedders that
// re-enter guest code from native functions or callbacks.
func (m *VM) CallClosure(c *Closure, this Value, args []Value) (Value, error) {
	return m.callClosure(c, this, args)
}

// callClosure spawns a fresh frame for one closure invocation: a child
// scope of the captured scope with `this` (and the self-reference name for
// named function expressions) bound, and an operand stack holding only the
// arguments array.
func (m *VM) callClosure(c *Closure, this Value, args []Value) (Value, error) {
	if m.depth >= MaxCallDepth {
		return Undefined(), &errors.RuntimeError{Msg: "call stack exhausted"}
	}
	scope := NewScope(c.Scope)
	scope.DeclareValue("this", this)
	if c.Name != "" {
		scope.DeclareValue(c.Name, ClosureValue(c))
	}

	f := &frame{
		vm:    m,
		code:  c.Code,
		scope: scope,
		pc:    int(c.Addr),
		stack: []Value{ArrayValue(NewArrayWith(args...))},
	}
	m.depth++
	m.logger.Debug().Str("fn", c.Name).Uint32("addr", c.Addr).Int("depth", m.depth).Msg("vm: call")
	v, err := f.run()
	m.depth--
	return v, err
}

// frame is one ephemeral execution context: a scope, the (read-only) code
// buffer it executes, a program counter, and an operand stack.
type frame struct {
	vm    *VM
	code  []byte
	scope *Scope
	pc    int
	stack []Value
}

func (f *frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() (Value, error) {
	if len(f.stack) == 0 {
		return Undefined(), f.fatal("operand stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *frame) fatal(format string, args ...interface{}) error {
	return &errors.RuntimeError{
		Msg: fmt.Sprintf(format, args...) + fmt.Sprintf(" (pc=%d)", f.pc),
	}
}

// run is the dispatch loop. It reads one opcode at pc, advances, and
// dispatches; it terminates only on RET or a fatal error.
func (f *frame) run() (Value, error) {
	code := f.code
	for {
		if f.pc < 0 || f.pc >= len(code) {
			return Undefined(), f.fatal("program counter out of bounds")
		}
		op := OpCode(code[f.pc])
		f.pc++

		switch op {
		case OpNop:
			// nothing

		case OpUndef:
			f.push(Undefined())
		case OpNull:
			f.push(Null())
		case OpObj:
			f.push(ObjectValue(NewObject()))
		case OpArr:
			f.push(ArrayValue(NewArray()))
		case OpTrue:
			f.push(Boolean(true))
		case OpFalse:
			f.push(Boolean(false))

		case OpNum:
			if f.pc+8 > len(code) {
				return Undefined(), f.fatal("truncated NUM immediate")
			}
			bits := binary.BigEndian.Uint64(code[f.pc : f.pc+8])
			f.pc += 8
			f.push(Number(math.Float64frombits(bits)))

		case OpAddr:
			if f.pc+4 > len(code) {
				return Undefined(), f.fatal("truncated ADDR immediate")
			}
			addr := binary.BigEndian.Uint32(code[f.pc : f.pc+4])
			f.pc += 4
			f.push(Number(float64(addr)))

		case OpStr:
			s, err := f.readStringImmediate(code)
			if err != nil {
				return Undefined(), err
			}
			f.push(String(s))

		case OpPop:
			if _, err := f.pop(); err != nil {
				return Undefined(), err
			}

		case OpTop:
			if len(f.stack) == 0 {
				return Undefined(), f.fatal("operand stack underflow")
			}
			f.push(f.stack[len(f.stack)-1])

		case OpTop2:
			if len(f.stack) < 2 {
				return Undefined(), f.fatal("operand stack underflow")
			}
			a := f.stack[len(f.stack)-2]
			b := f.stack[len(f.stack)-1]
			f.push(a)
			f.push(b)

		case OpVar:
			name, err := f.popName()
			if err != nil {
				return Undefined(), err
			}
			f.scope.Declare(name)

		case OpLoad:
			name, err := f.popName()
			if err != nil {
				return Undefined(), err
			}
			v, err := f.scope.Load(name)
			if err != nil {
				return Undefined(), err
			}
			f.push(v)

		case OpOut:
			name, err := f.popName()
			if err != nil {
				return Undefined(), err
			}
			v, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			if err := f.scope.Assign(name, v); err != nil {
				return Undefined(), err
			}
			f.push(v)

		case OpJump:
			addr, err := f.popAddr()
			if err != nil {
				return Undefined(), err
			}
			f.pc = addr

		case OpJumpIf, OpJumpNot:
			addr, err := f.popAddr()
			if err != nil {
				return Undefined(), err
			}
			test, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			truthy := ToBoolean(test)
			if (op == OpJumpIf && truthy) || (op == OpJumpNot && !truthy) {
				f.pc = addr
			}

		case OpFunc:
			addr, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			arity, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			name, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			c := &Closure{
				Arity: int(ToNumber(arity)),
				Addr:  uint32(ToNumber(addr)),
				Code:  f.code,
				Scope: f.scope,
			}
			if name.Type() == TypeString {
				c.Name = name.AsString()
			}
			f.push(ClosureValue(c))

		case OpCall:
			args, err := f.popArgs()
			if err != nil {
				return Undefined(), err
			}
			fn, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			recv, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			result, err := f.invoke(fn, recv, args)
			if err != nil {
				return Undefined(), err
			}
			f.push(result)

		case OpNew:
			args, err := f.popArgs()
			if err != nil {
				return Undefined(), err
			}
			fn, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			result, err := f.construct(fn, args)
			if err != nil {
				return Undefined(), err
			}
			f.push(result)

		case OpRet:
			return f.pop()

		case OpGet:
			key, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			obj, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			v, err := f.getMember(obj, key)
			if err != nil {
				return Undefined(), err
			}
			f.push(v)

		case OpSet:
			v, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			key, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			obj, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			if err := f.setMember(obj, key, v); err != nil {
				return Undefined(), err
			}
			f.push(v)

		case OpIn:
			obj, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			key, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			has, err := f.hasMember(obj, key)
			if err != nil {
				return Undefined(), err
			}
			f.push(Boolean(has))

		case OpDelete:
			key, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			obj, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			f.push(Boolean(f.deleteMember(obj, key)))

		case OpEq, OpNeq, OpSeq, OpSneq:
			r, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			l, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			var eq bool
			if op == OpEq || op == OpNeq {
				eq = LooseEquals(l, r)
			} else {
				eq = StrictEquals(l, r)
			}
			if op == OpNeq || op == OpSneq {
				eq = !eq
			}
			f.push(Boolean(eq))

		case OpLt, OpLte, OpGt, OpGte:
			r, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			l, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			f.push(Boolean(Compare(l, r, op)))

		case OpAdd:
			r, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			l, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			f.push(Add(l, r))

		case OpSub, OpMul, OpExp, OpDiv, OpMod:
			r, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			l, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			ln, rn := ToNumber(l), ToNumber(r)
			var out float64
			switch op {
			case OpSub:
				out = ln - rn
			case OpMul:
				out = ln * rn
			case OpExp:
				out = math.Pow(ln, rn)
			case OpDiv:
				out = ln / rn
			case OpMod:
				out = math.Mod(ln, rn)
			}
			f.push(Number(out))

		case OpBnot:
			v, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			f.push(Number(float64(^ToInt32(v))))

		case OpBor, OpBxor, OpBand, OpLshift, OpRshift, OpUrshift:
			r, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			l, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			f.push(bitwise(op, l, r))

		case OpOr, OpAnd:
			r, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			l, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			lb, rb := ToBoolean(l), ToBoolean(r)
			if op == OpOr {
				f.push(Boolean(lb || rb))
			} else {
				f.push(Boolean(lb && rb))
			}

		case OpNot:
			v, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			f.push(Boolean(!ToBoolean(v)))

		case OpInsof:
			r, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			l, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			ok, err := instanceOf(l, r)
			if err != nil {
				return Undefined(), f.fatal("%s", err)
			}
			f.push(Boolean(ok))

		case OpTypeof:
			v, err := f.pop()
			if err != nil {
				return Undefined(), err
			}
			f.push(String(v.TypeOf()))

		default:
			return Undefined(), f.fatal("unknown opcode 0x%02x", byte(op))
		}
	}
}

// readStringImmediate decodes the inline STR payload: big-endian 16-bit
// code units up to a 0x0000 terminator.
func (f *frame) readStringImmediate(code []byte) (string, error) {
	var units []uint16
	for {
		if f.pc+2 > len(code) {
			return "", f.fatal("unterminated STR immediate")
		}
		u := binary.BigEndian.Uint16(code[f.pc : f.pc+2])
		f.pc += 2
		if u == 0 {
			return string(utf16.Decode(units)), nil
		}
		units = append(units, u)
	}
}

func (f *frame) popName() (string, error) {
	v, err := f.pop()
	if err != nil {
		return "", err
	}
	if v.Type() != TypeString {
		return "", f.fatal("expected a name string on the stack, got %s", v.Type())
	}
	return v.AsString(), nil
}

func (f *frame) popAddr() (int, error) {
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	if v.Type() != TypeNumber {
		return 0, f.fatal("expected a jump address on the stack, got %s", v.Type())
	}
	return int(v.AsNumber()), nil
}

func (f *frame) popArgs() ([]Value, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	if v.Type() != TypeArray {
		return nil, f.fatal("expected an argument array on the stack, got %s", v.Type())
	}
	return v.AsArray().Elements(), nil
}

// invoke applies a callable with the given receiver and arguments.
func (f *frame) invoke(fn, recv Value, args []Value) (Value, error) {
	switch fn.Type() {
	case TypeClosure:
		return f.vm.callClosure(fn.AsClosure(), recv, args)
	case TypeNativeFunction:
		result, err := fn.AsNative().Fn(recv, args)
		if err != nil {
			return Undefined(), &errors.RuntimeError{Msg: err.Error(), Cause: err}
		}
		return result, nil
	default:
		return Undefined(), f.fatal("%s is not a function", fn.Type())
	}
}

// construct implements NEW: a fresh object is bound as `this`; when the
// function returns a non-object, the fresh object is the result.
func (f *frame) construct(fn Value, args []Value) (Value, error) {
	if !fn.IsCallable() {
		return Undefined(), f.fatal("%s is not a constructor", fn.Type())
	}
	instance := NewObject()
	instance.ctor = fn
	result, err := f.invoke(fn, ObjectValue(instance), args)
	if err != nil {
		return Undefined(), err
	}
	if result.IsObjectLike() {
		return result, nil
	}
	return ObjectValue(instance), nil
}

// --- Member access ---

func (f *frame) getMember(obj, key Value) (Value, error) {
	if obj.IsNullish() {
		return Undefined(), f.fatal("cannot read property %q of %s", ToPropertyKey(key), obj.Type())
	}
	k := ToPropertyKey(key)
	switch obj.Type() {
	case TypeObject:
		return obj.AsObject().Get(k), nil
	case TypeArray:
		a := obj.AsArray()
		if k == "length" {
			return Number(float64(a.Len())), nil
		}
		if i, ok := arrayIndex(k); ok {
			return a.GetIndex(i), nil
		}
		return Undefined(), nil
	case TypeString:
		units := utf16.Encode([]rune(obj.AsString()))
		if k == "length" {
			return Number(float64(len(units))), nil
		}
		if i, ok := arrayIndex(k); ok {
			if i < len(units) {
				return String(string(utf16.Decode(units[i : i+1]))), nil
			}
			return Undefined(), nil
		}
		return Undefined(), nil
	case TypeClosure:
		switch k {
		case "name":
			return String(obj.AsClosure().Name), nil
		case "length":
			return Number(float64(obj.AsClosure().Arity)), nil
		}
		return Undefined(), nil
	case TypeNativeFunction:
		if k == "name" {
			return String(obj.AsNative().Name), nil
		}
		return Undefined(), nil
	default:
		return Undefined(), nil
	}
}

func (f *frame) setMember(obj, key, v Value) error {
	if obj.IsNullish() {
		return f.fatal("cannot set property %q of %s", ToPropertyKey(key), obj.Type())
	}
	k := ToPropertyKey(key)
	switch obj.Type() {
	case TypeObject:
		obj.AsObject().Set(k, v)
	case TypeArray:
		a := obj.AsArray()
		if k == "length" {
			a.setLength(int(ToNumber(v)))
			return nil
		}
		if i, ok := arrayIndex(k); ok {
			a.SetIndex(i, v)
		}
		// Non-index keys on arrays are silently dropped.
	default:
		// Assignment to a property of a primitive is silently ignored.
	}
	return nil
}

func (f *frame) hasMember(obj, key Value) (bool, error) {
	if !obj.IsObjectLike() {
		return false, f.fatal("cannot use 'in' on %s", obj.Type())
	}
	k := ToPropertyKey(key)
	if obj.Type() == TypeObject {
		return obj.AsObject().Has(k), nil
	}
	a := obj.AsArray()
	if k == "length" {
		return true, nil
	}
	i, ok := arrayIndex(k)
	return ok && i < a.Len(), nil
}

func (f *frame) deleteMember(obj, key Value) bool {
	k := ToPropertyKey(key)
	switch obj.Type() {
	case TypeObject:
		return obj.AsObject().Delete(k)
	case TypeArray:
		if i, ok := arrayIndex(k); ok && i < obj.AsArray().Len() {
			obj.AsArray().elements[i] = Undefined()
			return true
		}
		return false
	default:
		return true
	}
}

// arrayIndex parses a canonical non-negative integer key.
func arrayIndex(k string) (int, bool) {
	i, err := strconv.Atoi(k)
	if err != nil || i < 0 || strconv.Itoa(i) != k {
		return 0, false
	}
	return i, true
}

func bitwise(op OpCode, l, r Value) Value {
	switch op {
	case OpBor:
		return Number(float64(ToInt32(l) | ToInt32(r)))
	case OpBxor:
		return Number(float64(ToInt32(l) ^ ToInt32(r)))
	case OpBand:
		return Number(float64(ToInt32(l) & ToInt32(r)))
	case OpLshift:
		return Number(float64(ToInt32(l) << (ToUint32(r) & 31)))
	case OpRshift:
		return Number(float64(ToInt32(l) >> (ToUint32(r) & 31)))
	case OpUrshift:
		return Number(float64(ToUint32(l) >> (ToUint32(r) & 31)))
	}
	return Undefined()
}

// instanceOf checks whether l was constructed by r. Without prototype
// chains beyond the host's `new` convention, an object remembers its
// constructor and `instanceof` compares against it.
func instanceOf(l, r Value) (bool, error) {
	if !r.IsCallable() {
		return false, fmt.Errorf("right-hand side of 'instanceof' is not callable")
	}
	if l.Type() != TypeObject {
		return false, nil
	}
	return StrictEquals(l.AsObject().ctor, r), nil
}
