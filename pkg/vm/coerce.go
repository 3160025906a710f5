package vm

import (
	"math"
	"strconv"
	"strings"
)

// Coercion and comparison semantics follow the dynamic-scripting
// tradition: false, 0, "", null, undefined, and NaN are falsy; `+`
// concatenates when either side is a string; `==` coerces; `===` does not.

// ToBoolean converts a value to its truthiness.
func ToBoolean(v Value) bool {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return false
	case TypeBoolean:
		return v.boolean
	case TypeNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case TypeString:
		return v.str != ""
	default:
		return true
	}
}

// ToNumber converts a value to a number. Objects, arrays, and functions
// convert through their primitive (string) form first.
func ToNumber(v Value) float64 {
	switch v.typ {
	case TypeUndefined:
		return math.NaN()
	case TypeNull:
		return 0
	case TypeBoolean:
		if v.boolean {
			return 1
		}
		return 0
	case TypeNumber:
		return v.num
	case TypeString:
		return stringToNumber(v.str)
	case TypeArray:
		// [] -> 0, [x] -> Number(x's string form), otherwise NaN; this
		// falls out of converting through the joined string form.
		return stringToNumber(arrayJoin(v.array))
	default:
		return math.NaN()
	}
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		u, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(u)
	}
	if s == "Infinity" || s == "+Infinity" {
		return math.Inf(1)
	}
	if s == "-Infinity" {
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToString converts a value to its string form.
func ToString(v Value) string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case TypeNumber:
		return NumberToString(v.num)
	case TypeString:
		return v.str
	case TypeObject:
		return "[object Object]"
	case TypeArray:
		return arrayJoin(v.array)
	case TypeClosure:
		name := v.closure.Name
		if name == "" {
			name = "anonymous"
		}
		return "function " + name + "() { [bytecode] }"
	case TypeNativeFunction:
		return "function " + v.native.Name + "() { [native code] }"
	}
	return ""
}

// NumberToString formats a float the way the scripting tradition does:
// integral values without a decimal point, NaN and infinities spelled out.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0" // covers -0 as well
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func arrayJoin(a *Array) string {
	parts := make([]string, len(a.elements))
	for i, e := range a.elements {
		if e.IsNullish() {
			parts[i] = ""
			continue
		}
		parts[i] = ToString(e)
	}
	return strings.Join(parts, ",")
}

// ToInt32 converts per the standard modulo-2^32 signed truncation.
func ToInt32(v Value) int32 {
	return int32(ToUint32(v))
}

// ToUint32 converts per the standard modulo-2^32 unsigned truncation.
func ToUint32(v Value) uint32 {
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return uint32(f)
}

// StrictEquals implements `===`: no coercion, types must match.
func StrictEquals(l, r Value) bool {
	if l.typ != r.typ {
		// The two number representations are already unified; only exact
		// type matches compare equal.
		return false
	}
	switch l.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return l.boolean == r.boolean
	case TypeNumber:
		return l.num == r.num // NaN != NaN falls out of Go float compare
	case TypeString:
		return l.str == r.str
	case TypeObject:
		return l.object == r.object
	case TypeArray:
		return l.array == r.array
	case TypeClosure:
		return l.closure == r.closure
	case TypeNativeFunction:
		return l.native == r.native
	}
	return false
}

// LooseEquals implements the coercing `==`.
func LooseEquals(l, r Value) bool {
	if l.typ == r.typ {
		return StrictEquals(l, r)
	}
	// null == undefined (and nothing else).
	if l.IsNullish() && r.IsNullish() {
		return true
	}
	if l.IsNullish() || r.IsNullish() {
		return false
	}
	// Booleans coerce to numbers first.
	if l.typ == TypeBoolean {
		return LooseEquals(Number(ToNumber(l)), r)
	}
	if r.typ == TypeBoolean {
		return LooseEquals(l, Number(ToNumber(r)))
	}
	// number vs string: numeric comparison.
	if l.typ == TypeNumber && r.typ == TypeString {
		return l.num == stringToNumber(r.str)
	}
	if l.typ == TypeString && r.typ == TypeNumber {
		return stringToNumber(l.str) == r.num
	}
	// Object-likes compare against primitives through their string form.
	if l.IsObjectLike() && (r.typ == TypeNumber || r.typ == TypeString) {
		return LooseEquals(String(ToString(l)), r)
	}
	if r.IsObjectLike() && (l.typ == TypeNumber || l.typ == TypeString) {
		return LooseEquals(l, String(ToString(r)))
	}
	return false
}

// Compare implements the relational operators. When both operands are
// strings the comparison is lexicographic on code units; otherwise both
// sides convert to number and any NaN makes every relation false.
func Compare(l, r Value, op OpCode) bool {
	if l.typ == TypeString && r.typ == TypeString {
		switch op {
		case OpLt:
			return l.str < r.str
		case OpLte:
			return l.str <= r.str
		case OpGt:
			return l.str > r.str
		case OpGte:
			return l.str >= r.str
		}
		return false
	}
	ln, rn := ToNumber(l), ToNumber(r)
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return false
	}
	switch op {
	case OpLt:
		return ln < rn
	case OpLte:
		return ln <= rn
	case OpGt:
		return ln > rn
	case OpGte:
		return ln >= rn
	}
	return false
}

// Add implements `+`: concatenation when either operand is a string or an
// object-like (through its string form), numeric addition otherwise.
func Add(l, r Value) Value {
	if l.typ == TypeString || r.typ == TypeString || l.IsObjectLike() || r.IsObjectLike() {
		return String(ToString(l) + ToString(r))
	}
	return Number(ToNumber(l) + ToNumber(r))
}

// ToPropertyKey converts a value used as a member key into its string
// form. Integral numbers render without a decimal point so that
// `a[1]` and `a["1"]` address the same slot.
func ToPropertyKey(v Value) string {
	return ToString(v)
}
