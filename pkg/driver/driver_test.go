package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/pkg/vm"
)

func runValue(t *testing.T, source string) vm.Value {
	t.Helper()
	v, errs := Run(source)
	require.Empty(t, errs, "errors running %q", source)
	return v
}

func assertNumber(t *testing.T, source string, want float64) {
	t.Helper()
	v := runValue(t, source)
	require.Equal(t, vm.TypeNumber, v.Type(), "source %q -> %s", source, v.Inspect())
	assert.Equal(t, want, v.AsNumber(), "source %q", source)
}

func assertString(t *testing.T, source string, want string) {
	t.Helper()
	v := runValue(t, source)
	require.Equal(t, vm.TypeString, v.Type(), "source %q -> %s", source, v.Inspect())
	assert.Equal(t, want, v.AsString(), "source %q", source)
}

func assertBool(t *testing.T, source string, want bool) {
	t.Helper()
	v := runValue(t, source)
	require.Equal(t, vm.TypeBoolean, v.Type(), "source %q -> %s", source, v.Inspect())
	assert.Equal(t, want, v.AsBoolean(), "source %q", source)
}

// --- The pipeline scenarios ---

func TestVarAndArithmetic(t *testing.T) {
	assertNumber(t, "var x = 1; x + 2;", 3)
}

func TestForLoopStringAccumulation(t *testing.T) {
	assertString(t, "var s = ''; for (var i = 0; i < 3; i++) s += i; s;", "012")
}

func TestRecursiveFactorial(t *testing.T) {
	assertNumber(t, "function fact(n){ return n < 2 ? 1 : n * fact(n-1); } fact(5);", 120)
}

func TestNamedFunctionExpressionRecursion(t *testing.T) {
	assertNumber(t, "var f = function g(n){ return n < 1 ? 0 : n + g(n-1); }; f(4);", 10)
}

func TestCompoundMemberAssignment(t *testing.T) {
	assertNumber(t, "var o = {a:1}; o.a += 10; o.a;", 11)
}

func TestSwitchFallThrough(t *testing.T) {
	// Dispatch matches case 2, then the bodies of 2, 3, and default run in
	// sequence; the completion value is the last expression executed.
	assertString(t, `switch(2){ case 1: "a"; break; case 2: "b"; case 3: "c"; default: "d"; }`, "d")
}

func TestClosureCaptureViaIIFE(t *testing.T) {
	assertNumber(t, `
		var a = [];
		for (var i = 0; i < 3; i++)
			a[i] = (function(j){ return function(){ return j; } })(i);
		a[0]() + a[1]() + a[2]();
	`, 3)
}

// --- Short-circuit evaluation ---

func TestAndShortCircuit(t *testing.T) {
	assertNumber(t, `
		var calls = 0;
		function bump(){ calls = calls + 1; return true; }
		false && bump();
		calls;
	`, 0)
}

func TestOrShortCircuit(t *testing.T) {
	assertNumber(t, `
		var calls = 0;
		function bump(){ calls = calls + 1; return true; }
		true || bump();
		calls;
	`, 0)
}

func TestLogicalResultIsOperandValue(t *testing.T) {
	// The result of && / || is the deciding operand, not a boolean.
	assertNumber(t, "0 || 42;", 42)
	assertNumber(t, "1 && 42;", 42)
	assertString(t, "'' || 'fallback';", "fallback")
	assertNumber(t, "0 && 42;", 0)
}

// --- Hoisting ---

func TestHoistedVarIsUndefinedBeforeInit(t *testing.T) {
	assertString(t, "var r = typeof x; var x = 1; r;", "undefined")
}

func TestHoistingInsideFunction(t *testing.T) {
	assertString(t, `
		function f(){ var r = typeof y; var y = 2; return r; }
		f();
	`, "undefined")
}

// --- Closures and scope ---

func TestClosureOutlivesCreatingFrame(t *testing.T) {
	assertNumber(t, `
		function counter(){ var n = 0; return function(){ n += 1; return n; }; }
		var c = counter();
		c(); c(); c();
	`, 3)
}

func TestTwoClosuresShareVarScopedBinding(t *testing.T) {
	// var is function-scoped: both closures observe the final value.
	assertNumber(t, `
		var fns = [];
		for (var i = 0; i < 3; i++) fns[i] = function(){ return i; };
		fns[0]() + fns[1]() + fns[2]();
	`, 9)
}

func TestNamedFunctionExpressionSelfReference(t *testing.T) {
	assertBool(t, "var f = function g(){ return g; }; f() === f;", true)
}

func TestNamedFunctionExpressionNameNotVisibleOutside(t *testing.T) {
	_, errs := Run("var f = function g(){ return 1; }; g();")
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message(), "unresolved reference")
}

// --- Control flow ---

func TestIfElse(t *testing.T) {
	assertString(t, "var r; if (1 < 2) r = 'yes'; else r = 'no'; r;", "yes")
	assertString(t, "var r; if (1 > 2) r = 'yes'; else r = 'no'; r;", "no")
}

func TestWhileWithBreak(t *testing.T) {
	assertNumber(t, "var i = 0; while (true) { if (i >= 3) break; i++; } i;", 3)
}

func TestForWithContinue(t *testing.T) {
	assertNumber(t, `
		var s = 0;
		for (var i = 0; i < 5; i++) { if (i % 2 === 0) continue; s += i; }
		s;
	`, 4)
}

func TestDoWhileRunsBodyFirst(t *testing.T) {
	assertNumber(t, "var i = 10; var runs = 0; do { runs++; } while (i < 5); runs;", 1)
}

func TestForZeroTripNeverRunsBody(t *testing.T) {
	assertNumber(t, "var n = 0; for (var i = 9; i < 3; i++) n++; n;", 0)
}

func TestNestedLoopBreakTargetsInnermost(t *testing.T) {
	assertNumber(t, `
		var count = 0;
		for (var i = 0; i < 3; i++) {
			for (var j = 0; j < 10; j++) { if (j === 2) break; count++; }
		}
		count;
	`, 6)
}

func TestSwitchDefaultOnly(t *testing.T) {
	assertString(t, `switch (9) { case 1: "one"; break; default: "other"; }`, "other")
}

func TestSwitchNoMatchNoDefault(t *testing.T) {
	assertNumber(t, `var r = 1; switch (9) { case 1: r = 2; } r;`, 1)
}

func TestContinueInsideSwitchReachesLoop(t *testing.T) {
	assertNumber(t, `
		var s = 0;
		for (var i = 0; i < 4; i++) {
			switch (i) { case 1: case 3: continue; }
			s += i;
		}
		s;
	`, 2)
}

// --- Operators ---

func TestUpdateExpressions(t *testing.T) {
	assertNumber(t, "var i = 5; var a = i++; a * 10 + i;", 56)
	assertNumber(t, "var i = 5; var a = i--; a * 10 + i;", 54)
	assertNumber(t, "var i = 5; var b = ++i; b * 10 + i;", 66)
	assertNumber(t, "var i = 5; var b = --i; b * 10 + i;", 44)
}

func TestUpdateOnMember(t *testing.T) {
	assertNumber(t, "var o = {n: 1}; o.n++; o.n;", 2)
	assertNumber(t, "var a = [4]; var pre = a[0]++; pre * 10 + a[0];", 45)
}

func TestCompoundAssignmentOrderOfOperands(t *testing.T) {
	// Non-commutative compounds store target-op-value.
	assertNumber(t, "var x = 10; x -= 4; x;", 6)
	assertNumber(t, "var x = 20; x /= 5; x;", 4)
	assertNumber(t, "var x = 7; x %= 4; x;", 3)
	assertNumber(t, "var x = 1; x <<= 3; x;", 8)
	assertNumber(t, "var o = {n: 9}; o.n -= 2; o.n;", 7)
}

func TestSequenceExpression(t *testing.T) {
	assertNumber(t, "var a = (1, 2, 3); a;", 3)
	assertNumber(t, "var x = 0; var y = (x = 5, x + 1); y;", 6)
}

func TestTernary(t *testing.T) {
	assertString(t, "1 ? 'a' : 'b';", "a")
	assertString(t, "0 ? 'a' : 'b';", "b")
}

func TestUnaryOperators(t *testing.T) {
	assertNumber(t, "-5;", -5)
	assertNumber(t, "- '4';", -4)
	assertBool(t, "!0;", true)
	assertBool(t, "!'x';", false)
	assertNumber(t, "~5;", -6)
	assertString(t, "typeof 'hi';", "string")
	assertString(t, "typeof {};", "object")
	assertString(t, "typeof null;", "object")
	assertBool(t, "void 0 === undefined;", true)
}

func TestBitwiseAndShiftOperators(t *testing.T) {
	assertNumber(t, "(5 & 3) * 100 + (5 | 3) * 10 + (5 ^ 3);", 176)
	assertNumber(t, "1 << 4;", 16)
	assertNumber(t, "-8 >> 1;", -4)
	assertNumber(t, "-1 >>> 28;", 15)
}

func TestEqualityOperators(t *testing.T) {
	assertBool(t, "1 == '1';", true)
	assertBool(t, "1 === '1';", false)
	assertBool(t, "null == undefined;", true)
	assertBool(t, "null === undefined;", false)
	assertBool(t, "1 != 2;", true)
	assertBool(t, "1 !== 1;", false)
}

func TestStringConcatAndCoercion(t *testing.T) {
	assertString(t, "'a' + 1;", "a1")
	assertNumber(t, "'10' * 2;", 20)
	assertNumber(t, "'10' - '4';", 6)
}

func TestExponentOperator(t *testing.T) {
	assertNumber(t, "2 ** 10;", 1024)
	assertNumber(t, "2 ** 3 ** 2;", 512)
}

// --- Objects, arrays, members ---

func TestObjectLiteralAndAccess(t *testing.T) {
	assertNumber(t, "var o = {a: 1, b: {c: 2}}; o.a + o.b.c;", 3)
	assertNumber(t, "var o = {'with space': 4}; o['with space'];", 4)
	assertNumber(t, "var k = 'key'; var o = {}; o[k] = 6; o.key;", 6)
}

func TestArrayLiteralAndIndexing(t *testing.T) {
	assertNumber(t, "var a = [10, 20, 30]; a[0] + a[2];", 40)
	assertNumber(t, "[1, 2, 3].length;", 3)
	assertNumber(t, "var a = []; a[4] = 1; a.length;", 5)
}

func TestArrayHoleLowersToNull(t *testing.T) {
	assertBool(t, "var a = [1, , 3]; a[1] === null;", true)
}

func TestStringMembers(t *testing.T) {
	assertNumber(t, "'hello'.length;", 5)
	assertString(t, "'hello'[1];", "e")
}

func TestDeleteAndInOperators(t *testing.T) {
	assertBool(t, "var o = {a: 1}; 'a' in o;", true)
	assertBool(t, "var o = {a: 1}; delete o.a; 'a' in o;", false)
	assertBool(t, "delete foo;", true)
}

func TestMethodCallBindsThis(t *testing.T) {
	assertNumber(t, "var o = {v: 5, get: function(){ return this.v; }}; o.get();", 5)
	assertNumber(t, "var o = {v: 7, inner: {v: 8, get: function(){ return this.v; }}}; o.inner.get();", 8)
}

func TestNewExpression(t *testing.T) {
	assertNumber(t, "function P(x){ this.x = x; } var p = new P(3); p.x;", 3)
	assertNumber(t, "function F(){ return {v: 7}; } (new F()).v;", 7)
	assertBool(t, "function P(){} var p = new P(); p instanceof P;", true)
	assertBool(t, "function P(){} function Q(){} var p = new P(); p instanceof Q;", false)
}

func TestFunctionIntrospection(t *testing.T) {
	assertNumber(t, "var f = function(a, b){}; f.length;", 2)
	assertString(t, "var f = function g(){}; f.name;", "g")
}

// --- Completion value ---

func TestEmptyScriptYieldsUndefined(t *testing.T) {
	assert.True(t, runValue(t, "").IsUndefined())
	assert.True(t, runValue(t, ";;").IsUndefined())
	assert.True(t, runValue(t, "var x = 1;").IsUndefined())
}

func TestFunctionWithoutReturnYieldsUndefined(t *testing.T) {
	assertBool(t, "function f(){ 42; } f() === undefined;", true)
}

func TestCompletionValueTracksLastExpression(t *testing.T) {
	assertNumber(t, "1; 2; 3;", 3)
	assertNumber(t, "var r = 0; if (true) { r + 10; } else { r + 20; }", 10)
}

// --- Session behavior ---

func TestSessionPersistsGlobals(t *testing.T) {
	q := NewQuill()
	_, errs := q.RunString("var x = 10;")
	require.Empty(t, errs)
	v, errs := q.RunString("x * 2;")
	require.Empty(t, errs)
	assert.Equal(t, float64(20), v.AsNumber())
}

func TestSessionClosuresSurviveEvaluations(t *testing.T) {
	q := NewQuill()
	_, errs := q.RunString("function make(){ var n = 0; return function(){ return ++n; }; } var c = make();")
	require.Empty(t, errs)
	q.RunString("c();")
	v, errs := q.RunString("c();")
	require.Empty(t, errs)
	assert.Equal(t, float64(2), v.AsNumber())
}

func TestRegisterNative(t *testing.T) {
	q := NewQuill()
	q.RegisterNative("double", func(this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Number(vm.ToNumber(args[0]) * 2), nil
	})
	v, errs := q.RunString("double(21);")
	require.Empty(t, errs)
	assert.Equal(t, float64(42), v.AsNumber())
}

func TestAssignToUndeclaredCreatesAmbientGlobal(t *testing.T) {
	q := NewQuill()
	_, errs := q.RunString("fresh = 42;")
	require.Empty(t, errs)
	v, errs := q.RunString("fresh;")
	require.Empty(t, errs)
	assert.Equal(t, float64(42), v.AsNumber())
}

func TestDefaultAmbientGlobals(t *testing.T) {
	assertString(t, "String(12);", "12")
	assertNumber(t, "Number('3.5');", 3.5)
	assertBool(t, "Boolean('');", false)
	assertString(t, "typeof print;", "function")
	assertBool(t, "NaN !== NaN;", true)
}

// --- Errors ---

func TestUnsupportedSyntaxErrors(t *testing.T) {
	for _, src := range []string{
		"lbl: while (1) break;",
		"throw 1;",
		"try { 1; } finally { 2; }",
		"for (var k in {}) { }",
	} {
		_, errs := Run(src)
		require.NotEmpty(t, errs, "source %q", src)
		assert.Equal(t, "Compile", errs[0].Kind())
		assert.Contains(t, errs[0].Message(), "unsupported syntax")
	}
}

func TestUnresolvedReferenceIsRuntimeError(t *testing.T) {
	_, errs := Run("function f(){ return missing; } f();")
	require.NotEmpty(t, errs)
	assert.Equal(t, "Runtime", errs[0].Kind())
	assert.Contains(t, errs[0].Message(), "unresolved reference")
}

func TestSyntaxErrorSurfacesFromParser(t *testing.T) {
	_, errs := Run("var = 1;")
	require.NotEmpty(t, errs)
	assert.Equal(t, "Syntax", errs[0].Kind())
}

func TestCallStackExhaustion(t *testing.T) {
	_, errs := Run("function f(){ return f(); } f();")
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message(), "call stack exhausted")
}

func TestCompileSurface(t *testing.T) {
	code, errs := Compile("1 + 2;")
	require.Empty(t, errs)
	assert.NotEmpty(t, code)

	program, errs := CompileProgram("1 + 2;")
	require.Empty(t, errs)
	assert.Equal(t, program.Code, code)
	assert.Contains(t, program.Labels, ".main_1")
}
