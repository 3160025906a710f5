package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/pkg/lexer"
)

func parseOne(t *testing.T, source string) Statement {
	t.Helper()
	program := parseProgram(t, source)
	require.Len(t, program.Statements, 1)
	return program.Statements[0]
}

func parseProgram(t *testing.T, source string) *Program {
	t.Helper()
	p := NewParser(lexer.NewLexer(source))
	program, errs := p.ParseProgram()
	require.Empty(t, errs, "parse errors for %q", source)
	return program
}

func firstExpression(t *testing.T, source string) Expression {
	t.Helper()
	stmt, ok := parseOne(t, source).(*ExpressionStatement)
	require.True(t, ok, "expected expression statement for %q", source)
	return stmt.Expression
}

func TestOperatorPrecedence(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3;", "(1 + (2 * 3))"},
		{"(1 + 2) * 3;", "((1 + 2) * 3)"},
		{"a + b - c;", "((a + b) - c)"},
		{"2 ** 3 ** 2;", "(2 ** (3 ** 2))"},
		{"-a * b;", "((- a) * b)"},
		{"!a && b;", "((! a) && b)"},
		{"a && b || c && d;", "((a && b) || (c && d))"},
		{"a | b ^ c & d;", "(a | (b ^ (c & d)))"},
		{"a < b === c > d;", "((a < b) === (c > d))"},
		{"a << b + c;", "(a << (b + c))"},
		{"a = b = c;", "(a = (b = c))"},
		{"a ? b : c ? d : e;", "(a ? b : (c ? d : e))"},
		{"typeof a === \"string\";", "((typeof a) === \"string\")"},
		{"a.b.c;", "a.b.c"},
		{"a[1][2];", "a[1][2]"},
		{"f(a)(b);", "f(a)(b)"},
		{"a + f(b) * 2;", "(a + (f(b) * 2))"},
		{"\"k\" in o;", "(\"k\" in o)"},
		{"x instanceof F;", "(x instanceof F)"},
	}
	for _, tc := range cases {
		expr := firstExpression(t, tc.input)
		assert.Equal(t, tc.want, expr.String(), "input %q", tc.input)
	}
}

func TestVariableDeclaration(t *testing.T) {
	stmt, ok := parseOne(t, "var a = 1, b, c = a;").(*VariableDeclaration)
	require.True(t, ok)
	require.Len(t, stmt.Declarations, 3)
	assert.Equal(t, "a", stmt.Declarations[0].Name.Name)
	assert.NotNil(t, stmt.Declarations[0].Init)
	assert.Equal(t, "b", stmt.Declarations[1].Name.Name)
	assert.Nil(t, stmt.Declarations[1].Init)
	assert.Equal(t, "c", stmt.Declarations[2].Name.Name)
}

func TestFunctionDeclaration(t *testing.T) {
	stmt, ok := parseOne(t, "function add(a, b) { return a + b; }").(*FunctionDeclaration)
	require.True(t, ok)
	assert.Equal(t, "add", stmt.Name.Name)
	require.Len(t, stmt.Params, 2)
	require.Len(t, stmt.Body.Statements, 1)
	_, isReturn := stmt.Body.Statements[0].(*ReturnStatement)
	assert.True(t, isReturn)
}

func TestFunctionExpressionNamedAndAnonymous(t *testing.T) {
	named := firstExpression(t, "(function g(n) { return n; });").(*FunctionExpression)
	require.NotNil(t, named.Name)
	assert.Equal(t, "g", named.Name.Name)

	decl := parseOne(t, "var f = function (n) { return n; };").(*VariableDeclaration)
	anon, ok := decl.Declarations[0].Init.(*FunctionExpression)
	require.True(t, ok)
	assert.Nil(t, anon.Name)
}

func TestForStatementForms(t *testing.T) {
	full, ok := parseOne(t, "for (var i = 0; i < 3; i++) { s += i; }").(*ForStatement)
	require.True(t, ok)
	assert.NotNil(t, full.Init)
	assert.NotNil(t, full.Test)
	assert.NotNil(t, full.Update)

	bare, ok := parseOne(t, "for (;;) { break; }").(*ForStatement)
	require.True(t, ok)
	assert.Nil(t, bare.Init)
	assert.Nil(t, bare.Test)
	assert.Nil(t, bare.Update)
}

func TestForInParsesAsForIn(t *testing.T) {
	stmt, ok := parseOne(t, "for (var k in o) { }").(*ForInStatement)
	require.True(t, ok)
	_, isVar := stmt.Left.(*VariableDeclaration)
	assert.True(t, isVar)
	assert.Equal(t, "o", stmt.Right.String())
}

func TestSwitchStatement(t *testing.T) {
	stmt, ok := parseOne(t, `switch (x) { case 1: a; break; case 2: b; default: c; }`).(*SwitchStatement)
	require.True(t, ok)
	require.Len(t, stmt.Cases, 3)
	assert.NotNil(t, stmt.Cases[0].Test)
	require.Len(t, stmt.Cases[0].Body, 2)
	assert.Nil(t, stmt.Cases[2].Test)
}

func TestSwitchRejectsTwoDefaults(t *testing.T) {
	p := NewParser(lexer.NewLexer("switch (x) { default: a; default: b; }"))
	_, errs := p.ParseProgram()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message(), "default")
}

func TestLabeledThrowTryParse(t *testing.T) {
	// These constructs parse; the compiler pre-pass rejects them.
	_, ok := parseOne(t, "loop: while (x) { }").(*LabeledStatement)
	assert.True(t, ok)
	_, ok = parseOne(t, "throw err;").(*ThrowStatement)
	assert.True(t, ok)
	tryStmt, isTry := parseOne(t, "try { a; } catch (e) { b; } finally { c; }").(*TryStatement)
	require.True(t, isTry)
	assert.NotNil(t, tryStmt.Handler)
	assert.NotNil(t, tryStmt.Finalizer)
}

func TestArrayLiteralWithHoles(t *testing.T) {
	arr := firstExpression(t, "[1, , 2, ];").(*ArrayExpression)
	require.Len(t, arr.Elements, 3)
	assert.NotNil(t, arr.Elements[0])
	assert.Nil(t, arr.Elements[1])
	assert.NotNil(t, arr.Elements[2])
}

func TestObjectLiteralKeys(t *testing.T) {
	obj := firstExpression(t, `({a: 1, "b c": 2, 3: x, [k]: y, default: z});`).(*ObjectExpression)
	require.Len(t, obj.Properties, 5)
	assert.Equal(t, "a", obj.Properties[0].KeyName)
	assert.Equal(t, "b c", obj.Properties[1].KeyName)
	assert.Equal(t, "3", obj.Properties[2].KeyName)
	assert.NotNil(t, obj.Properties[3].KeyExpr)
	assert.Equal(t, "default", obj.Properties[4].KeyName)
}

func TestSequenceExpression(t *testing.T) {
	seq, ok := firstExpression(t, "a, b, c;").(*SequenceExpression)
	require.True(t, ok)
	assert.Len(t, seq.Expressions, 3)
}

func TestSequenceNotInArguments(t *testing.T) {
	call := firstExpression(t, "f(a, b);").(*CallExpression)
	require.Len(t, call.Arguments, 2)
}

func TestNewExpressionBinding(t *testing.T) {
	ne, ok := firstExpression(t, "new Foo.Bar(1, 2);").(*NewExpression)
	require.True(t, ok)
	member, isMember := ne.Callee.(*MemberExpression)
	require.True(t, isMember)
	assert.Equal(t, "Foo.Bar", member.String())
	assert.Len(t, ne.Arguments, 2)
}

func TestUpdateExpressions(t *testing.T) {
	post := firstExpression(t, "i++;").(*UpdateExpression)
	assert.False(t, post.Prefix)
	pre := firstExpression(t, "--i;").(*UpdateExpression)
	assert.True(t, pre.Prefix)
	assert.Equal(t, "--", pre.Operator)

	member := firstExpression(t, "o.n++;").(*UpdateExpression)
	_, isMember := member.Operand.(*MemberExpression)
	assert.True(t, isMember)
}

func TestInvalidAssignmentTarget(t *testing.T) {
	p := NewParser(lexer.NewLexer("1 = 2;"))
	_, errs := p.ParseProgram()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message(), "invalid assignment target")
}

func TestCompoundAssignmentOperators(t *testing.T) {
	for _, op := range []string{"+=", "-=", "*=", "/=", "%=", "**=", "&=", "|=", "^=", "<<=", ">>=", ">>>="} {
		expr := firstExpression(t, "x "+op+" 2;")
		assign, ok := expr.(*AssignmentExpression)
		require.True(t, ok, "operator %s", op)
		assert.Equal(t, op, assign.Operator)
	}
}

func TestMemberKeywordProperty(t *testing.T) {
	me, ok := firstExpression(t, "o.delete;").(*MemberExpression)
	require.True(t, ok)
	assert.Equal(t, "delete", me.Property.String())
}

func TestDanglingElse(t *testing.T) {
	stmt := parseOne(t, "if (a) if (b) c; else d;").(*IfStatement)
	assert.Nil(t, stmt.Alternate)
	inner, ok := stmt.Consequent.(*IfStatement)
	require.True(t, ok)
	assert.NotNil(t, inner.Alternate)
}
