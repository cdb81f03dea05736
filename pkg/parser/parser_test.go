package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/smogvm/pkg/ast"
)

func parseOK(t *testing.T, input string) *ast.Program {
	t.Helper()
	prog, errs := ParseProgram(input)
	require.Empty(t, errs)
	return prog
}

func TestParseVarStatement(t *testing.T) {
	prog := parseOK(t, "let x = 1 + 2;")
	require.Len(t, prog.Statements, 1)
	stmt, ok := prog.Statements[0].(*ast.VarStatement)
	require.True(t, ok)
	require.Equal(t, "x", stmt.Name)
	require.True(t, stmt.Mutable)
	bin, ok := stmt.Value.(*ast.BinaryExpression)
	require.True(t, ok)
	require.Equal(t, "+", bin.Operator)
}

func TestParseConstIsImmutable(t *testing.T) {
	prog := parseOK(t, "const x = 1;")
	stmt := prog.Statements[0].(*ast.VarStatement)
	require.False(t, stmt.Mutable)
}

func TestParsePrecedenceAdditiveVsMultiplicative(t *testing.T) {
	prog := parseOK(t, "1 + 2 * 3;")
	stmt := prog.Statements[0].(*ast.ExpressionStatement)
	bin := stmt.Expression.(*ast.BinaryExpression)
	require.Equal(t, "+", bin.Operator)
	_, ok := bin.Left.(*ast.IntegerLiteral)
	require.True(t, ok)
	rhs := bin.Right.(*ast.BinaryExpression)
	require.Equal(t, "*", rhs.Operator)
}

func TestParseComparisonAndLogical(t *testing.T) {
	prog := parseOK(t, "a < b && c > d;")
	stmt := prog.Statements[0].(*ast.ExpressionStatement)
	logical := stmt.Expression.(*ast.LogicalExpression)
	require.Equal(t, "&&", logical.Operator)
	_, ok := logical.Left.(*ast.BinaryExpression)
	require.True(t, ok)
}

func TestParseIfElse(t *testing.T) {
	prog := parseOK(t, `if n < 2 { return n } else { return n - 1 }`)
	stmt := prog.Statements[0].(*ast.IfStatement)
	require.NotNil(t, stmt.Condition)
	require.Len(t, stmt.Then.Statements, 1)
	elseBlock, ok := stmt.Else.(*ast.BlockStatement)
	require.True(t, ok)
	require.Len(t, elseBlock.Statements, 1)
}

func TestParseIfWithoutParensDoesNotSwallowStructLiteral(t *testing.T) {
	prog := parseOK(t, `if Flag { x }`)
	stmt := prog.Statements[0].(*ast.IfStatement)
	_, ok := stmt.Condition.(*ast.Identifier)
	require.True(t, ok)
	require.Len(t, stmt.Then.Statements, 1)
}

func TestParseWhile(t *testing.T) {
	prog := parseOK(t, `while i < 10 { i = i + 1 }`)
	stmt := prog.Statements[0].(*ast.WhileStatement)
	require.NotNil(t, stmt.Condition)
	require.Len(t, stmt.Body.Statements, 1)
}

func TestParseFuncLiteralAndCall(t *testing.T) {
	prog := parseOK(t, `let fib = func(n) { if n < 2 { return n }; return fib(n-1) + fib(n-2) }; fib(10)`)
	require.Len(t, prog.Statements, 2)
	v := prog.Statements[0].(*ast.VarStatement)
	fn := v.Value.(*ast.FuncLiteral)
	require.Equal(t, []string{"n"}, fn.Params)
	require.Equal(t, "fib", fn.Name)

	call := prog.Statements[1].(*ast.ExpressionStatement).Expression.(*ast.CallExpression)
	require.Len(t, call.Args, 1)
}

func TestParseArrowFunctionsSingleAndMultiParam(t *testing.T) {
	prog := parseOK(t, `let double = e => e * 2; let add = (a, b) => a + b;`)
	double := prog.Statements[0].(*ast.VarStatement).Value.(*ast.FuncLiteral)
	require.Equal(t, []string{"e"}, double.Params)
	add := prog.Statements[1].(*ast.VarStatement).Value.(*ast.FuncLiteral)
	require.Equal(t, []string{"a", "b"}, add.Params)
}

func TestParseHigherOrderArrayChain(t *testing.T) {
	prog := parseOK(t, `[1,2,3,4].filter(e=>e%2==0).map(e=>e*10).reduce((a,b)=>a+b,0);`)
	stmt := prog.Statements[0].(*ast.ExpressionStatement)
	reduceCall := stmt.Expression.(*ast.CallExpression)
	reduceMember := reduceCall.Callee.(*ast.MemberExpression)
	require.Equal(t, "reduce", reduceMember.Property)
	require.Len(t, reduceCall.Args, 2)
}

func TestParseStructDeclarationAndLiteral(t *testing.T) {
	prog := parseOK(t, `struct Point{x:Int, y:Int}; var a = Point{x:1, y:2};`)
	decl := prog.Statements[0].(*ast.StructStatement)
	require.Equal(t, "Point", decl.Name)
	require.Equal(t, []string{"x", "y"}, decl.Fields)

	v := prog.Statements[1].(*ast.VarStatement)
	lit := v.Value.(*ast.StructLiteral)
	require.Equal(t, "Point", lit.TypeName)
	require.Equal(t, []string{"x", "y"}, lit.Keys)
}

func TestParseObjectLiteralAndMemberAccess(t *testing.T) {
	prog := parseOK(t, `let o = {x: 3}; o.toString();`)
	v := prog.Statements[0].(*ast.VarStatement)
	obj := v.Value.(*ast.ObjectLiteral)
	require.Equal(t, []string{"x"}, obj.Keys)

	call := prog.Statements[1].(*ast.ExpressionStatement).Expression.(*ast.CallExpression)
	member := call.Callee.(*ast.MemberExpression)
	require.Equal(t, "toString", member.Property)
}

func TestParseIndexExpression(t *testing.T) {
	prog := parseOK(t, `a[0] = a[1];`)
	stmt := prog.Statements[0].(*ast.ExpressionStatement)
	assign := stmt.Expression.(*ast.AssignExpression)
	_, ok := assign.Target.(*ast.IndexExpression)
	require.True(t, ok)
	_, ok = assign.Value.(*ast.IndexExpression)
	require.True(t, ok)
}

func TestParseAwaitAndYield(t *testing.T) {
	prog := parseOK(t, `let x = await p; yield x;`)
	v := prog.Statements[0].(*ast.VarStatement)
	_, ok := v.Value.(*ast.AwaitExpression)
	require.True(t, ok)
	stmt := prog.Statements[1].(*ast.ExpressionStatement)
	_, ok = stmt.Expression.(*ast.YieldExpression)
	require.True(t, ok)
}

func TestParseReportsErrorOnUnexpectedToken(t *testing.T) {
	_, errs := ParseProgram(`let x = ;`)
	require.NotEmpty(t, errs)
}
