package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/smogvm/pkg/compiler"
	"github.com/kristofer/smogvm/pkg/parser"
	"github.com/kristofer/smogvm/pkg/value"
	"github.com/kristofer/smogvm/pkg/vm"
)

// run compiles and executes src end to end through the real parser,
// compiler, and VM, returning the value its final expression statement
// left on the stack.
func run(t *testing.T, src string) value.Value {
	t.Helper()
	program, errs := parser.ParseProgram(src)
	require.Empty(t, errs)

	machine := vm.New(vm.DefaultConfig(), nil)
	c := compiler.New(machine.Intern())
	chunk, err := c.Compile(program)
	require.NoError(t, err)

	result, err := machine.Run(chunk)
	require.NoError(t, err)
	return result
}

func TestCompileFibonacciClosure(t *testing.T) {
	result := run(t, `let fib = func(n){ if n < 2 { return n }; return fib(n-1) + fib(n-2) }; fib(10)`)
	require.Equal(t, value.Integer(55), result)
}

func TestCompilePrototypeMethod(t *testing.T) {
	result := run(t, `let o = {x: 3}; o.toString()`)
	require.Equal(t, "[Object]", result.GoString())
}

func TestCompileHigherOrderArrayChain(t *testing.T) {
	result := run(t, `[1,2,3,4].filter(e=>e%2==0).map(e=>e*10).reduce((a,b)=>a+b,0)`)
	require.Equal(t, value.Integer(60), result)
}

func TestCompileStructValueSemantics(t *testing.T) {
	result := run(t, `struct P{x:Int}; var a=P{x:1}; var b=a; b.x=2; a.x==1 && b.x==2`)
	require.Equal(t, value.Bool(true), result)
}

func TestCompileIntegerNumberPromotion(t *testing.T) {
	require.Equal(t, value.Integer(3), run(t, `1 + 2`))
	require.Equal(t, value.Number(3.0), run(t, `1 + 2.0`))
}

func TestCompileIndexGetAndSet(t *testing.T) {
	result := run(t, `let a = [1,2,3]; a[1] = 9; a[1]`)
	require.Equal(t, value.Integer(9), result)
}

func TestCompileWhileLoop(t *testing.T) {
	result := run(t, `var i = 0; var sum = 0; while i < 5 { sum = sum + i; i = i + 1 }; sum`)
	require.Equal(t, value.Integer(10), result)
}

func TestCompileIfElseChain(t *testing.T) {
	src := `let classify = func(n) {
		if n < 0 { return "neg" } else {
			if n == 0 { return "zero" } else { return "pos" }
		}
	}; classify(-5) + classify(0) + classify(5)`
	result := run(t, src)
	require.Equal(t, "negzeropos", result.GoString())
}

func TestCompileClosureOverUpvalue(t *testing.T) {
	src := `let makeAdder = func(x) { return y => x + y }; let addFive = makeAdder(5); addFive(3)`
	result := run(t, src)
	require.Equal(t, value.Integer(8), result)
}

func TestCompileShortCircuitLogical(t *testing.T) {
	require.Equal(t, value.Bool(false), run(t, `false && (1/0 == 1)`))
	require.Equal(t, value.Integer(0), run(t, `0 || 7`)) // 0 is truthy
}

func TestCompileStructFieldAccess(t *testing.T) {
	src := `struct Counter{n:Int}; let c = Counter{n:1}; c.n`
	result := run(t, src)
	require.Equal(t, value.Integer(1), result)
}
