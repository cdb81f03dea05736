package vm_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/smogvm/pkg/compiler"
	"github.com/kristofer/smogvm/pkg/parser"
	"github.com/kristofer/smogvm/pkg/value"
	"github.com/kristofer/smogvm/pkg/vm"
)

func compileAndRun(t *testing.T, src string) (value.Value, error) {
	t.Helper()
	program, errs := parser.ParseProgram(src)
	require.Empty(t, errs)

	machine := vm.New(vm.DefaultConfig(), nil)
	c := compiler.New(machine.Intern())
	chunk, err := c.Compile(program)
	require.NoError(t, err)

	return machine.Run(chunk)
}

// TestDivisionByZeroYieldsIEEEResult checks that integer or float
// division by zero yields the IEEE-754 result rather than raising a
// RuntimeError; only MOD with a zero divisor errors.
func TestDivisionByZeroYieldsIEEEResult(t *testing.T) {
	result, err := compileAndRun(t, `1 / 0`)
	require.NoError(t, err)
	require.True(t, math.IsInf(value.AsFloat64(result), 1))
}

func TestModuloByZeroRaisesRuntimeError(t *testing.T) {
	_, err := compileAndRun(t, `1 % 0`)
	require.Error(t, err)

	var rerr *vm.RuntimeError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, vm.DivisionByZero, rerr.Kind)
}

func TestUndefinedGlobalRaisesRuntimeError(t *testing.T) {
	_, err := compileAndRun(t, `missingName()`)
	require.Error(t, err)

	var rerr *vm.RuntimeError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, vm.UndefinedGlobal, rerr.Kind)
}

// TestStackTraceCapturesEachCallFrame checks that a runtime error
// raised several calls deep carries one StackFrame per active call,
// innermost last, and that RuntimeError.Error() renders all of them.
func TestStackTraceCapturesEachCallFrame(t *testing.T) {
	src := `
		let inner = func() { return 1 % 0 };
		let middle = func() { return inner() };
		let outer = func() { return middle() };
		outer()
	`
	_, err := compileAndRun(t, src)
	require.Error(t, err)

	var rerr *vm.RuntimeError
	require.True(t, errors.As(err, &rerr))
	require.GreaterOrEqual(t, len(rerr.StackTrace), 3)

	rendered := rerr.Error()
	require.Contains(t, rendered, "DivisionByZero")
	require.Contains(t, rendered, "Stack trace:")
}

// TestDeepRecursionRaisesStackOverflow exercises the MaxFrameDepth
// bound from Config rather than letting unbounded recursion exhaust
// the host process.
func TestDeepRecursionRaisesStackOverflow(t *testing.T) {
	src := `
		let recurse = func(n) { return recurse(n + 1) };
		recurse(0)
	`
	_, err := compileAndRun(t, src)
	require.Error(t, err)

	var rerr *vm.RuntimeError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, vm.StackOverflow, rerr.Kind)
}

// TestReturnUnwindsToItsOwnCallNotAnEnclosingOne checks that a nested
// function's return only ever resolves its own call frame: smog has no
// Smalltalk-style non-local block return, so a closure's return cannot
// escape its defining function's already-completed call.
func TestReturnUnwindsToItsOwnCallNotAnEnclosingOne(t *testing.T) {
	src := `
		let makeAdder = func(base) { return y => base + y };
		let add5 = makeAdder(5);
		add5(10)
	`
	result, err := compileAndRun(t, src)
	require.NoError(t, err)
	require.Equal(t, value.Integer(15), result)
}
