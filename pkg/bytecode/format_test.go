package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/value"
)

func internFunc(pool *intern.Pool) InternFunc {
	return func(b []byte) value.Value { return pool.Intern(b) }
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pool := intern.New()
	original := &Chunk{
		Instructions: []Instruction{
			{Op: OpConst, Operand: 0, Line: 1},
			{Op: OpConst, Operand: 1, Line: 1},
			{Op: OpAdd, Line: 1},
			{Op: OpReturn, Line: 1},
		},
		Constants: []value.Value{
			value.Integer(42),
			value.Number(3.5),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf))
	require.NotZero(t, buf.Len())

	decoded, err := Decode(&buf, internFunc(pool))
	require.NoError(t, err)
	require.Equal(t, original.Instructions, decoded.Instructions)
	require.Equal(t, original.Constants, decoded.Constants)
}

func TestEncodeDecodeAllConstantKinds(t *testing.T) {
	pool := intern.New()
	original := &Chunk{
		Instructions: []Instruction{{Op: OpReturn, Line: 1}},
		Constants: []value.Value{
			value.Nil{},
			value.Bool(true),
			value.Bool(false),
			value.Integer(123),
			value.Number(3.14),
			pool.InternString("Hello, World!"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf))

	decoded, err := Decode(&buf, internFunc(pool))
	require.NoError(t, err)
	require.Len(t, decoded.Constants, len(original.Constants))
	for i := range original.Constants {
		require.True(t, value.Equal(original.Constants[i], decoded.Constants[i]), "constant %d", i)
	}
}

func TestEncodeDecodeNestedFunction(t *testing.T) {
	pool := intern.New()
	inner := &Chunk{
		Instructions: []Instruction{
			{Op: OpGetLocal, Operand: 0, Line: 1},
			{Op: OpReturn, Line: 1},
		},
	}
	original := &Chunk{
		Instructions: []Instruction{
			{Op: OpClosure, Operand: 0, Upvalues: []UpvalueRef{{IsLocal: true, Index: 0}}, Line: 2},
			{Op: OpReturn, Line: 2},
		},
		Constants: []value.Value{
			&Function{Name: "add", Arity: 1, UpvalueCount: 1, Chunk: inner},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf))

	decoded, err := Decode(&buf, internFunc(pool))
	require.NoError(t, err)
	require.Equal(t, original.Instructions, decoded.Instructions)

	fn, ok := decoded.Constants[0].(*Function)
	require.True(t, ok)
	require.Equal(t, "add", fn.Name)
	require.Equal(t, 1, fn.Arity)
	require.Equal(t, inner.Instructions, fn.Chunk.Instructions)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	pool := intern.New()
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 16, 0, 0, 0})
	_, err := Decode(buf, internFunc(pool))
	require.Error(t, err)
}
