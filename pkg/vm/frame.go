package vm

import "github.com/kristofer/smogvm/pkg/bytecode"

// CallFrame is one activation record on the VM's frame stack.
// slotsBase is the index into the VM's operand stack of this frame's
// slot 0, which holds the callee itself; parameters and other locals
// follow from slot 1.
type CallFrame struct {
	closure   *bytecode.Closure
	ip        int
	slotsBase int
}

func (f *CallFrame) chunk() *bytecode.Chunk { return f.closure.Function.Chunk }

func (f *CallFrame) currentLine() int {
	if f.ip-1 >= 0 && f.ip-1 < len(f.chunk().Instructions) {
		return f.chunk().Instructions[f.ip-1].Line
	}
	return 0
}
