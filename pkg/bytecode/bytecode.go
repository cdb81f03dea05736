// Disassembly: human-readable rendering of a Chunk, used by the `smogvm
// disassemble` subcommand. Each line is the instruction offset, its
// source line, the opcode, and the operand if any.
//
// Example:
//
//	0000    0 CONST             0 ; 10
//	0001    0 SET_LOCAL         0
//	0002    0 GET_LOCAL         0
//	0003    0 CONST             1 ; 5
//	0004    0 ADD
//	0005    0 RETURN
package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders every instruction in c as one line, optionally
// annotating CONST operands with the constant's GoString.
func Disassemble(c *Chunk, name string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "== %s ==\n", name)
	}
	for i, inst := range c.Instructions {
		b.WriteString(disassembleInstruction(c, i, inst))
		b.WriteByte('\n')
	}
	return b.String()
}

func disassembleInstruction(c *Chunk, offset int, inst Instruction) string {
	line := fmt.Sprintf("%04d %4d %-14s", offset, inst.Line, inst.Op.String())
	switch inst.Op {
	case OpConst:
		if inst.Operand >= 0 && inst.Operand < len(c.Constants) {
			return fmt.Sprintf("%s %4d ; %s", line, inst.Operand, c.Constants[inst.Operand].GoString())
		}
		return fmt.Sprintf("%s %4d", line, inst.Operand)
	case OpClosure:
		s := fmt.Sprintf("%s %4d", line, inst.Operand)
		for _, uv := range inst.Upvalues {
			scope := "upvalue"
			if uv.IsLocal {
				scope = "local"
			}
			s += fmt.Sprintf(" (%s %d)", scope, uv.Index)
		}
		return s
	case OpPop, OpDup, OpNot, OpNegate, OpReturn, OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpEqual, OpLess, OpGreater, OpCloseUpvalue, OpAwait, OpYield, OpNil, OpTrue, OpFalse:
		return line
	default:
		return fmt.Sprintf("%s %4d", line, inst.Operand)
	}
}
