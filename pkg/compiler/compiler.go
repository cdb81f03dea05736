// Package compiler walks the AST the parser builds and emits a
// bytecode.Chunk for each function body, resolving locals and
// upvalues at compile time and leaving the VM's operand stack to do
// the rest. This sits outside the execution core as an external
// collaborator, but the Source -> AST -> Chunk -> VM pipeline needs
// one to drive the CLI end to end.
package compiler

import (
	"fmt"

	"github.com/kristofer/smogvm/pkg/ast"
	"github.com/kristofer/smogvm/pkg/bytecode"
	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/object"
	"github.com/kristofer/smogvm/pkg/value"
)

// local is one compile-time-resolved slot in the current function's
// frame: a name and the scope depth it was declared at.
type local struct {
	name  string
	depth int
}

// funcScope is the compile-time record of one function body being
// compiled; enclosing chains to the lexically containing function,
// mirroring the Closure.Upvalues nesting the VM resolves at runtime.
type funcScope struct {
	enclosing *funcScope

	function *bytecode.Function
	locals   []local
	depth    int
	upvalues []bytecode.UpvalueRef
}

// Compiler turns a parsed Program into a Chunk. Compile may be called
// more than once on the same Compiler (the REPL does, once per line);
// struct types declared by earlier calls stay known to later ones.
type Compiler struct {
	pool *intern.Pool

	current *funcScope

	// structFields records each declared struct type's field order so
	// struct literals (whose key:value pairs may arrive in any order)
	// can be lowered to STRUCT_INIT's positional-pop contract.
	structFields map[string][]string
}

// New creates a compiler that interns names/strings through pool — the
// same pool the VM it will eventually run under uses, so GET_GLOBAL's
// *intern.Entry constant compares equal by identity to the VM's own
// global-table keys.
func New(pool *intern.Pool) *Compiler {
	return &Compiler{pool: pool, structFields: make(map[string][]string)}
}

// Compile lowers program into a top-level Chunk wrapped as a
// zero-arity Function body. A script ending in an expression statement
// should yield that expression's value, so the final top-level
// statement is special-cased: if it is an ExpressionStatement its
// value is left on the stack instead of popped, then an implicit
// RETURN closes the script.
func (c *Compiler) Compile(program *ast.Program) (*bytecode.Chunk, error) {
	chunk := &bytecode.Chunk{}
	fn := &bytecode.Function{Name: "<script>", Chunk: chunk}
	c.current = &funcScope{function: fn}
	// Slot 0 of every frame holds the callee closure itself (see
	// callValue's slotsBase), so local index 0 is reserved here rather
	// than available to the first real binding.
	c.addLocal("")

	if err := c.compileStatements(program.Statements, true); err != nil {
		return nil, err
	}
	c.emitReturn(program.Statements)
	fn.UpvalueCount = len(c.current.upvalues)
	return chunk, nil
}

// emitReturn closes out a function body. If the body was compiled
// with a surviving tail expression value (compileStatements left it on
// the stack rather than popping it), this just wraps it in RETURN;
// otherwise it returns nil.
func (c *Compiler) emitReturn(stmts []ast.Statement) {
	if len(stmts) > 0 {
		if _, ok := stmts[len(stmts)-1].(*ast.ExpressionStatement); ok {
			c.emit(bytecode.OpReturn, 0)
			return
		}
	}
	c.emit(bytecode.OpNil, 0)
	c.emit(bytecode.OpReturn, 0)
}

// compileStatements compiles a statement list. When tailExpr is true,
// the last statement is compiled so its expression value (if any)
// survives on the stack rather than being popped — used both for the
// top-level script result and for a function body whose last statement
// is an expression statement, whose value becomes the return value.
// (Arrow-function bodies arrive from the parser as an explicit return.)
func (c *Compiler) compileStatements(stmts []ast.Statement, tailExpr bool) error {
	for i, stmt := range stmts {
		isTail := tailExpr && i == len(stmts)-1
		if isTail {
			if exprStmt, ok := stmt.(*ast.ExpressionStatement); ok {
				if err := c.compileExpression(exprStmt.Expression); err != nil {
					return err
				}
				continue
			}
		}
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.VarStatement:
		return c.compileVarStatement(s)
	case *ast.StructStatement:
		return c.compileStructStatement(s)
	case *ast.ReturnStatement:
		return c.compileReturnStatement(s)
	case *ast.IfStatement:
		return c.compileIfStatement(s)
	case *ast.WhileStatement:
		return c.compileWhileStatement(s)
	case *ast.BlockStatement:
		c.beginScope()
		if err := c.compileStatements(s.Statements, false); err != nil {
			return err
		}
		c.endScope()
		return nil
	case *ast.ExpressionStatement:
		if err := c.compileExpression(s.Expression); err != nil {
			return err
		}
		c.emit(bytecode.OpPop, 0)
		return nil
	default:
		return fmt.Errorf("compiler: unknown statement type %T", stmt)
	}
}

func (c *Compiler) compileVarStatement(s *ast.VarStatement) error {
	if err := c.compileExpression(s.Value); err != nil {
		return err
	}
	if c.current.depth == 0 {
		c.emit(bytecode.OpDefGlobal, c.nameConstant(s.Name))
		return nil
	}
	slot := c.addLocal(s.Name)
	// The value already sits on the stack in the new local's slot, but
	// OpSetLocal still runs so a struct initializer is copied into a
	// binding the declaration owns outright, same as every other bind.
	c.emit(bytecode.OpSetLocal, slot)
	return nil
}

// compileStructStatement declares a struct type: the field list is
// recorded for literal-reordering purposes, and a fully-built
// *object.StructType constant is pushed and bound as a global named
// after the type, so STRUCT_INIT (which looks the type up by name at
// runtime) and instance creation resolve consistently.
func (c *Compiler) compileStructStatement(s *ast.StructStatement) error {
	c.structFields[s.Name] = s.Fields
	structType := object.NewStructType(s.Name, s.Fields)
	constIdx := c.current.function.Chunk.AddConstant(structType)
	c.emit(bytecode.OpStructType, constIdx)
	c.emit(bytecode.OpDefGlobal, c.nameConstant(s.Name))
	return nil
}

func (c *Compiler) compileReturnStatement(s *ast.ReturnStatement) error {
	if s.Value == nil {
		c.emit(bytecode.OpNil, 0)
	} else if err := c.compileExpression(s.Value); err != nil {
		return err
	}
	c.emit(bytecode.OpReturn, 0)
	return nil
}

func (c *Compiler) compileIfStatement(s *ast.IfStatement) error {
	if err := c.compileExpression(s.Condition); err != nil {
		return err
	}
	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop, 0) // discard the truthy condition before the then-branch
	if err := c.compileStatement(s.Then); err != nil {
		return err
	}
	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emit(bytecode.OpPop, 0) // discard the falsey condition before the else-branch
	if s.Else != nil {
		if err := c.compileStatement(s.Else); err != nil {
			return err
		}
	}
	c.patchJump(elseJump)
	return nil
}

func (c *Compiler) compileWhileStatement(s *ast.WhileStatement) error {
	loopStart := len(c.current.function.Chunk.Instructions)
	if err := c.compileExpression(s.Condition); err != nil {
		return err
	}
	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop, 0)
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.emit(bytecode.OpPop, 0)
	return nil
}

func (c *Compiler) compileExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		c.emit(bytecode.OpConst, c.current.function.Chunk.AddConstant(value.Integer(e.Value)))
		return nil
	case *ast.NumberLiteral:
		c.emit(bytecode.OpConst, c.current.function.Chunk.AddConstant(value.Number(e.Value)))
		return nil
	case *ast.StringLiteral:
		c.emit(bytecode.OpConst, c.current.function.Chunk.AddConstant(c.pool.InternString(e.Value)))
		return nil
	case *ast.BoolLiteral:
		if e.Value {
			c.emit(bytecode.OpTrue, 0)
		} else {
			c.emit(bytecode.OpFalse, 0)
		}
		return nil
	case *ast.NilLiteral:
		c.emit(bytecode.OpNil, 0)
		return nil
	case *ast.Identifier:
		return c.compileIdentifier(e.Name)
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			if err := c.compileExpression(el); err != nil {
				return err
			}
		}
		c.emit(bytecode.OpArray, len(e.Elements))
		return nil
	case *ast.ObjectLiteral:
		for i, key := range e.Keys {
			c.emit(bytecode.OpConst, c.current.function.Chunk.AddConstant(c.pool.InternString(key)))
			if err := c.compileExpression(e.Values[i]); err != nil {
				return err
			}
		}
		c.emit(bytecode.OpObject, len(e.Keys))
		return nil
	case *ast.StructLiteral:
		return c.compileStructLiteral(e)
	case *ast.FuncLiteral:
		return c.compileFuncLiteral(e)
	case *ast.UnaryExpression:
		return c.compileUnary(e)
	case *ast.BinaryExpression:
		return c.compileBinary(e)
	case *ast.LogicalExpression:
		return c.compileLogical(e)
	case *ast.AssignExpression:
		return c.compileAssign(e)
	case *ast.CallExpression:
		return c.compileCall(e)
	case *ast.MemberExpression:
		if err := c.compileExpression(e.Object); err != nil {
			return err
		}
		c.emit(bytecode.OpGetProperty, c.nameConstant(e.Property))
		return nil
	case *ast.IndexExpression:
		return c.compileIndexGet(e)
	case *ast.AwaitExpression:
		if err := c.compileExpression(e.Operand); err != nil {
			return err
		}
		c.emit(bytecode.OpAwait, 0)
		return nil
	case *ast.YieldExpression:
		if err := c.compileExpression(e.Operand); err != nil {
			return err
		}
		c.emit(bytecode.OpYield, 0)
		return nil
	default:
		return fmt.Errorf("compiler: unknown expression type %T", expr)
	}
}

// compileIdentifier resolves name to a local slot, an upvalue chained
// through enclosing functions, or (failing both) a global lookup.
func (c *Compiler) compileIdentifier(name string) error {
	if slot, ok := c.resolveLocal(c.current, name); ok {
		c.emit(bytecode.OpGetLocal, slot)
		return nil
	}
	if idx, ok := c.resolveUpvalue(c.current, name); ok {
		c.emit(bytecode.OpGetUpvalue, idx)
		return nil
	}
	c.emit(bytecode.OpGetGlobal, c.nameConstant(name))
	return nil
}

func (c *Compiler) resolveLocal(fs *funcScope, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// resolveUpvalue walks up the enclosing-function chain looking for
// name as a local, recording a capture at every level it threads
// through (clox's upvalue-chaining construction).
func (c *Compiler) resolveUpvalue(fs *funcScope, name string) (int, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if slot, ok := c.resolveLocal(fs.enclosing, name); ok {
		return c.addUpvalue(fs, slot, true), true
	}
	if idx, ok := c.resolveUpvalue(fs.enclosing, name); ok {
		return c.addUpvalue(fs, idx, false), true
	}
	return 0, false
}

func (c *Compiler) addUpvalue(fs *funcScope, index int, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, bytecode.UpvalueRef{IsLocal: isLocal, Index: index})
	return len(fs.upvalues) - 1
}

// addLocal reserves the next stack slot for name and returns its
// index, which is also the operand OpGetLocal/OpSetLocal use to
// address it (resolveLocal walks this same slice to recover it).
func (c *Compiler) addLocal(name string) int {
	c.current.locals = append(c.current.locals, local{name: name, depth: c.current.depth})
	return len(c.current.locals) - 1
}

func (c *Compiler) beginScope() { c.current.depth++ }

func (c *Compiler) endScope() {
	c.current.depth--
	fs := c.current
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.depth {
		fs.locals = fs.locals[:len(fs.locals)-1]
		c.emit(bytecode.OpCloseUpvalue, 0)
	}
}

func (c *Compiler) compileUnary(e *ast.UnaryExpression) error {
	if err := c.compileExpression(e.Operand); err != nil {
		return err
	}
	switch e.Operator {
	case "!":
		c.emit(bytecode.OpNot, 0)
	case "-":
		c.emit(bytecode.OpNegate, 0)
	default:
		return fmt.Errorf("compiler: unknown unary operator %q", e.Operator)
	}
	return nil
}

func (c *Compiler) compileBinary(e *ast.BinaryExpression) error {
	if err := c.compileExpression(e.Left); err != nil {
		return err
	}
	if err := c.compileExpression(e.Right); err != nil {
		return err
	}
	switch e.Operator {
	case "+":
		c.emit(bytecode.OpAdd, 0)
	case "-":
		c.emit(bytecode.OpSub, 0)
	case "*":
		c.emit(bytecode.OpMul, 0)
	case "/":
		c.emit(bytecode.OpDiv, 0)
	case "%":
		c.emit(bytecode.OpMod, 0)
	case "==":
		c.emit(bytecode.OpEqual, 0)
	case "!=":
		c.emit(bytecode.OpEqual, 0)
		c.emit(bytecode.OpNot, 0)
	case "<":
		c.emit(bytecode.OpLess, 0)
	case ">":
		c.emit(bytecode.OpGreater, 0)
	case "<=":
		c.emit(bytecode.OpGreater, 0)
		c.emit(bytecode.OpNot, 0)
	case ">=":
		c.emit(bytecode.OpLess, 0)
		c.emit(bytecode.OpNot, 0)
	default:
		return fmt.Errorf("compiler: unknown binary operator %q", e.Operator)
	}
	return nil
}

// compileLogical exploits JUMP_IF_FALSE's non-popping stack contract:
// the short-circuited operand's own value becomes the expression's
// result, so no extra PUSH is needed on either path.
func (c *Compiler) compileLogical(e *ast.LogicalExpression) error {
	if err := c.compileExpression(e.Left); err != nil {
		return err
	}
	switch e.Operator {
	case "&&":
		endJump := c.emitJump(bytecode.OpJumpIfFalse)
		c.emit(bytecode.OpPop, 0)
		if err := c.compileExpression(e.Right); err != nil {
			return err
		}
		c.patchJump(endJump)
		return nil
	case "||":
		elseJump := c.emitJump(bytecode.OpJumpIfFalse)
		endJump := c.emitJump(bytecode.OpJump)
		c.patchJump(elseJump)
		c.emit(bytecode.OpPop, 0)
		if err := c.compileExpression(e.Right); err != nil {
			return err
		}
		c.patchJump(endJump)
		return nil
	default:
		return fmt.Errorf("compiler: unknown logical operator %q", e.Operator)
	}
}

// compileAssign dispatches on the assignment target's shape. Every
// path leaves the assigned value on the stack so assignment works as
// an expression, matching SET_LOCAL/SET_GLOBAL/SET_PROPERTY's peek
// (not pop) contract.
func (c *Compiler) compileAssign(e *ast.AssignExpression) error {
	switch target := e.Target.(type) {
	case *ast.Identifier:
		if err := c.compileExpression(e.Value); err != nil {
			return err
		}
		if slot, ok := c.resolveLocal(c.current, target.Name); ok {
			c.emit(bytecode.OpSetLocal, slot)
			return nil
		}
		if idx, ok := c.resolveUpvalue(c.current, target.Name); ok {
			c.emit(bytecode.OpSetUpvalue, idx)
			return nil
		}
		c.emit(bytecode.OpSetGlobal, c.nameConstant(target.Name))
		return nil
	case *ast.MemberExpression:
		if err := c.compileExpression(target.Object); err != nil {
			return err
		}
		if err := c.compileExpression(e.Value); err != nil {
			return err
		}
		c.emit(bytecode.OpSetProperty, c.nameConstant(target.Property))
		return nil
	case *ast.IndexExpression:
		return c.compileIndexSet(target, e.Value)
	default:
		return fmt.Errorf("compiler: invalid assignment target %T", e.Target)
	}
}

// compileMethodCallPrefix compiles `receiver` and arranges the stack
// as [method, receiver] ready for explicit-arg pushes and a CALL whose
// argc includes the receiver as args[0] — the pattern every native
// method call (including the get/set index lowering below) shares.
// DUP+SWAP avoids evaluating the receiver expression twice, which
// would duplicate any side effects it has.
func (c *Compiler) compileMethodCallPrefix(receiver ast.Expression, method string) error {
	if err := c.compileExpression(receiver); err != nil {
		return err
	}
	c.emit(bytecode.OpDup, 0)
	c.emit(bytecode.OpGetProperty, c.nameConstant(method))
	c.emit(bytecode.OpSwap, 0)
	return nil
}

func (c *Compiler) compileIndexGet(e *ast.IndexExpression) error {
	if err := c.compileMethodCallPrefix(e.Object, "get"); err != nil {
		return err
	}
	if err := c.compileExpression(e.Index); err != nil {
		return err
	}
	c.emit(bytecode.OpCall, 2)
	return nil
}

func (c *Compiler) compileIndexSet(e *ast.IndexExpression, val ast.Expression) error {
	if err := c.compileMethodCallPrefix(e.Object, "set"); err != nil {
		return err
	}
	if err := c.compileExpression(e.Index); err != nil {
		return err
	}
	if err := c.compileExpression(val); err != nil {
		return err
	}
	c.emit(bytecode.OpCall, 3)
	return nil
}

// compileCall compiles a plain call `callee(args...)` or, when callee
// is a MemberExpression, a method call `obj.name(args...)` via the
// DUP/GET_PROPERTY/SWAP receiver-binding pattern.
func (c *Compiler) compileCall(e *ast.CallExpression) error {
	if member, ok := e.Callee.(*ast.MemberExpression); ok {
		if err := c.compileMethodCallPrefix(member.Object, member.Property); err != nil {
			return err
		}
		for _, arg := range e.Args {
			if err := c.compileExpression(arg); err != nil {
				return err
			}
		}
		c.emit(bytecode.OpCall, len(e.Args)+1)
		return nil
	}
	if err := c.compileExpression(e.Callee); err != nil {
		return err
	}
	for _, arg := range e.Args {
		if err := c.compileExpression(arg); err != nil {
			return err
		}
	}
	c.emit(bytecode.OpCall, len(e.Args))
	return nil
}

// compileStructLiteral reorders the literal's key:value pairs into the
// type's declared field order, since STRUCT_INIT pops fields
// positionally rather than by name.
func (c *Compiler) compileStructLiteral(e *ast.StructLiteral) error {
	fields, ok := c.structFields[e.TypeName]
	if !ok {
		return fmt.Errorf("compiler: undeclared struct type %q", e.TypeName)
	}
	values := make(map[string]ast.Expression, len(e.Keys))
	for i, k := range e.Keys {
		values[k] = e.Values[i]
	}
	for _, field := range fields {
		val, ok := values[field]
		if !ok {
			c.emit(bytecode.OpNil, 0)
			continue
		}
		if err := c.compileExpression(val); err != nil {
			return err
		}
	}
	c.emit(bytecode.OpStructInit, c.nameConstant(e.TypeName))
	return nil
}

// compileFuncLiteral compiles a nested function body in its own
// funcScope, then emits CLOSURE with the upvalue table that scope
// accumulated while resolving free variables against its enclosing
// scopes.
func (c *Compiler) compileFuncLiteral(e *ast.FuncLiteral) error {
	fn := &bytecode.Function{Name: e.Name, Arity: len(e.Params), Chunk: &bytecode.Chunk{}}
	fs := &funcScope{enclosing: c.current, function: fn}
	c.current = fs

	// Slot 0 holds the callee closure (see callValue's slotsBase);
	// params start at slot 1.
	c.addLocal("")
	for _, p := range e.Params {
		c.addLocal(p)
	}
	if err := c.compileStatements(e.Body.Statements, true); err != nil {
		c.current = fs.enclosing
		return err
	}
	c.emitReturn(e.Body.Statements)
	fn.UpvalueCount = len(fs.upvalues)

	enclosing := fs.enclosing
	c.current = enclosing
	constIdx := enclosing.function.Chunk.AddConstant(fn)
	enclosing.function.Chunk.Instructions = append(enclosing.function.Chunk.Instructions, bytecode.Instruction{
		Op:       bytecode.OpClosure,
		Operand:  constIdx,
		Upvalues: fs.upvalues,
	})
	return nil
}

// nameConstant interns name and adds it as a chunk constant, returning
// the index GET_GLOBAL/SET_GLOBAL/DEF_GLOBAL/GET_PROPERTY/SET_PROPERTY/
// STRUCT_INIT read their *intern.Entry operand from.
func (c *Compiler) nameConstant(name string) int {
	return c.current.function.Chunk.AddConstant(c.pool.InternString(name))
}

func (c *Compiler) emit(op bytecode.Opcode, operand int) {
	c.current.function.Chunk.Instructions = append(c.current.function.Chunk.Instructions, bytecode.Instruction{Op: op, Operand: operand})
}

// emitJump emits a forward jump with a placeholder operand and returns
// its instruction index for patchJump to fix up once the jump target
// is known.
func (c *Compiler) emitJump(op bytecode.Opcode) int {
	c.emit(op, 0)
	return len(c.current.function.Chunk.Instructions) - 1
}

// patchJump fixes up the jump at jumpIdx to land just after the
// instruction stream as it stands now. The offset is relative to the
// instruction immediately following the jump, since the VM's frame.ip
// is already incremented past the jump itself by the time it applies
// the offset.
func (c *Compiler) patchJump(jumpIdx int) {
	target := len(c.current.function.Chunk.Instructions)
	c.current.function.Chunk.Instructions[jumpIdx].Operand = target - (jumpIdx + 1)
}

// emitLoop emits a backward LOOP to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	jumpIdx := len(c.current.function.Chunk.Instructions)
	offset := jumpIdx + 1 - loopStart
	c.emit(bytecode.OpLoop, offset)
}
