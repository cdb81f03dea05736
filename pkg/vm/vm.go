// Package vm implements the stack interpreter: the dispatch loop, call
// frames, upvalues, globals, and struct-type registry. It coordinates
// the garbage collector and, when a program uses them, the coroutine
// executor.
package vm

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/bytecode"
	"github.com/kristofer/smogvm/pkg/coroutine"
	"github.com/kristofer/smogvm/pkg/gc"
	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/object"
	"github.com/kristofer/smogvm/pkg/value"
)

const (
	initialStackCapacity = 256
	defaultMaxFrameDepth = 1024
)

// PrintHook is the function the `print` builtin writes through; if
// unset, output goes to standard output. Each VM holds its own hook,
// installed with SetPrintHook.
type PrintHook func(string)

// ModuleLoader is the opaque external collaborator that resolves an
// import to a compiled Chunk plus its exported names.
type ModuleLoader interface {
	Load(modulePath string) (*bytecode.Chunk, map[string]value.Value, error)
}

// Config bounds VM resource usage and the configuration surface loaded
// from a TOML config file.
type Config struct {
	InitialStackSize  int
	MaxFrameDepth     int
	PrototypeHopLimit int
	GC                gc.Config
}

// DefaultConfig returns sane starting-point resource limits.
func DefaultConfig() Config {
	return Config{
		InitialStackSize:  initialStackCapacity,
		MaxFrameDepth:     defaultMaxFrameDepth,
		PrototypeHopLimit: 1000,
		GC:                gc.DefaultConfig(),
	}
}

// VM is the stack interpreter: it owns the operand stack, frames,
// globals, struct-type registry, string pool, and GC; the GC owns
// every heap value it has allocated.
type VM struct {
	cfg Config
	log *zap.Logger

	stack []value.Value
	sp    int

	frames     []CallFrame
	frameCount int

	globals     map[*intern.Entry]value.Value
	structTypes map[*intern.Entry]*object.StructType

	pool *intern.Pool
	gc   *gc.Collector

	openUpvalues *bytecode.Upvalue // sorted by descending stack index

	defaultPrototypes map[value.Kind]*object.Object
	arrayProto        *object.Object // prototype of array literals

	printHook    PrintHook
	moduleLoader ModuleLoader

	executor *coroutine.Executor
	current  *coroutine.Coroutine

	// coroutineStates holds the saved stack/frame state of every
	// coroutine that has been resumed at least once (stored after each
	// Resume, whatever state it ended in); scheduled holds the
	// entry callee for a coroutine that has not yet had its first
	// Resume. Each coroutine gets its own value stack, swapped in and
	// out of the fields above around Resume.
	coroutineStates map[*coroutine.Coroutine]*vmState
	scheduled       map[*coroutine.Coroutine]value.Value
}

// vmState is the subset of VM fields that differ per coroutine: its
// own operand stack, call frames, and open-upvalue list.
type vmState struct {
	stack        []value.Value
	sp           int
	frames       []CallFrame
	frameCount   int
	openUpvalues *bytecode.Upvalue
}

func (v *VM) snapshot() vmState {
	return vmState{stack: v.stack, sp: v.sp, frames: v.frames, frameCount: v.frameCount, openUpvalues: v.openUpvalues}
}

func (v *VM) restore(s vmState) {
	v.stack, v.sp, v.frames, v.frameCount, v.openUpvalues = s.stack, s.sp, s.frames, s.frameCount, s.openUpvalues
}

// New creates a VM ready to interpret chunks. A nil logger installs a
// no-op logger.
func New(cfg Config, log *zap.Logger) *VM {
	if log == nil {
		log = zap.NewNop()
	}
	pool := intern.New()
	v := &VM{
		cfg:               cfg,
		log:               log,
		stack:             make([]value.Value, cfg.InitialStackSize),
		frames:            make([]CallFrame, 0, 64),
		globals:           make(map[*intern.Entry]value.Value),
		structTypes:       make(map[*intern.Entry]*object.StructType),
		pool:              pool,
		defaultPrototypes: make(map[value.Kind]*object.Object),
		coroutineStates:   make(map[*coroutine.Coroutine]*vmState),
		scheduled:         make(map[*coroutine.Coroutine]value.Value),
	}
	v.gc = gc.New(cfg.GC, pool, v, log)
	v.installDefaultPrototypes()
	v.executor = coroutine.NewExecutor(v, log)
	return v
}

// SetPrintHook installs this VM's print sink.
func (v *VM) SetPrintHook(h PrintHook) { v.printHook = h }

// SetModuleLoader installs the external module resolver.
func (v *VM) SetModuleLoader(l ModuleLoader) { v.moduleLoader = l }

// DefineGlobal installs a value under name, creating the binding if
// absent (used by the embedder and by natives at startup).
func (v *VM) DefineGlobal(name string, val value.Value) {
	v.globals[v.pool.InternString(name)] = val
}

func (v *VM) print(s string) {
	if v.printHook != nil {
		v.printHook(s)
		return
	}
	fmt.Println(s)
}

func (v *VM) installDefaultPrototypes() {
	objectProto := object.New(nil)
	arrayProto := object.New(objectProto)
	v.arrayProto = arrayProto
	v.defaultPrototypes[value.KindObject] = objectProto
	v.defaultPrototypes[value.KindString] = object.New(objectProto)
	v.defaultPrototypes[value.KindFunction] = object.New(objectProto)
	v.defaultPrototypes[value.KindNumber] = object.New(objectProto)
	v.defaultPrototypes[value.KindInteger] = v.defaultPrototypes[value.KindNumber]
	// Array literals get arrayProto as their Prototype field directly
	// (see execArrayLiteral); this slot just lets getProperty's
	// default-prototype fallback find array methods for non-*Object
	// array-ish kinds, of which there currently are none, so it is
	// otherwise unused today.
	v.defaultPrototypes[value.KindStruct] = arrayProto
	installStdlib(v, arrayProto, objectProto)
}

// Interpret runs chunk as a top-level program.
func (v *VM) Interpret(chunk *bytecode.Chunk) (InterpretResult, error) {
	fn := &bytecode.Function{Name: "<script>", Chunk: chunk}
	closure := &bytecode.Closure{Function: fn}
	v.push(closure)
	if err := v.callValue(closure, 0); err != nil {
		return InterpretRuntimeError, err
	}
	if err := v.run(); err != nil {
		return InterpretRuntimeError, err
	}
	return Ok, nil
}

// Run executes an already-compiled chunk as a top-level script and
// returns the value its final expression statement left on the stack,
// or Nil if the script's last statement wasn't an expression.
func (v *VM) Run(chunk *bytecode.Chunk) (value.Value, error) {
	if _, err := v.Interpret(chunk); err != nil {
		return nil, err
	}
	return v.popFinalResult(), nil
}

func (v *VM) push(val value.Value) {
	if v.sp >= len(v.stack) {
		v.stack = append(v.stack, val)
	} else {
		v.stack[v.sp] = val
	}
	v.sp++
}

func (v *VM) pop() value.Value {
	v.sp--
	return v.stack[v.sp]
}

func (v *VM) peek(distanceFromTop int) value.Value {
	return v.stack[v.sp-1-distanceFromTop]
}

func (v *VM) frame() *CallFrame { return &v.frames[v.frameCount-1] }

func (v *VM) runtimeError(kind ErrorKind, format string, args ...interface{}) error {
	trace := make([]StackFrame, 0, v.frameCount)
	for i := 0; i < v.frameCount; i++ {
		f := &v.frames[i]
		name := f.closure.Function.Name
		if name == "" {
			name = "<anonymous>"
		}
		trace = append(trace, StackFrame{Name: name, IP: f.ip, SourceLine: f.currentLine()})
	}
	return newRuntimeError(kind, fmt.Sprintf(format, args...), trace)
}

// run executes instructions from the current frame until the frame
// stack unwinds to the top level, or a coroutine suspend point
// (AWAIT/YIELD) hands control back without error.
func (v *VM) run() error {
	return v.runTo(0)
}

// runTo executes until the frame count drops to targetFrameCount (or
// a suspend point is hit). A native that invokes a closure mid-dispatch
// (map/filter/reduce's callback) calls this with the frame depth from
// before it pushed the callback's frame, so the recursive execution
// stops exactly when that callback returns rather than continuing on
// into whatever frame was already running.
func (v *VM) runTo(targetFrameCount int) error {
	for v.frameCount > targetFrameCount {
		frame := v.frame()
		if frame.ip >= len(frame.chunk().Instructions) {
			return v.runtimeError(TypeMismatch, "instruction pointer ran off the end of the chunk")
		}
		inst := frame.chunk().Instructions[frame.ip]
		frame.ip++

		switch inst.Op {
		case bytecode.OpConst:
			v.push(frame.chunk().Constants[inst.Operand])
		case bytecode.OpNil:
			v.push(value.Nil{})
		case bytecode.OpTrue:
			v.push(value.Bool(true))
		case bytecode.OpFalse:
			v.push(value.Bool(false))
		case bytecode.OpPop:
			v.pop()
		case bytecode.OpDup:
			v.push(v.peek(0))
		case bytecode.OpSwap:
			b, a := v.pop(), v.pop()
			v.push(b)
			v.push(a)

		case bytecode.OpGetLocal:
			v.push(v.stack[frame.slotsBase+inst.Operand])
		case bytecode.OpSetLocal:
			bound := copyForBinding(v.peek(0))
			v.stack[frame.slotsBase+inst.Operand] = bound
			v.stack[v.sp-1] = bound

		case bytecode.OpGetGlobal:
			name := frame.chunk().Constants[inst.Operand].(*intern.Entry)
			val, ok := v.globals[name]
			if !ok {
				return v.runtimeError(UndefinedGlobal, "undefined global %q", name.String())
			}
			v.push(val)
		case bytecode.OpSetGlobal:
			name := frame.chunk().Constants[inst.Operand].(*intern.Entry)
			if _, ok := v.globals[name]; !ok {
				return v.runtimeError(UndefinedGlobal, "undefined global %q", name.String())
			}
			bound := copyForBinding(v.peek(0))
			v.globals[name] = bound
			v.stack[v.sp-1] = bound
		case bytecode.OpDefGlobal:
			name := frame.chunk().Constants[inst.Operand].(*intern.Entry)
			v.globals[name] = copyForBinding(v.pop())

		case bytecode.OpGetUpvalue:
			v.push(frame.closure.Upvalues[inst.Operand].Get())
		case bytecode.OpSetUpvalue:
			bound := copyForBinding(v.peek(0))
			frame.closure.Upvalues[inst.Operand].Set(bound)
			v.stack[v.sp-1] = bound

		case bytecode.OpGetProperty:
			if err := v.execGetProperty(frame, inst.Operand); err != nil {
				return err
			}
		case bytecode.OpSetProperty:
			if err := v.execSetProperty(frame, inst.Operand); err != nil {
				return err
			}

		case bytecode.OpEqual:
			b, a := v.pop(), v.pop()
			v.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpLess:
			if err := v.execCompare(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}
		case bytecode.OpGreater:
			if err := v.execCompare(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}

		case bytecode.OpAdd:
			if err := v.execAdd(); err != nil {
				return err
			}
		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			if err := v.execArith(inst.Op); err != nil {
				return err
			}

		case bytecode.OpNot:
			v.push(value.Bool(!v.pop().Truthy()))
		case bytecode.OpNegate:
			n := v.pop()
			if !value.IsNumeric(n) {
				return v.runtimeError(TypeMismatch, "operand of unary - must be numeric, got %s", n.Kind())
			}
			if i, ok := n.(value.Integer); ok {
				v.push(-i)
			} else {
				v.push(-n.(value.Number))
			}

		case bytecode.OpJump:
			frame.ip += inst.Operand
		case bytecode.OpJumpIfFalse:
			if !v.peek(0).Truthy() {
				frame.ip += inst.Operand
			}
		case bytecode.OpLoop:
			frame.ip -= inst.Operand

		case bytecode.OpCall:
			if err := v.execCall(inst.Operand); err != nil {
				return err
			}
		case bytecode.OpClosure:
			v.execClosure(frame, inst)
		case bytecode.OpCloseUpvalue:
			v.closeUpvalues(v.sp - 1)
			v.pop()
		case bytecode.OpReturn:
			if err := v.execReturn(); err != nil {
				return err
			}
			if v.frameCount <= targetFrameCount {
				return nil
			}

		case bytecode.OpArray:
			v.execArrayLiteral(inst.Operand)
		case bytecode.OpObject:
			v.execObjectLiteral(inst.Operand)
		case bytecode.OpStructType:
			if err := v.execStructType(frame, inst.Operand); err != nil {
				return err
			}
		case bytecode.OpStructInit:
			if err := v.execStructInit(frame, inst.Operand); err != nil {
				return err
			}

		case bytecode.OpAwait:
			suspend, err := v.execAwait()
			if err != nil {
				return err
			}
			if suspend {
				return nil
			}
		case bytecode.OpYield:
			return nil

		default:
			return v.runtimeError(TypeMismatch, "unknown opcode %v", inst.Op)
		}

		v.gc.MaybeCollect()
	}
}

func (v *VM) execCompare(cmp func(a, b float64) bool) error {
	b, a := v.pop(), v.pop()
	if !value.IsNumeric(a) || !value.IsNumeric(b) {
		return v.runtimeError(TypeMismatch, "comparison requires numeric operands, got %s and %s", a.Kind(), b.Kind())
	}
	v.push(value.Bool(cmp(value.AsFloat64(a), value.AsFloat64(b))))
	return nil
}

func (v *VM) execAdd() error {
	b, a := v.pop(), v.pop()
	if a.Kind() == value.KindString || b.Kind() == value.KindString {
		v.push(v.pool.InternString(v.stringOf(a) + v.stringOf(b)))
		return nil
	}
	if !value.IsNumeric(a) || !value.IsNumeric(b) {
		return v.runtimeError(TypeMismatch, "+ requires numeric or string operands, got %s and %s", a.Kind(), b.Kind())
	}
	ai, aok := a.(value.Integer)
	bi, bok := b.(value.Integer)
	if aok && bok {
		v.push(ai + bi)
		return nil
	}
	v.push(value.Number(value.AsFloat64(a) + value.AsFloat64(b)))
	return nil
}

// stringOf renders a value for string concatenation (ADD): interned
// strings by their text, every other value by its GoString. It does
// no method dispatch, so a user-defined toString is not consulted.
func (v *VM) stringOf(val value.Value) string {
	if e, ok := val.(*intern.Entry); ok {
		return e.String()
	}
	return val.GoString()
}

func (v *VM) execArith(op bytecode.Opcode) error {
	b, a := v.pop(), v.pop()
	if !value.IsNumeric(a) || !value.IsNumeric(b) {
		return v.runtimeError(TypeMismatch, "arithmetic requires numeric operands, got %s and %s", a.Kind(), b.Kind())
	}
	ai, aok := a.(value.Integer)
	bi, bok := b.(value.Integer)
	if aok && bok && op != bytecode.OpDiv {
		switch op {
		case bytecode.OpSub:
			v.push(ai - bi)
		case bytecode.OpMul:
			v.push(ai * bi)
		case bytecode.OpMod:
			if bi == 0 {
				return v.runtimeError(DivisionByZero, "modulo by zero")
			}
			v.push(ai % bi)
		}
		return nil
	}
	af, bf := value.AsFloat64(a), value.AsFloat64(b)
	switch op {
	case bytecode.OpSub:
		v.push(value.Number(af - bf))
	case bytecode.OpMul:
		v.push(value.Number(af * bf))
	case bytecode.OpDiv:
		v.push(value.Number(af / bf))
	case bytecode.OpMod:
		if bf == 0 {
			return v.runtimeError(DivisionByZero, "modulo by zero")
		}
		v.push(value.Number(math.Mod(af, bf)))
	}
	return nil
}

func (v *VM) execGetProperty(frame *CallFrame, constIdx int) error {
	name := frame.chunk().Constants[constIdx].(*intern.Entry)
	receiver := v.pop()
	result, err := v.getProperty(receiver, name.String())
	if err != nil {
		return err
	}
	v.push(result)
	return nil
}

func (v *VM) getProperty(receiver value.Value, name string) (value.Value, error) {
	switch r := receiver.(type) {
	case *object.Object:
		val, lookup := r.Get(name, v.cfg.PrototypeHopLimit)
		if lookup == object.Found {
			return val, nil
		}
		if lookup == object.ChainTooDeep {
			return nil, v.runtimeError(UndefinedProperty, "prototype chain exceeded %d hops looking up %q", v.cfg.PrototypeHopLimit, name)
		}
		return nil, v.runtimeError(UndefinedProperty, "undefined property %q", name)
	case *object.StructInstance:
		if idx, ok := r.Type.FieldIndex(name); ok {
			return r.Fields[idx], nil
		}
		if val, lookup := r.Type.Methods.Get(name, v.cfg.PrototypeHopLimit); lookup == object.Found {
			return val, nil
		}
		return nil, v.runtimeError(StructFieldMissing, "struct %s has no field or method %q", r.Type.Name, name)
	default:
		if proto, ok := v.defaultPrototypes[receiver.Kind()]; ok {
			if val, lookup := proto.Get(name, v.cfg.PrototypeHopLimit); lookup == object.Found {
				return val, nil
			}
		}
		return nil, v.runtimeError(UndefinedProperty, "%s has no property %q", receiver.Kind(), name)
	}
}

func (v *VM) execSetProperty(frame *CallFrame, constIdx int) error {
	name := frame.chunk().Constants[constIdx].(*intern.Entry)
	val := v.pop()
	receiver := v.pop()
	switch r := receiver.(type) {
	case *object.Object:
		r.Set(name.String(), val)
	case *object.StructInstance:
		idx, ok := r.Type.FieldIndex(name.String())
		if !ok {
			return v.runtimeError(StructFieldMissing, "struct %s has no field %q", r.Type.Name, name.String())
		}
		r.Fields[idx] = val
	default:
		return v.runtimeError(TypeMismatch, "cannot set property %q on %s", name.String(), receiver.Kind())
	}
	v.push(val)
	return nil
}

func (v *VM) execCall(argc int) error {
	callee := v.peek(argc)
	return v.callValue(callee, argc)
}

// copyForBinding returns the value a new binding should hold: structs
// copy so the binding owns an independent instance, everything else
// (primitives, *object.Object, closures) already has the sharing
// semantics the language wants and passes through unchanged.
func copyForBinding(val value.Value) value.Value {
	if s, ok := val.(*object.StructInstance); ok {
		return s.Copy()
	}
	return val
}

func (v *VM) callValue(callee value.Value, argc int) error {
	switch c := callee.(type) {
	case *bytecode.Closure:
		if argc != c.Function.Arity {
			return v.runtimeError(ArityMismatch, "expected %d arguments but got %d", c.Function.Arity, argc)
		}
		if v.frameCount >= v.cfg.MaxFrameDepth {
			return v.runtimeError(StackOverflow, "stack overflow")
		}
		// Struct arguments bind by value: copy before they become the
		// callee's parameter slots, so a callee mutating a parameter
		// can never reach back into the caller's struct.
		for i := v.sp - argc; i < v.sp; i++ {
			v.stack[i] = copyForBinding(v.stack[i])
		}
		v.frames = append(v.frames[:v.frameCount], CallFrame{closure: c, slotsBase: v.sp - argc - 1})
		v.frameCount++
		return nil
	case *bytecode.Native:
		args := make([]value.Value, argc)
		copy(args, v.stack[v.sp-argc:v.sp])
		result, err := c.Fn(args)
		if err != nil {
			return v.runtimeError(TypeMismatch, "%s", err.Error())
		}
		v.sp -= argc + 1
		v.push(result)
		return nil
	default:
		return v.runtimeError(Uncallable, "%s is not callable", callee.Kind())
	}
}

func (v *VM) execClosure(frame *CallFrame, inst bytecode.Instruction) {
	fn := frame.chunk().Constants[inst.Operand].(*bytecode.Function)
	closure := &bytecode.Closure{Function: fn, Upvalues: make([]*bytecode.Upvalue, len(inst.Upvalues))}
	for i, ref := range inst.Upvalues {
		if ref.IsLocal {
			closure.Upvalues[i] = v.captureUpvalue(frame.slotsBase + ref.Index)
		} else {
			closure.Upvalues[i] = frame.closure.Upvalues[ref.Index]
		}
	}
	v.push(closure)
	v.gc.Register(closure, 48)
}

// captureUpvalue implements the open-upvalue invariant: the list is
// sorted by descending stack index; capturing a slot reuses any
// existing open upvalue for it rather than creating a duplicate.
func (v *VM) captureUpvalue(stackIndex int) *bytecode.Upvalue {
	var prev *bytecode.Upvalue
	cur := v.openUpvalues
	for cur != nil && cur.StackIndex() > stackIndex {
		prev = cur
		cur = cur.Next()
	}
	if cur != nil && cur.StackIndex() == stackIndex {
		return cur
	}
	created := bytecode.NewOpenUpvalue(&v.stack[stackIndex], stackIndex)
	created.SetNext(cur)
	if prev == nil {
		v.openUpvalues = created
	} else {
		prev.SetNext(created)
	}
	v.gc.Register(created, 32)
	return created
}

// closeUpvalues closes every open upvalue at or above fromIndex,
// copying out the final value of the slot it aliased. Called on
// return so an escaping closure keeps its own copy of a local that
// the returning frame's stack slot is about to be reused for.
func (v *VM) closeUpvalues(fromIndex int) {
	for v.openUpvalues != nil && v.openUpvalues.StackIndex() >= fromIndex {
		uv := v.openUpvalues
		uv.Close()
		v.openUpvalues = uv.Next()
	}
}

func (v *VM) execReturn() error {
	result := v.pop()
	frame := v.frame()
	v.closeUpvalues(frame.slotsBase)
	v.frameCount--
	v.sp = frame.slotsBase
	v.push(result)
	return nil
}

func (v *VM) execArrayLiteral(count int) {
	arr := object.NewArray(v.arrayProto)
	elems := make([]value.Value, count)
	copy(elems, v.stack[v.sp-count:v.sp])
	v.sp -= count
	for _, e := range elems {
		arr.Push(e)
	}
	v.push(arr)
	v.gc.Register(arr, 64)
}

func (v *VM) execObjectLiteral(count int) {
	obj := object.New(v.defaultPrototypes[value.KindObject])
	base := v.sp - count*2
	for i := 0; i < count; i++ {
		key := v.stack[base+i*2].(*intern.Entry)
		val := v.stack[base+i*2+1]
		obj.Set(key.String(), val)
	}
	v.sp = base
	v.push(obj)
	v.gc.Register(obj, 64)
}

func (v *VM) execStructType(frame *CallFrame, constIdx int) error {
	t := frame.chunk().Constants[constIdx].(*object.StructType)
	name := v.pool.InternString(t.Name)
	if _, exists := v.structTypes[name]; exists {
		return v.runtimeError(TypeMismatch, "struct type %q already declared", t.Name)
	}
	v.structTypes[name] = t
	v.push(t)
	return nil
}

func (v *VM) execStructInit(frame *CallFrame, constIdx int) error {
	name := frame.chunk().Constants[constIdx].(*intern.Entry)
	t, ok := v.structTypes[name]
	if !ok {
		return v.runtimeError(TypeMismatch, "undefined struct type %q", name.String())
	}
	argc := len(t.Fields)
	inst := object.NewInstance(t)
	copy(inst.Fields, v.stack[v.sp-argc:v.sp])
	v.sp -= argc
	v.push(inst)
	v.gc.Register(inst, 32)
	return nil
}

func (v *VM) execAwait() (suspend bool, err error) {
	promiseVal := v.pop()
	p, ok := promiseVal.(*coroutine.Promise)
	if !ok {
		return false, v.runtimeError(TypeMismatch, "await requires a promise, got %s", promiseVal.Kind())
	}
	if v.current == nil {
		return false, v.runtimeError(CoroutineFailed, "await used outside a coroutine")
	}
	result, awaitErr, ready := v.executor.Await(v.current, p)
	if !ready {
		return true, nil
	}
	if awaitErr != nil {
		return false, v.runtimeError(CoroutineFailed, "%s", awaitErr.Error())
	}
	v.push(result)
	return false, nil
}

// Resume implements coroutine.Resumer: drives c's bytecode forward
// from wherever it last suspended until its next suspend point or
// termination. Each coroutine gets its own operand stack and frame
// list, swapped in here and restored to the caller's state (the
// top-level script, or whatever coroutine scheduled this one) before
// returning.
func (v *VM) Resume(c *coroutine.Coroutine) (coroutine.State, value.Value, error) {
	saved := v.snapshot()

	st, exists := v.coroutineStates[c]
	if !exists {
		v.restore(vmState{stack: make([]value.Value, initialStackCapacity)})
		if entry, ok := v.scheduled[c]; ok {
			delete(v.scheduled, c)
			v.push(entry)
			if err := v.callValue(entry, 0); err != nil {
				v.restore(saved)
				return coroutine.Failed, nil, err
			}
		}
	} else {
		v.restore(*st)
	}

	v.current = c
	runErr := v.run()
	v.current = nil

	frameCount := v.frameCount
	var result value.Value
	if frameCount == 0 {
		result = v.popFinalResult()
	}
	newState := v.snapshot()
	v.coroutineStates[c] = &newState

	v.restore(saved)

	if runErr != nil {
		return coroutine.Failed, nil, runErr
	}
	if frameCount == 0 {
		return coroutine.Completed, result, nil
	}
	return coroutine.Suspended, nil, nil
}

func (v *VM) popFinalResult() value.Value {
	if v.sp == 0 {
		return value.Nil{}
	}
	return v.pop()
}

// Executor exposes the VM's coroutine scheduler. The `spawn` builtin
// enqueues onto it; Run and Interpret do not tick it, so spawned
// coroutines run only when the caller drives it (Tick or
// RunUntilComplete).
func (v *VM) Executor() *coroutine.Executor { return v.executor }

// Intern exposes the VM's string pool for the front-end compiler and
// the bytecode archive loader.
func (v *VM) Intern() *intern.Pool { return v.pool }

// GC exposes collector stats for the `gc-stats` CLI subcommand.
func (v *VM) GC() *gc.Collector { return v.gc }

// Roots implements gc.RootProvider: the active stack/frames/upvalues,
// every suspended coroutine's own saved stack/frames/upvalues,
// globals, struct types, and the executor's view of pending promises.
func (v *VM) Roots() []interface{} {
	out := make([]interface{}, 0, v.sp+v.frameCount*2)
	out = appendStateRoots(out, v.snapshot())
	for _, st := range v.coroutineStates {
		out = appendStateRoots(out, *st)
	}
	for name, g := range v.globals {
		out = append(out, name, g)
	}
	for name, t := range v.structTypes {
		out = append(out, name, t)
	}
	out = append(out, v.executor.Roots()...)
	return out
}

func appendStateRoots(out []interface{}, s vmState) []interface{} {
	for i := 0; i < s.sp; i++ {
		out = append(out, s.stack[i])
	}
	for i := 0; i < s.frameCount; i++ {
		out = append(out, s.frames[i].closure)
	}
	for uv := s.openUpvalues; uv != nil; uv = uv.Next() {
		out = append(out, uv)
	}
	return out
}
