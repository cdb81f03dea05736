package bytecode

import (
	"fmt"

	"github.com/kristofer/smogvm/pkg/value"
)

// Function is a compiled, not-yet-closed-over function body: arity,
// how many upvalues its closures must capture, and the chunk to run.
type Function struct {
	Name         string
	Arity        int
	UpvalueCount int
	Chunk        *Chunk

	marked bool
}

func (f *Function) Kind() value.Kind { return value.KindFunction }
func (f *Function) Truthy() bool     { return true }
func (f *Function) GoString() string {
	if f.Name == "" {
		return "<function>"
	}
	return fmt.Sprintf("<function %s>", f.Name)
}

func (f *Function) Marked() bool     { return f.marked }
func (f *Function) SetMarked(m bool) { f.marked = m }
func (f *Function) Children() []interface{} {
	if f.Chunk == nil {
		return nil
	}
	out := make([]interface{}, len(f.Chunk.Constants))
	for i, c := range f.Chunk.Constants {
		out[i] = c
	}
	return out
}

// Upvalue is either open (aliasing a live stack slot of an outer
// frame) or closed (owning the value after that frame returns). The
// VM keeps open upvalues in a list sorted by descending stack index
// so a slot is captured at most once.
type Upvalue struct {
	slot       *value.Value // non-nil while open: points into the VM's stack array
	stackIndex int          // absolute stack index this upvalue aliases while open
	closedVal  value.Value
	closed     bool

	next *Upvalue // open-upvalue list link (VM-maintained)

	marked bool
}

// NewOpenUpvalue creates an upvalue aliasing the given stack slot.
func NewOpenUpvalue(slot *value.Value, stackIndex int) *Upvalue {
	return &Upvalue{slot: slot, stackIndex: stackIndex}
}

func (u *Upvalue) StackIndex() int { return u.stackIndex }
func (u *Upvalue) IsOpen() bool    { return !u.closed }
func (u *Upvalue) Next() *Upvalue  { return u.next }
func (u *Upvalue) SetNext(n *Upvalue) { u.next = n }

// Get returns the current value, from the live stack slot if open or
// from the owned copy if closed.
func (u *Upvalue) Get() value.Value {
	if u.closed {
		return u.closedVal
	}
	return *u.slot
}

// Set writes through to the live stack slot if open, or to the owned
// copy if closed.
func (u *Upvalue) Set(v value.Value) {
	if u.closed {
		u.closedVal = v
		return
	}
	*u.slot = v
}

// Close detaches the upvalue from the stack, copying out its current
// value. Called when the frame owning the aliased slot returns.
func (u *Upvalue) Close() {
	if u.closed {
		return
	}
	u.closedVal = *u.slot
	u.closed = true
	u.slot = nil
}

func (u *Upvalue) Marked() bool     { return u.marked }
func (u *Upvalue) SetMarked(m bool) { u.marked = m }
func (u *Upvalue) Children() []interface{} {
	return []interface{}{u.Get()}
}

// Closure pairs a Function with the upvalues its body captured at
// creation time.
type Closure struct {
	Function *Function
	Upvalues []*Upvalue

	marked bool
}

func (c *Closure) Kind() value.Kind { return value.KindClosure }
func (c *Closure) Truthy() bool     { return true }
func (c *Closure) GoString() string {
	return fmt.Sprintf("<closure %s>", c.Function.GoString())
}

func (c *Closure) Marked() bool     { return c.marked }
func (c *Closure) SetMarked(m bool) { c.marked = m }
func (c *Closure) Children() []interface{} {
	out := make([]interface{}, 0, len(c.Upvalues)+1)
	out = append(out, c.Function)
	for _, uv := range c.Upvalues {
		out = append(out, uv)
	}
	return out
}

// NativeFunc is the signature for built-in/host functions:
// `fn(argc, argv[]) -> Value`.
type NativeFunc func(args []value.Value) (value.Value, error)

// Native wraps a host function so it can sit on the operand stack like
// any other callable value.
type Native struct {
	Name string
	Fn   NativeFunc
}

func (n *Native) Kind() value.Kind { return value.KindNative }
func (n *Native) Truthy() bool     { return true }
func (n *Native) GoString() string { return fmt.Sprintf("<native %s>", n.Name) }
