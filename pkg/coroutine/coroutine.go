// Package coroutine implements a cooperative coroutine and promise
// scheduler: a single-threaded, FIFO-ticked executor. Suspension
// happens only at AWAIT/YIELD bytecode points; there is no preemption
// and no OS-thread parallelism.
package coroutine

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kristofer/smogvm/pkg/value"
)

// State is a coroutine's lifecycle stage.
type State byte

const (
	Suspended State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resumer is whatever the VM provides to actually run a coroutine's
// bytecode forward until its next suspend point or termination; the
// executor is deliberately ignorant of call frames and the operand
// stack.
type Resumer interface {
	// Resume runs the coroutine until it suspends, completes, or
	// fails, returning its new state and (if Completed/Failed) the
	// result or error value.
	Resume(c *Coroutine) (State, value.Value, error)
}

// Coroutine is a cooperatively scheduled unit of work: a VM-level
// closure invocation plus its lifecycle state and the promise it will
// eventually resolve or reject.
type Coroutine struct {
	// ID is a debug-only identity tag for logs and the REPL's
	// coroutine listing; distinct from a Name, which need not be unique.
	ID      string
	Name    string
	state   State
	Promise *Promise

	// awaiting is set while Suspended on a pending promise and cleared
	// when that promise settles; the executor does not read it, since
	// the promise itself holds the waiter list that drives rescheduling.
	awaiting *Promise
}

// NewCoroutine creates a coroutine in the Suspended state, not yet
// started — its first Resume call is its first tick.
func NewCoroutine(name string) *Coroutine {
	return &Coroutine{ID: uuid.NewString(), Name: name, state: Suspended, Promise: NewPromise()}
}

func (c *Coroutine) State() State { return c.state }

// Promise is a Pending/Resolved/Failed future: a result slot plus the
// FIFO list of coroutines blocked in `await` on it.
type Promise struct {
	ID      string
	state   promiseState
	value   value.Value
	err     error
	waiters []*Coroutine

	marked bool
}

type promiseState byte

const (
	pendingState promiseState = iota
	resolvedState
	failedState
)

// NewPromise creates a pending promise.
func NewPromise() *Promise { return &Promise{ID: uuid.NewString(), state: pendingState} }

func (p *Promise) Pending() bool  { return p.state == pendingState }
func (p *Promise) Resolved() bool { return p.state == resolvedState }
func (p *Promise) Failed() bool   { return p.state == failedState }

// Value returns the resolved value, or Nil if not yet resolved.
func (p *Promise) Value() value.Value {
	if p.value == nil {
		return value.Nil{}
	}
	return p.value
}

// Err returns the rejection error, if Failed.
func (p *Promise) Err() error { return p.err }

// Kind/Truthy/GoString let *Promise sit on the VM operand stack like
// any other value.Value, so `await` can pop one directly.
func (p *Promise) Kind() value.Kind { return value.KindPromise }
func (p *Promise) Truthy() bool     { return true }
func (p *Promise) GoString() string {
	switch p.state {
	case resolvedState:
		return "<promise resolved>"
	case failedState:
		return "<promise failed>"
	default:
		return "<promise pending>"
	}
}

// Children satisfies gc.Traceable: a promise's outgoing reference is
// its resolved value (waiters are owned by the executor's ready queue,
// which is itself part of the root set, not reached through here).
func (p *Promise) Children() []interface{} {
	if p.value == nil {
		return nil
	}
	return []interface{}{p.value}
}

func (p *Promise) Marked() bool     { return p.marked }
func (p *Promise) SetMarked(m bool) { p.marked = m }

// resolve/reject are unexported: only the executor mutates promise
// state, and only once (Pending -> Resolved|Failed is a one-way
// transition).
func (p *Promise) resolve(v value.Value) []*Coroutine {
	if p.state != pendingState {
		return nil
	}
	p.state = resolvedState
	p.value = v
	waiters := p.waiters
	p.waiters = nil
	return waiters
}

func (p *Promise) reject(err error) []*Coroutine {
	if p.state != pendingState {
		return nil
	}
	p.state = failedState
	p.err = err
	waiters := p.waiters
	p.waiters = nil
	return waiters
}

func (p *Promise) addWaiter(c *Coroutine) {
	p.waiters = append(p.waiters, c)
}

var errDeadlock = errors.New("coroutine: ready queue drained with coroutines still suspended")
