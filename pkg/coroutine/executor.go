package coroutine

import (
	"go.uber.org/zap"

	"github.com/kristofer/smogvm/pkg/value"
)

// Executor owns the FIFO ready queue and the set of suspended
// coroutines. It has no notion of bytecode or stack frames; Resumer
// does the actual interpreting.
type Executor struct {
	resumer Resumer
	log     *zap.Logger

	ready     []*Coroutine
	suspended map[*Coroutine]bool
}

// NewExecutor creates an executor over the given Resumer (normally the
// VM itself).
func NewExecutor(resumer Resumer, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{resumer: resumer, log: log, suspended: make(map[*Coroutine]bool)}
}

// Spawn enqueues a new coroutine at the back of the ready queue.
func (e *Executor) Spawn(c *Coroutine) {
	e.ready = append(e.ready, c)
}

// Tick dequeues the front ready coroutine and resumes it once,
// dispatching on its resulting state:
//
//	Suspended (on a pending await)  -> moved to the suspended set
//	Completed/Failed                -> promise settled, waiters requeued
//	Running (explicit reschedule)   -> appended back to the ready queue
//
// The "Running" case covers a documented fix over the naive design: a
// coroutine that resumes and satisfies an awaiter, but isn't itself
// done, must go back on the ready queue rather than sit marked
// Suspended with nothing left to wake it.
func (e *Executor) Tick() bool {
	if len(e.ready) == 0 {
		return false
	}
	c := e.ready[0]
	e.ready = e.ready[1:]

	c.state = Running
	newState, result, err := e.resumer.Resume(c)
	c.state = newState

	switch newState {
	case Suspended:
		e.suspended[c] = true
	case Completed:
		delete(e.suspended, c)
		e.settle(c.Promise.resolve(result))
	case Failed:
		delete(e.suspended, c)
		e.settle(c.Promise.reject(err))
	case Running:
		e.ready = append(e.ready, c)
	}
	return true
}

// settle reschedules every waiter a promise just resolved or rejected,
// preserving FIFO order: waiters resume in the order they awaited, and
// a waiter that was itself suspended comes off the suspended set as
// it's requeued.
func (e *Executor) settle(waiters []*Coroutine) {
	for _, w := range waiters {
		delete(e.suspended, w)
		w.awaiting = nil
		e.ready = append(e.ready, w)
	}
}

// Await is called by the VM's AWAIT opcode handler. If promise is
// already settled, it returns the value/error immediately and the
// caller does not suspend. Otherwise the calling coroutine is
// registered as a waiter and the VM must treat this as a suspend
// point: c transitions to Suspended and control returns to the
// executor's Tick loop.
func (e *Executor) Await(c *Coroutine, p *Promise) (value.Value, error, bool) {
	switch {
	case p.Resolved():
		return p.Value(), nil, true
	case p.Failed():
		return nil, p.Err(), true
	default:
		p.addWaiter(c)
		c.awaiting = p
		return nil, nil, false
	}
}

// RunUntilComplete schedules main and ticks the executor until main
// reaches a terminal state.
func (e *Executor) RunUntilComplete(main *Coroutine) (value.Value, error) {
	e.Spawn(main)
	for main.State() != Completed && main.State() != Failed {
		if !e.Tick() {
			// Ready queue drained with main still pending: every
			// remaining coroutine (including main) is stuck awaiting
			// a promise nothing will ever resolve.
			return nil, errDeadlock
		}
	}
	if main.State() == Failed {
		return nil, main.Promise.Err()
	}
	return main.Promise.Value(), nil
}

// Ready reports how many coroutines are queued to run; used by tests
// and the `gc-stats`-style introspection hooks.
func (e *Executor) Ready() int { return len(e.ready) }

// Suspended reports how many coroutines are parked awaiting a promise.
func (e *Executor) Suspended() int { return len(e.suspended) }

// Roots satisfies gc.RootProvider: every suspended and ready coroutine
// (via its promise) is a GC root.
func (e *Executor) Roots() []interface{} {
	out := make([]interface{}, 0, len(e.ready)+len(e.suspended))
	for _, c := range e.ready {
		out = append(out, c.Promise)
	}
	for c := range e.suspended {
		out = append(out, c.Promise)
	}
	return out
}
