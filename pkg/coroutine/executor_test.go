package coroutine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/smogvm/pkg/coroutine"
	"github.com/kristofer/smogvm/pkg/value"
)

// scriptedResumer drives coroutines through a fixed sequence of
// resume results, so tests can exercise the executor's FIFO and
// reschedule policy without a real VM.
type scriptedResumer struct {
	steps map[string][]step
}

type step struct {
	state  coroutine.State
	result value.Value
	err    error
}

func (r *scriptedResumer) Resume(c *coroutine.Coroutine) (coroutine.State, value.Value, error) {
	s := r.steps[c.Name][0]
	r.steps[c.Name] = r.steps[c.Name][1:]
	return s.state, s.result, s.err
}

func TestRunUntilCompleteReturnsResolvedValue(t *testing.T) {
	r := &scriptedResumer{steps: map[string][]step{
		"main": {{state: coroutine.Completed, result: value.Integer(42)}},
	}}
	e := coroutine.NewExecutor(r, nil)
	main := coroutine.NewCoroutine("main")

	v, err := e.RunUntilComplete(main)
	require.NoError(t, err)
	require.Equal(t, value.Integer(42), v)
	require.Equal(t, coroutine.Completed, main.State())
}

func TestSuspendedCoroutineIsRescheduledOnSettle(t *testing.T) {
	// "worker" suspends once awaiting a promise that "main" resolves
	// on its first tick; the fix under test is that worker comes back
	// off the suspended set and into the ready queue rather than
	// staying stuck.
	r := &scriptedResumer{steps: map[string][]step{
		"main":   {{state: coroutine.Completed, result: value.Nil{}}},
		"worker": {{state: coroutine.Suspended}, {state: coroutine.Completed, result: value.Integer(7)}},
	}}
	e := coroutine.NewExecutor(r, nil)
	worker := coroutine.NewCoroutine("worker")
	e.Spawn(worker)
	require.True(t, e.Tick()) // worker suspends
	require.Equal(t, coroutine.Suspended, worker.State())
	require.Equal(t, 1, e.Suspended())

	main := coroutine.NewCoroutine("main")
	_, _, done := e.Await(worker, main.Promise)
	require.False(t, done)
	e.Spawn(main)
	require.True(t, e.Tick()) // main completes, settling the promise worker awaits

	// settle() moved worker off the suspended set and back onto the
	// ready queue.
	require.Equal(t, 0, e.Suspended())
	require.Equal(t, 1, e.Ready())
	require.True(t, e.Tick()) // worker resumes to completion
	require.Equal(t, coroutine.Completed, worker.State())
}

func TestAwaitOnPendingPromiseDoesNotReturnImmediately(t *testing.T) {
	e := coroutine.NewExecutor(&scriptedResumer{steps: map[string][]step{}}, nil)
	p := coroutine.NewPromise()
	c := coroutine.NewCoroutine("c")

	_, _, done := e.Await(c, p)
	require.False(t, done, "pending promise must not report done")

	waiters := p.Children() // no value yet
	require.Empty(t, waiters)
}

func TestRunUntilCompleteDetectsDeadlock(t *testing.T) {
	r := &scriptedResumer{steps: map[string][]step{
		"main": {{state: coroutine.Suspended}},
	}}
	e := coroutine.NewExecutor(r, nil)
	main := coroutine.NewCoroutine("main")

	_, err := e.RunUntilComplete(main)
	require.Error(t, err)
}
