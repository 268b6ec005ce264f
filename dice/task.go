package dice

import (
	"context"
	"sync/atomic"

	"github.com/forgelab/dice/dicekey"
)

// taskState is the supervision state of an in-flight (key, version)
// computation (spec.md §4.1.4): Initialized, never started; Computing, the
// evaluator is running; Ready, a value was published; Cancelled, the task
// exited without publishing (either because its evaluator failed, or
// because its last strong reference was dropped before it finished).
type taskState int32

const (
	stateInitialized taskState = iota
	stateComputing
	stateReady
	stateCancelled
)

// task is the promise/waker object shared by every caller that requests
// the same (key, version) while a computation is in flight: at most one
// evaluator invocation exists per (key, version) (spec.md §4.1.2), and all
// requesters attach to the same task and share its published result.
//
// Go has no portable weak reference the engine can hook a GC callback on,
// so "cancelled when the last strong reference is dropped" is rendered
// explicitly: attach/detach maintain a live count, and the count reaching
// zero invokes cancel on the context the owning goroutine's evaluator call
// is running under.
type task struct {
	state atomic.Int32
	refs  atomic.Int32

	done   chan struct{}
	cancel context.CancelFunc

	value dicekey.Value
	deps  []dicekey.Index
	err   error
}

func newTask(cancel context.CancelFunc) *task {
	return &task{done: make(chan struct{}), cancel: cancel}
}

// attach registers a new strong reference (a waiter) on the task.
func (t *task) attach() { t.refs.Add(1) }

// detach drops a strong reference. When the last one goes, and the task has
// not yet published, the owning evaluator's context is cancelled so it can
// stop without wasting work nobody is waiting on.
func (t *task) detach() {
	if t.refs.Add(-1) == 0 {
		if s := taskState(t.state.Load()); s == stateInitialized || s == stateComputing {
			t.cancel()
		}
	}
}

func (t *task) markComputing() bool {
	return t.state.CompareAndSwap(int32(stateInitialized), int32(stateComputing))
}

// publish transitions Computing -> Ready and wakes all waiters. Returns
// false if the task was already cancelled out from under it.
func (t *task) publish(val dicekey.Value, deps []dicekey.Index) bool {
	if !t.state.CompareAndSwap(int32(stateComputing), int32(stateReady)) {
		return false
	}
	t.value = val
	t.deps = deps
	close(t.done)
	return true
}

// failOrCancel transitions Computing (or Initialized, if the evaluator
// never actually started) -> Cancelled. err nil means a genuine
// cancellation (ErrCancelled surfaces to waiters); non-nil means the
// evaluator itself returned an error, which is not cached and surfaces
// verbatim to waiters so they can decide how to handle it.
func (t *task) failOrCancel(err error) bool {
	if !t.state.CompareAndSwap(int32(stateComputing), int32(stateCancelled)) {
		if !t.state.CompareAndSwap(int32(stateInitialized), int32(stateCancelled)) {
			return false
		}
	}
	t.err = err
	close(t.done)
	return true
}

// wait blocks until the task reaches a terminal state or ctx is done,
// whichever comes first. It does not detach the caller's reference; the
// caller is responsible for calling detach once it no longer needs the
// task (typically via defer immediately after attach).
func (t *task) wait(ctx context.Context) (dicekey.Value, []dicekey.Index, error) {
	select {
	case <-t.done:
		if taskState(t.state.Load()) == stateCancelled {
			if t.err != nil {
				return nil, nil, t.err
			}
			return nil, nil, ErrCancelled
		}
		return t.value, t.deps, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}
