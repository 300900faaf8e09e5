package sched

import (
	"sync/atomic"

	"corekernel/internal/addr"
)

// ThreadID is a monotonic, globally unique thread identifier.
type ThreadID uint64

var nextThreadID atomic.Uint64

// NewThreadID allocates the next ThreadID. IDs start at 1; 0 is the
// "no current thread" value the scheduler keeps per core.
func NewThreadID() ThreadID {
	return ThreadID(nextThreadID.Add(1))
}

// State is one of the four run states spec.md §4.8's state machine
// names.
type State int32

const (
	StateRunnable State = iota
	StateRunning
	StateSleeping
	StateExited
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "Runnable"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateExited:
		return "Exited"
	default:
		return "invalid"
	}
}

// Thread is one schedulable unit of execution: a TID, a strong
// reference to its Process, an atomic run state, an atomic sleep
// reason, a guarded kernel stack (always present) and an optional
// guarded user stack, and the home core its run queue entries are
// pushed to at wake time. Grounded on
// original_source/beskar-core/src/process.rs's role split between
// Process and the (pruned) scheduler::thread::Thread it references.
type Thread struct {
	ID      ThreadID
	Process *Process

	state atomic.Int32
	Sleep AtomicSleepReason

	HomeCore int

	KernelStack addr.Range
	UserStack   addr.Range
	HasUserStack bool

	Fn func()
}

// State returns the thread's current run state.
func (t *Thread) State() State { return State(t.state.Load()) }

func (t *Thread) setState(s State) { t.state.Store(int32(s)) }

// compareAndSwapState is used internally to make state transitions
// race-free when two cores could plausibly observe the same thread
// (e.g. a wake racing a self-initiated sleep).
func (t *Thread) compareAndSwapState(old, new State) bool {
	return t.state.CompareAndSwap(int32(old), int32(new))
}
