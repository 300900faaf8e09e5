// Package klock implements the kernel's lock primitives: a fair ticket
// lock, an MCS queue lock (plain and maybe-uninitialized), a
// writer-priority RW lock, and a one-shot Once. None of these may be
// held across a suspension point from interrupt context (spec.md §5);
// all are spin-based, safe to acquire briefly with interrupts disabled.
package klock

import (
	"runtime"
	"sync/atomic"
)

// Backoff is called in each iteration of a spin loop. The default,
// SpinLoopBackoff, issues the architecture's pause/yield hint; tests
// and hosted tools may substitute a Gosched-based backoff so a single
// OS thread doesn't starve other goroutines.
type Backoff func()

// SpinLoopBackoff is the default backoff: a plain busy-wait hint. On
// bare metal this would lower to a PAUSE instruction; under go test it
// degrades gracefully to runtime.Gosched so the scheduler can make
// progress on GOMAXPROCS=1 runs, mirroring the teacher's own
// SimpleChannel.receive busy-wait (goroutine.go) which does not yield
// at all because it never runs under contention with fewer OS threads
// than waiters.
func SpinLoopBackoff() { runtime.Gosched() }

// Ticket is a fair FIFO mutex: two counters, next and serving.
// Acquire fetch-adds next and spins until serving==ticket; Release
// fetch-adds serving. Generic over a Backoff strategy selected at
// construction, not via virtual dispatch, per spec.md §9's comment on
// "dispatch on heterogeneous lock policies."
type Ticket struct {
	next    atomic.Uint64
	serving atomic.Uint64
	backoff Backoff
}

// NewTicket constructs a Ticket lock using backoff for spinning. A nil
// backoff defaults to SpinLoopBackoff.
func NewTicket(backoff Backoff) *Ticket {
	if backoff == nil {
		backoff = SpinLoopBackoff
	}
	return &Ticket{backoff: backoff}
}

// Lock acquires the lock, blocking until it is this caller's turn.
func (t *Ticket) Lock() {
	ticket := t.next.Add(1) - 1
	for t.serving.Load() != ticket {
		t.backoff()
	}
}

// Unlock releases the lock, admitting the next ticket holder.
func (t *Ticket) Unlock() {
	t.serving.Add(1)
}

// TryLock attempts to acquire the lock without blocking, succeeding
// only if no other ticket is outstanding ahead of this one.
func (t *Ticket) TryLock() bool {
	for {
		next := t.next.Load()
		serving := t.serving.Load()
		if next != serving {
			return false
		}
		if t.next.CompareAndSwap(next, next+1) {
			return true
		}
	}
}
