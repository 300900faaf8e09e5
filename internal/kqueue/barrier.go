package kqueue

import (
	"sync/atomic"

	"corekernel/internal/klock"
)

// Barrier synchronizes n goroutines at a rendezvous point, reusable
// across rounds without a reset call between uses. Grounded on
// original_source/hyperdrive/src/sync/barrier.rs, which uses two
// counters (current/passed) instead of one generation counter so that
// threads cannot race through two consecutive barriers: a thread only
// advances past Wait once every other thread has both arrived at and
// departed the round it arrived in.
type Barrier struct {
	n       int64
	current atomic.Int64
	passed  atomic.Int64
	backoff klock.Backoff
}

// NewBarrier constructs a Barrier for n parties. n must be >= 1. A nil
// backoff defaults to klock.SpinLoopBackoff.
func NewBarrier(n int, backoff klock.Backoff) *Barrier {
	if n < 1 {
		panic("kqueue: Barrier requires n >= 1")
	}
	if backoff == nil {
		backoff = klock.SpinLoopBackoff
	}
	return &Barrier{n: int64(n), backoff: backoff}
}

// Wait blocks until all n parties have called Wait for the current
// round, then releases all of them together. The Barrier may be
// reused immediately for another round.
func (b *Barrier) Wait() {
	for b.passed.Load() != 0 {
		b.backoff()
	}
	arrived := b.current.Add(1)
	if arrived == b.n {
		// Last arrival: release everyone else, pre-crediting for our own
		// non-participation in the decrement below.
		b.passed.Store(b.n - 1)
		b.current.Store(0)
		return
	}
	for b.current.Load() != 0 {
		b.backoff()
	}
	b.passed.Add(-1)
}
