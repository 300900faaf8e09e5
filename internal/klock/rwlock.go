package klock

import "sync/atomic"

// RW is a single-writer/many-reader lock with writer priority: a
// writer CASes a writer-flag to true before waiting for readers to
// drain, and readers re-check the flag after incrementing their count,
// rolling back if a writer has announced intent. This eliminates
// writer starvation under continuous reader load (spec.md §4.2, §8).
//
// Ordering: the writer's flag write is Release; the reader's recheck is
// Acquire, so the Acquire/Release pair carries writer-announced intent
// to every subsequently arriving reader (spec.md §5).
type RW struct {
	writerWaiting atomic.Bool
	writerActive  atomic.Bool
	readers       atomic.Int64
	backoff       Backoff
}

// NewRW constructs an RW lock using backoff for spinning.
func NewRW(backoff Backoff) *RW {
	return &RW{backoff: backoffOrDefault(backoff)}
}

// RLock acquires a read lock, rolling back and retrying if a writer is
// waiting or active.
func (rw *RW) RLock() {
	for {
		rw.readers.Add(1)
		if !rw.writerWaiting.Load() && !rw.writerActive.Load() {
			return
		}
		// A writer has announced intent (or is active): back off and
		// let it proceed rather than starve it.
		rw.readers.Add(-1)
		for rw.writerWaiting.Load() || rw.writerActive.Load() {
			rw.backoff()
		}
	}
}

// RUnlock releases a read lock.
func (rw *RW) RUnlock() {
	rw.readers.Add(-1)
}

// Lock acquires the write lock, announcing intent immediately so new
// readers roll back, then draining readers already in the critical
// section and waiting for any active writer to release.
func (rw *RW) Lock() {
	for !rw.writerWaiting.CompareAndSwap(false, true) {
		rw.backoff()
	}
	for rw.readers.Load() > 0 || rw.writerActive.Load() {
		rw.backoff()
	}
	rw.writerActive.Store(true)
	rw.writerWaiting.Store(false)
}

// Unlock releases the write lock.
func (rw *RW) Unlock() {
	rw.writerActive.Store(false)
}
