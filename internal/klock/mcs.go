package klock

import (
	"sync/atomic"
	"unsafe"
)

// MCSNode is the caller-supplied queue node an MCS lock links through.
// Each would-be holder provides its own node (typically stack- or
// per-CPU-allocated), avoiding the cache-line bouncing a single shared
// lock word causes under contention.
type MCSNode struct {
	next   atomic.Pointer[MCSNode]
	locked atomic.Bool
}

// MCS is a queue lock: Lock links the caller's node onto the tail and
// waits for the predecessor to release; Unlock either publishes
// directly to a known successor or CASes the tail back to nil.
type MCS struct {
	tail    atomic.Pointer[MCSNode]
	backoff Backoff
}

// NewMCS constructs an MCS lock using backoff for spinning.
func NewMCS(backoff Backoff) *MCS {
	if backoff == nil {
		backoff = SpinLoopBackoff
	}
	return &MCS{backoff: backoff}
}

// Lock acquires the lock using node as this caller's queue entry. node
// must not be reused concurrently by another holder.
func (m *MCS) Lock(node *MCSNode) {
	node.next.Store(nil)
	node.locked.Store(true)

	pred := m.tail.Swap(node)
	if pred == nil {
		// No predecessor: lock acquired immediately.
		return
	}
	pred.next.Store(node)
	for node.locked.Load() {
		m.backoff()
	}
}

// Unlock releases the lock previously acquired with node.
func (m *MCS) Unlock(node *MCSNode) {
	if node.next.Load() == nil {
		if m.tail.CompareAndSwap(node, nil) {
			return
		}
		// A successor is in the process of linking; wait for it.
		for node.next.Load() == nil {
			m.backoff()
		}
	}
	node.next.Load().locked.Store(false)
}

// MCSMaybeUninit wraps an MCS lock around a value that may not yet be
// initialized, for static singletons (the frame allocator, the kernel
// virtual page allocator, per-CPU locals array) that must be
// lock-protected before their payload exists. Init may be called
// exactly once; WithLocked returns ok=false before that.
type MCSMaybeUninit[T any] struct {
	lock    MCS
	isInit  atomic.Bool
	storage unsafe.Pointer // *T once initialized
}

// NewMCSMaybeUninit constructs an uninitialized maybe-uninit MCS lock.
func NewMCSMaybeUninit[T any](backoff Backoff) *MCSMaybeUninit[T] {
	return &MCSMaybeUninit[T]{lock: MCS{backoff: backoffOrDefault(backoff)}}
}

func backoffOrDefault(b Backoff) Backoff {
	if b == nil {
		return SpinLoopBackoff
	}
	return b
}

// Init installs val as the protected value. Calling Init more than once
// panics: the contract is one-shot, matching spec.md §4.2.
func (m *MCSMaybeUninit[T]) Init(val T) {
	var node MCSNode
	m.lock.Lock(&node)
	defer m.lock.Unlock(&node)
	if m.isInit.Load() {
		panic("klock: MCSMaybeUninit.Init called twice")
	}
	v := val
	m.storage = unsafe.Pointer(&v)
	m.isInit.Store(true)
}

// WithLocked acquires the lock and calls fn with the protected value,
// returning ok=false without calling fn if not yet initialized. The
// lock is always released, including if fn panics.
func (m *MCSMaybeUninit[T]) WithLocked(fn func(*T)) (ok bool) {
	var node MCSNode
	m.lock.Lock(&node)
	defer m.lock.Unlock(&node)
	if !m.isInit.Load() {
		return false
	}
	fn((*T)(m.storage))
	return true
}

// IsInit reports whether Init has been called.
func (m *MCSMaybeUninit[T]) IsInit() bool { return m.isInit.Load() }
