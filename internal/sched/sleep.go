package sched

import (
	"sync/atomic"

	"corekernel/internal/bitfield"
	"corekernel/internal/ktime"
)

// SleepHandle is a globally unique token a thread can park on until
// some subsystem signals it (e.g. a device interrupt). Grounded on
// beskar-core/src/process.rs's SleepHandle: value 1 is reserved for
// the keyboard interrupt, allocation starts at 2.
type SleepHandle uint64

// SleepHandleKeyboardInterrupt is the one reserved, well-known handle.
const SleepHandleKeyboardInterrupt SleepHandle = 1

var nextSleepHandle = func() *atomic.Uint64 {
	v := &atomic.Uint64{}
	v.Store(2)
	return v
}()

// NewSleepHandle allocates a fresh handle.
func NewSleepHandle() SleepHandle {
	return SleepHandle(nextSleepHandle.Add(1) - 1)
}

// SleepKind discriminates an AtomicSleepReason's payload. Values match
// beskar-core/src/process.rs's DISCRIMINANT_NONE/UNTIL/EVENT/INDEFINITE
// exactly (0/1/2/3) so the packed bit layout lines up the same way.
type SleepKind uint8

const (
	SleepNone SleepKind = iota
	SleepUntil
	SleepEvent
	SleepIndefinite
)

// sleepBits is the bitfield.Pack/Unpack view of one packed
// AtomicSleepReason word: a 2-bit discriminant in the low bits and a
// 62-bit payload above it — the same layout
// beskar-core/src/process.rs's AtomicSleepReason::pack hand-rolls via
// DISCRIMINANT_MASK/DATA_SHIFT, expressed here through
// internal/bitfield's struct-tag packing instead (the one genuine use
// in this module for reflection-based discriminant+payload packing
// that internal/paging's plain-uint64 PTE flags did not need).
type sleepBits struct {
	Kind    uint8  `bitfield:",2"`
	Payload uint64 `bitfield:",62"`
}

const maxPayload = (uint64(1) << 62) - 1

func packReason(kind SleepKind, payload uint64) uint64 {
	v, err := bitfield.Pack(&sleepBits{Kind: uint8(kind), Payload: payload & maxPayload}, &bitfield.Config{NumBits: 64})
	if err != nil {
		panic("sched: AtomicSleepReason pack: " + err.Error())
	}
	return v
}

func unpackReason(raw uint64) (SleepKind, uint64) {
	var b sleepBits
	if err := bitfield.Unpack(raw, &b); err != nil {
		panic("sched: AtomicSleepReason unpack: " + err.Error())
	}
	return SleepKind(b.Kind), b.Payload
}

// AtomicSleepReason is a lock-free Option<SleepReason> packed into one
// 64-bit word: None, Until(deadline) (stored at 4 µs precision: the
// deadline's low 2 bits are dropped so it fits the 62 bits the
// discriminant leaves free), Event(handle), or Indefinite. The zero
// value is None.
type AtomicSleepReason struct {
	v atomic.Uint64
}

// Load returns the current kind and its raw payload (a deadline's
// microsecond count for Until, a SleepHandle for Event, 0 otherwise).
func (r *AtomicSleepReason) Load() (SleepKind, uint64) {
	kind, payload := unpackReason(r.v.Load())
	if kind == SleepUntil {
		payload <<= 2
	}
	return kind, payload
}

// StoreNone clears the reason.
func (r *AtomicSleepReason) StoreNone() { r.v.Store(packReason(SleepNone, 0)) }

// StoreUntil records a deadline-based sleep, dropping the deadline's
// low 2 bits (4 µs precision).
func (r *AtomicSleepReason) StoreUntil(deadline ktime.Instant) {
	r.v.Store(packReason(SleepUntil, deadline.Micros()>>2))
}

// StoreEvent records an event-based sleep.
func (r *AtomicSleepReason) StoreEvent(handle SleepHandle) {
	r.v.Store(packReason(SleepEvent, uint64(handle)))
}

// StoreIndefinite records a sleep with no deadline and no event, woken
// only by an explicit wake.
func (r *AtomicSleepReason) StoreIndefinite() { r.v.Store(packReason(SleepIndefinite, 0)) }

// Deadline returns the stored Until deadline and true, or
// (0, false) for any other kind.
func (r *AtomicSleepReason) Deadline() (ktime.Instant, bool) {
	kind, payload := r.Load()
	if kind != SleepUntil {
		return 0, false
	}
	return ktime.FromMicros(payload), true
}

// Handle returns the stored Event handle and true, or (0, false) for
// any other kind.
func (r *AtomicSleepReason) Handle() (SleepHandle, bool) {
	kind, payload := r.Load()
	if kind != SleepEvent {
		return 0, false
	}
	return SleepHandle(payload), true
}
