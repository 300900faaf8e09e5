// Package ktime implements the kernel's opaque microsecond time types.
// Both Instant and Duration are plain u64 microsecond counts; arithmetic
// is total but saturates rather than wrapping, mirroring the teacher's
// nanotime.go/timer_qemu.go pairing of a hardware timer read with a
// Go-visible time hook.
package ktime

import "sync/atomic"

// Duration is a span of time in whole microseconds.
type Duration uint64

const (
	Microsecond Duration = 1
	Millisecond          = 1000 * Microsecond
	Second               = 1000 * Millisecond
)

// Instant is a monotonic point in time in whole microseconds since an
// arbitrary epoch fixed at boot.
type Instant uint64

// FromMicros constructs an Instant from a raw microsecond count.
func FromMicros(us uint64) Instant { return Instant(us) }

func (i Instant) Micros() uint64 { return uint64(i) }

// Sub returns the Duration elapsed from earlier to i. Saturates at 0 if
// earlier is later than i (clock readings are never expected to go
// backward, but defensive saturation avoids wraparound on a bug).
func (i Instant) Sub(earlier Instant) Duration {
	if i < earlier {
		return 0
	}
	return Duration(i - earlier)
}

// Add returns i+d, saturating at the max representable Instant.
func (i Instant) Add(d Duration) Instant {
	sum := uint64(i) + uint64(d)
	if sum < uint64(i) {
		return Instant(^uint64(0))
	}
	return Instant(sum)
}

// Before reports whether i happens before other.
func (i Instant) Before(other Instant) bool { return i < other }

// Source abstracts the monotonic clock the scheduler reads ticks from.
// Production code backs it with the LAPIC/HPET-derived hardware counter;
// tests back it with a FakeSource so deadline/wake behavior is
// deterministic. This is the supplemented time-source abstraction named
// in SPEC_FULL.md §12.
type Source interface {
	Now() Instant
}

// FakeSource is a test clock advanced explicitly by the caller.
type FakeSource struct {
	now atomic.Uint64
}

// NewFakeSource returns a FakeSource starting at the given Instant.
func NewFakeSource(start Instant) *FakeSource {
	f := &FakeSource{}
	f.now.Store(uint64(start))
	return f
}

func (f *FakeSource) Now() Instant { return Instant(f.now.Load()) }

// Advance moves the fake clock forward by d and returns the new time.
func (f *FakeSource) Advance(d Duration) Instant {
	return Instant(f.now.Add(uint64(d)))
}
