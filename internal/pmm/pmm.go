// Package pmm implements the physical frame allocator: a memory-range
// set over usable physical intervals, serving alloc/alloc_request/free
// of 4 KiB/2 MiB/1 GiB frames. Grounded on
// src/mazboot/golang/main/page.go's pageInit/allocPage/freePage (the
// free-list-from-memory-probe, zero-on-alloc idiom), generalized from
// a single 4 KiB page size to addr.SizeClass's three granularities via
// internal/memrange.Set.
package pmm

import (
	"errors"

	"corekernel/internal/addr"
	"corekernel/internal/klock"
	"corekernel/internal/memrange"
)

// ErrOutOfMemory is returned when no interval satisfies a frame
// request, matching the teacher's allocPage nil-return contract
// promoted to an explicit error per spec.md §4.3.
var ErrOutOfMemory = errors.New("pmm: out of memory")

// Allocator owns the set of free physical intervals and hands out
// frames of any addr.SizeClass from it. Safe for concurrent use; all
// operations serialize on an internal ticket lock, mirroring the
// teacher's single-threaded free list generalized to SMP via
// internal/klock.Ticket.
type Allocator struct {
	mu   *klock.Ticket
	free *memrange.Set
}

// New constructs an Allocator seeded with the usable physical ranges
// reported by the bootloader's memory map.
func New(usable []memrange.Range) *Allocator {
	set := memrange.NewSet()
	for _, r := range usable {
		set.Insert(r)
	}
	return &Allocator{mu: klock.NewTicket(nil), free: set}
}

// Alloc locates a free, aligned region of exactly one size-class unit
// and removes it from the free set, returning the resulting Frame.
// Grounded on allocPage's zero-on-return security stance: callers are
// expected to treat returned frames as containing whatever garbage is
// in uninitialized physical memory the same way the teacher's
// asm.Bzero call does before handing a page back — zeroing is the
// caller's (mapping layer's) responsibility here since pmm itself has
// no way to address physical memory directly without a mapping.
func (a *Allocator) Alloc(size addr.SizeClass) (addr.Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start, ok := a.free.Allocate(size.Bytes(), uint64(size.Alignment()), memrange.DontCare, nil)
	if !ok {
		return addr.Frame{}, ErrOutOfMemory
	}
	phys, ok := addr.NewPhysAddr(start)
	if !ok {
		a.free.Insert(memrange.NewRange(start, start+size.Bytes()-1))
		return addr.Frame{}, ErrOutOfMemory
	}
	frame, ok := addr.FrameFromStartAddress(phys, size)
	if !ok {
		panic("pmm: allocator returned a misaligned start address")
	}
	return frame, nil
}

// AllocRequest is Alloc restricted to addresses also covered by
// within — used to reserve the identity-mapped AP trampoline frame in
// low memory (spec.md §4.3, §6 step 2).
func (a *Allocator) AllocRequest(size addr.SizeClass, within *memrange.Set) (addr.Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start, ok := a.free.Allocate(size.Bytes(), uint64(size.Alignment()), memrange.MustBeWithin, within)
	if !ok {
		return addr.Frame{}, ErrOutOfMemory
	}
	phys, ok := addr.NewPhysAddr(start)
	if !ok {
		a.free.Insert(memrange.NewRange(start, start+size.Bytes()-1))
		return addr.Frame{}, ErrOutOfMemory
	}
	frame, ok := addr.FrameFromStartAddress(phys, size)
	if !ok {
		panic("pmm: allocator returned a misaligned start address")
	}
	return frame, nil
}

// Free returns frame's range to the free set, coalescing with
// neighboring free ranges.
func (a *Allocator) Free(frame addr.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free.Insert(memrange.NewRange(uint64(frame.Start), uint64(frame.End())))
}

// FreeBytes returns the total number of bytes currently available for
// allocation, for diagnostics and tests.
func (a *Allocator) FreeBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free.Sum()
}
