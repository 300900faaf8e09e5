// Package vmm implements the virtual page allocator: a memory-range
// set over a window of virtual address space, handing out contiguous
// or guarded page ranges. Grounded on
// other_examples/6f405348_gopher-os-gopher-os__src-gopheros-kernel-mem-vmm-vmm.go.go
// for the overall "registered FrameAllocatorFn + PDT" shape (its
// Init/setupPDTForKernel split becomes this package's New/AllocatePages
// split), with the actual interval bookkeeping delegated to
// internal/memrange the same way internal/pmm does.
package vmm

import (
	"errors"

	"corekernel/internal/addr"
	"corekernel/internal/klock"
	"corekernel/internal/memrange"
)

// ErrNoVirtualSpace is returned when the allocator's window has no
// region satisfying a request.
var ErrNoVirtualSpace = errors.New("vmm: no virtual address space available")

// ErrAlreadyUsed is returned by AllocateSpecific when the requested
// page is not free.
var ErrAlreadyUsed = errors.New("vmm: requested page is already in use")

// Allocator owns a set of free virtual page ranges within one half of
// the address space (kernel-shared or a process's private user-half).
// Safe for concurrent use.
type Allocator struct {
	mu   *klock.Ticket
	free *memrange.Set
}

// New constructs an Allocator over the given window [start,end]
// (inclusive, in bytes), with every already-mapped region in used
// removed up front — mirroring the gopher-os reference's practice of
// seeding the allocator from the regions the live page table already
// occupies before making it available for new requests.
func New(window memrange.Range, used []memrange.Range) *Allocator {
	set := memrange.NewSet()
	set.Insert(window)
	for _, u := range used {
		set.Remove(u)
	}
	return &Allocator{mu: klock.NewTicket(nil), free: set}
}

// AllocatePages returns a contiguous inclusive page range of count
// pages of the given size class.
func (a *Allocator) AllocatePages(size addr.SizeClass, count uint64) (addr.Range, error) {
	if count == 0 {
		return addr.Range{}, errors.New("vmm: count must be > 0")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	byteLen := size.Bytes() * count
	start, ok := a.free.Allocate(byteLen, uint64(size.Alignment()), memrange.DontCare, nil)
	if !ok {
		return addr.Range{}, ErrNoVirtualSpace
	}
	return a.rangeFrom(start, size, count), nil
}

// AllocateSpecific reserves exactly page, failing with ErrAlreadyUsed
// if it is not currently free. Used to reserve the identity-mapped AP
// trampoline page (spec.md §4.4, §6).
func (a *Allocator) AllocateSpecific(page addr.Page) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	want := memrange.NewRange(uint64(page.Start), uint64(page.End()))
	if _, ok := a.free.TryRemove(want); ok {
		return nil
	}
	return ErrAlreadyUsed
}

// AllocateGuarded reserves count pages of the given size class,
// preceded by one unmapped 4 KiB guard page, and returns the range of
// the count usable pages (the guard page itself is never returned to
// the caller and is never mapped by anything above this layer).
func (a *Allocator) AllocateGuarded(size addr.SizeClass, count uint64) (addr.Range, error) {
	if count == 0 {
		return addr.Range{}, errors.New("vmm: count must be > 0")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	guardSize := addr.Size4KiB.Bytes()
	// One whole size-class unit is reserved ahead of the usable pages so
	// they stay aligned to size; only its top 4 KiB stays as the guard.
	lead := size.Bytes()
	byteLen := size.Bytes()*count + lead
	start, ok := a.free.Allocate(byteLen, uint64(size.Alignment()), memrange.DontCare, nil)
	if !ok {
		return addr.Range{}, ErrNoVirtualSpace
	}
	// The guard page sits directly below the usable pages so that a
	// downward-growing stack faults into the guard on overflow.
	usableStart := start + lead
	if lead > guardSize {
		a.free.Insert(memrange.NewRange(start, usableStart-guardSize-1))
	}
	return a.rangeFrom(usableStart, size, count), nil
}

func (a *Allocator) rangeFrom(start uint64, size addr.SizeClass, count uint64) addr.Range {
	va := addr.NewVirtAddrExtend(start)
	page, ok := addr.PageFromStartAddress(va, size)
	if !ok {
		panic("vmm: allocator returned a misaligned start address")
	}
	return addr.NewRange(page, count)
}

// FreePages returns r's page range to the free set, coalescing with
// neighboring free ranges.
func (a *Allocator) FreePages(r addr.Range) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free.Insert(memrange.NewRange(uint64(r.Start.Start), uint64(r.At(r.Len()-1).End())))
}

// FreeBytes returns the total number of bytes currently available for
// allocation within this window, for diagnostics and tests.
func (a *Allocator) FreeBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free.Sum()
}
