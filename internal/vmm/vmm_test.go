package vmm

import (
	"testing"

	"corekernel/internal/addr"
	"corekernel/internal/memrange"
)

func userWindow() memrange.Range {
	return memrange.NewRange(0, 0x0000_7FFF_FFFF_FFFF)
}

func TestAllocatePagesReturnsContiguousRange(t *testing.T) {
	a := New(userWindow(), nil)
	r, err := a.AllocatePages(addr.Size4KiB, 4)
	if err != nil {
		t.Fatalf("AllocatePages failed: %v", err)
	}
	if r.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", r.Len())
	}
	if !r.Start.Start.IsAligned(addr.Size4KiB.Alignment()) {
		t.Fatalf("start %v not 4KiB aligned", r.Start.Start)
	}
}

func TestAllocateSpecificReservesExactPage(t *testing.T) {
	a := New(userWindow(), nil)
	page, ok := addr.PageFromStartAddress(addr.NewVirtAddrExtend(0x10_0000), addr.Size4KiB)
	if !ok {
		t.Fatal("test setup: page not aligned")
	}
	if err := a.AllocateSpecific(page); err != nil {
		t.Fatalf("AllocateSpecific failed: %v", err)
	}
	if err := a.AllocateSpecific(page); err != ErrAlreadyUsed {
		t.Fatalf("expected ErrAlreadyUsed on double-reservation, got %v", err)
	}
}

func TestAllocateGuardedLeavesGapBeforeUsableRange(t *testing.T) {
	a := New(userWindow(), nil)
	r, err := a.AllocateGuarded(addr.Size4KiB, 4)
	if err != nil {
		t.Fatalf("AllocateGuarded failed: %v", err)
	}
	guardPage := addr.PageContaining(r.Start.Start.Sub(1), addr.Size4KiB)
	if guardPage.End() >= r.Start.Start {
		t.Fatalf("guard page %v overlaps usable range starting at %v", guardPage, r.Start.Start)
	}
	// The guard page is consumed by the reservation (so no other
	// request can claim it and be handed a mappable page there) but is
	// never part of the usable range returned to the caller.
	if err := a.AllocateSpecific(guardPage); err != ErrAlreadyUsed {
		t.Fatalf("expected guard page to be reserved and unavailable, got %v", err)
	}
}

func TestFreePagesReturnsRangeForReuse(t *testing.T) {
	a := New(userWindow(), nil)
	before := a.FreeBytes()
	r, err := a.AllocatePages(addr.Size4KiB, 8)
	if err != nil {
		t.Fatalf("AllocatePages failed: %v", err)
	}
	if a.FreeBytes() != before-8*addr.Size4KiB.Bytes() {
		t.Fatalf("FreeBytes() after alloc = %d, want %d", a.FreeBytes(), before-8*addr.Size4KiB.Bytes())
	}
	a.FreePages(r)
	if a.FreeBytes() != before {
		t.Fatalf("FreeBytes() after free = %d, want %d", a.FreeBytes(), before)
	}
}

func TestNewExcludesUsedRegions(t *testing.T) {
	used := memrange.NewRange(0, 0xFFF) // first page already mapped
	a := New(userWindow(), []memrange.Range{used})
	page, _ := addr.PageFromStartAddress(addr.NewVirtAddrExtend(0), addr.Size4KiB)
	if err := a.AllocateSpecific(page); err != ErrAlreadyUsed {
		t.Fatalf("expected page 0 to already be excluded from the free set, got %v", err)
	}
}
