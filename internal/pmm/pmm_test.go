package pmm

import (
	"testing"

	"corekernel/internal/addr"
	"corekernel/internal/memrange"
)

func TestAllocReturnsAlignedFrameAndRemovesIt(t *testing.T) {
	a := New([]memrange.Range{memrange.NewRange(0, 0xF_FFFF)}) // 1 MiB
	f, err := a.Alloc(addr.Size4KiB)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if !f.Start.IsAligned(addr.Size4KiB.Alignment()) {
		t.Fatalf("frame start %v not 4KiB aligned", f.Start)
	}
}

func TestAllocNeverOverlapsOutstandingFrames(t *testing.T) {
	a := New([]memrange.Range{memrange.NewRange(0, 0x1FFF)}) // exactly 2 pages
	f1, err := a.Alloc(addr.Size4KiB)
	if err != nil {
		t.Fatalf("first Alloc failed: %v", err)
	}
	f2, err := a.Alloc(addr.Size4KiB)
	if err != nil {
		t.Fatalf("second Alloc failed: %v", err)
	}
	if f1.Start == f2.Start {
		t.Fatal("two outstanding frames must not overlap")
	}
	if _, err := a.Alloc(addr.Size4KiB); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory on a fully exhausted set, got %v", err)
	}
}

func TestFreeCoalescesWithNeighbors(t *testing.T) {
	a := New([]memrange.Range{memrange.NewRange(0, 0x1FFF)})
	f1, _ := a.Alloc(addr.Size4KiB)
	f2, _ := a.Alloc(addr.Size4KiB)
	if a.FreeBytes() != 0 {
		t.Fatalf("FreeBytes() = %d, want 0 after exhausting the set", a.FreeBytes())
	}
	a.Free(f1)
	a.Free(f2)
	if a.FreeBytes() != 0x2000 {
		t.Fatalf("FreeBytes() = %d, want 0x2000 after freeing both frames", a.FreeBytes())
	}
	// The freed frames are allocatable again.
	if _, err := a.Alloc(addr.Size4KiB); err != nil {
		t.Fatalf("Alloc after Free failed: %v", err)
	}
}

func TestAllocOutOfMemoryWhenSetEmpty(t *testing.T) {
	a := New(nil)
	if _, err := a.Alloc(addr.Size4KiB); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory on an empty allocator, got %v", err)
	}
}

func TestAllocRequestRestrictsToWithinSet(t *testing.T) {
	a := New([]memrange.Range{memrange.NewRange(0, 0xFFFFF)})
	within := memrange.NewSet()
	within.Insert(memrange.NewRange(0x1000, 0x1FFF))

	f, err := a.AllocRequest(addr.Size4KiB, within)
	if err != nil {
		t.Fatalf("AllocRequest failed: %v", err)
	}
	if uint64(f.Start) < 0x1000 || uint64(f.End()) > 0x1FFF {
		t.Fatalf("frame %v not within the requested [0x1000,0x1FFF] window", f)
	}
}
