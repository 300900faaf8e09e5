package memrange

import "testing"

func entriesEqual(t *testing.T, got []Range, want []Range) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d ranges %v, want %d ranges %v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

// TestInsertCoalescesAdjacentAndOverlapping is the spec.md §8 scenario
// 1 concrete test: insert [0,99], [200,299], [100,199] in that order
// yields a single coalesced [0,299]; removing [50,250] then leaves
// [0,49] and [251,299].
func TestInsertCoalescesAdjacentAndOverlapping(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(0, 99))
	s.Insert(NewRange(200, 299))
	entriesEqual(t, s.Entries(), []Range{{0, 99}, {200, 299}})

	s.Insert(NewRange(100, 199))
	entriesEqual(t, s.Entries(), []Range{{0, 299}})

	s.Remove(NewRange(50, 250))
	entriesEqual(t, s.Entries(), []Range{{0, 49}, {251, 299}})
}

func TestTryRemoveExactMatch(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(10, 20))
	got, ok := s.TryRemove(NewRange(10, 20))
	if !ok || got != (Range{10, 20}) {
		t.Fatalf("TryRemove = (%v, %v), want ({10 20}, true)", got, ok)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}

func TestTryRemoveSubsetSplitsRange(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(0, 99))
	got, ok := s.TryRemove(NewRange(40, 59))
	if !ok || got != (Range{0, 99}) {
		t.Fatalf("TryRemove = (%v, %v), want ({0 99}, true)", got, ok)
	}
	entriesEqual(t, s.Entries(), []Range{{0, 39}, {60, 99}})
}

func TestTryRemoveNonSubsetFails(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(0, 9))
	s.Insert(NewRange(20, 29))
	if _, ok := s.TryRemove(NewRange(5, 25)); ok {
		t.Fatal("expected TryRemove to fail for a range spanning two entries")
	}
}

func TestAllocateLowestBestFit(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(0, 15))
	s.Insert(NewRange(100, 163))

	addr, ok := s.Allocate(16, 16, DontCare, nil)
	if !ok || addr != 0 {
		t.Fatalf("Allocate = (%d, %v), want (0, true)", addr, ok)
	}
	entriesEqual(t, s.Entries(), []Range{{100, 163}})
}

func TestAllocateRespectsAlignment(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(4, 39))

	addr, ok := s.Allocate(16, 16, DontCare, nil)
	if !ok {
		t.Fatal("expected Allocate to succeed")
	}
	if addr%16 != 0 {
		t.Fatalf("addr %d is not 16-byte aligned", addr)
	}
	if addr != 16 {
		t.Fatalf("addr = %d, want 16 (lowest aligned address in [4,39])", addr)
	}
}

func TestAllocateFailsWhenNothingFits(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(0, 7))
	if _, ok := s.Allocate(16, 1, DontCare, nil); ok {
		t.Fatal("expected Allocate to fail when no range is large enough")
	}
}

func TestAllocateMustBeWithinConstraint(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(0, 1023))

	within := NewSet()
	within.Insert(NewRange(512, 575))

	addr, ok := s.Allocate(16, 16, MustBeWithin, within)
	if !ok {
		t.Fatal("expected constrained Allocate to succeed")
	}
	if addr < 512 || addr+16-1 > 575 {
		t.Fatalf("addr %d not within the required [512,575] window", addr)
	}
}

func TestSumReflectsCoverage(t *testing.T) {
	s := NewSet()
	s.Insert(NewRange(0, 9))  // 10 addresses
	s.Insert(NewRange(20, 29)) // 10 addresses
	if got := s.Sum(); got != 20 {
		t.Fatalf("Sum() = %d, want 20", got)
	}
}
