package kpanic

import (
	"sync"
	"testing"
)

type fakeNMI struct {
	mu        sync.Mutex
	broadcast []int
}

func (f *fakeNMI) BroadcastNMI(exceptCore int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, exceptCore)
}

func TestPanicBroadcastsNMIOnceAndHalts(t *testing.T) {
	halted.Store(false)
	haltOnce = sync.Once{}

	fake := &fakeNMI{}
	Install(fake)

	var calls int
	restore := SetHaltFnForTest(func() { calls++ })
	defer restore()

	Panic(0, "thread state invariant violated on core %d", 0)
	Panic(1, "second panic from a peer core observing NMI")

	if len(fake.broadcast) != 1 {
		t.Fatalf("expected exactly one NMI broadcast, got %d: %v", len(fake.broadcast), fake.broadcast)
	}
	if fake.broadcast[0] != 0 {
		t.Fatalf("expected the first panicking core (0) to broadcast, got %d", fake.broadcast[0])
	}
	if !Halted() {
		t.Fatalf("expected Halted() to report true after a panic")
	}
	if calls != 2 {
		t.Fatalf("expected haltFn invoked once per Panic call, got %d", calls)
	}
}
