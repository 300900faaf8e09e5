package sched

import (
	"testing"

	"corekernel/internal/addr"
	"corekernel/internal/ktime"
	"corekernel/internal/memrange"
	"corekernel/internal/paging"
	"corekernel/internal/percpu"
	"corekernel/internal/pmm"
	"corekernel/internal/vmm"
)

func resetAll() {
	percpu.ResetForTest()
	resetKernelProcessForTest()
}

func newTestScheduler(t *testing.T) (*Scheduler, *ktime.FakeSource) {
	t.Helper()
	resetAll()

	frames := pmm.New([]memrange.Range{memrange.NewRange(0, 0xFFF_FFFF)})
	mem := paging.NewPhysMem()
	kernelHalf := vmm.New(memrange.NewRange(0xFFFF_8000_0000_0000, 0xFFFF_8000_FFFF_FFFF), nil)

	as, err := paging.NewAddressSpace(frames, mem, kernelHalf, 0)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	InitKernelProcess(as)

	percpu.Init(0, 0, 64)

	clock := ktime.NewFakeSource(0)
	return NewScheduler(kernelHalf, clock), clock
}

func TestSpawnKernelEnqueuesRunnable(t *testing.T) {
	s, _ := newTestScheduler(t)
	th, err := s.SpawnKernel(0, func() {})
	if err != nil {
		t.Fatalf("SpawnKernel: %v", err)
	}
	if th.State() != StateRunnable {
		t.Fatalf("state = %v, want Runnable", th.State())
	}

	got := s.Dispatch(0)
	if got == nil || got.ID != th.ID {
		t.Fatal("Dispatch did not return the spawned thread")
	}
	if got.State() != StateRunning {
		t.Fatalf("state after dispatch = %v, want Running", got.State())
	}
}

func TestDispatchOnEmptyQueueReturnsNil(t *testing.T) {
	s, _ := newTestScheduler(t)
	if s.Dispatch(0) != nil {
		t.Fatal("expected nil from an empty run queue")
	}
}

func TestYieldNowRequeuesRunning(t *testing.T) {
	s, _ := newTestScheduler(t)
	th, _ := s.SpawnKernel(0, func() {})
	s.Dispatch(0)

	s.YieldNow(0, th)
	if th.State() != StateRunnable {
		t.Fatalf("state after yield = %v, want Runnable", th.State())
	}

	again := s.Dispatch(0)
	if again == nil || again.ID != th.ID {
		t.Fatal("expected the yielded thread back from the run queue")
	}
}

func TestSleepForWakesAtDeadline(t *testing.T) {
	s, clock := newTestScheduler(t)
	th, _ := s.SpawnKernel(0, func() {})
	s.Dispatch(0)

	s.SleepFor(0, th, 10*ktime.Millisecond)
	if th.State() != StateSleeping {
		t.Fatalf("state after SleepFor = %v, want Sleeping", th.State())
	}

	s.Tick(0)
	if th.State() != StateSleeping {
		t.Fatal("thread woke before its deadline")
	}

	clock.Advance(10 * ktime.Millisecond)
	s.Tick(0)
	if th.State() != StateRunnable {
		t.Fatalf("state after deadline Tick = %v, want Runnable", th.State())
	}
}

func TestSleepOnAndWakeHandleIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t)
	th, _ := s.SpawnKernel(0, func() {})
	s.Dispatch(0)

	handle := NewSleepHandle()
	s.SleepOn(0, th, handle)
	if kind, h := th.Sleep.Load(); kind != SleepEvent || h != uint64(handle) {
		t.Fatalf("Sleep.Load() = (%v,%v), want (SleepEvent,%d)", kind, h, handle)
	}

	s.WakeHandle(handle)
	if th.State() != StateRunnable {
		t.Fatalf("state after WakeHandle = %v, want Runnable", th.State())
	}

	// Waking again, or waking a never-slept handle, must be a no-op.
	s.WakeHandle(handle)
	if th.State() != StateRunnable {
		t.Fatal("second WakeHandle changed an already-Runnable thread's state")
	}
}

func TestWakeHandleOnRunningThreadIsNoOp(t *testing.T) {
	s, _ := newTestScheduler(t)
	th, _ := s.SpawnKernel(0, func() {})
	s.Dispatch(0)

	s.WakeHandle(SleepHandle(9999))
	if th.State() != StateRunning {
		t.Fatalf("state = %v, want Running (unaffected by unrelated wake)", th.State())
	}
}

func TestRequestRescheduleConsumedOnTick(t *testing.T) {
	s, _ := newTestScheduler(t)
	th, _ := s.SpawnKernel(0, func() {})
	s.Dispatch(0)

	s.RequestReschedule(0)
	s.Tick(0)
	if th.State() != StateRunnable {
		t.Fatalf("state after Tick with reschedule flag set = %v, want Runnable", th.State())
	}

	// The flag is one-shot: a second Tick without a new request must not
	// touch whatever thread now occupies current (nothing is running).
	s.Tick(0)
}

func TestExitCurrentFreesStackAndDropsFromTable(t *testing.T) {
	s, _ := newTestScheduler(t)
	th, _ := s.SpawnKernel(0, func() {})
	s.Dispatch(0)

	before := th.KernelStack
	if before == (addr.Range{}) {
		t.Fatal("expected a non-zero kernel stack range")
	}

	s.ExitCurrent(0, th)
	if th.State() != StateExited {
		t.Fatalf("state after ExitCurrent = %v, want Exited", th.State())
	}
	if _, err := s.Lookup(th.ID); err != ErrNoSuchThread {
		t.Fatalf("Lookup after exit: err = %v, want ErrNoSuchThread", err)
	}
}

func TestSnapshotReflectsRegisteredThreads(t *testing.T) {
	s, _ := newTestScheduler(t)
	a, _ := s.SpawnKernel(0, func() {})
	b, _ := s.SpawnKernel(0, func() {})
	s.Dispatch(0) // a moves to Running

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot returned %d entries, want 2", len(snap))
	}
	seen := map[ThreadID]ThreadSnapshot{}
	for _, entry := range snap {
		seen[entry.ID] = entry
	}
	if seen[a.ID].State != StateRunning {
		t.Fatalf("snapshot state for a = %v, want Running", seen[a.ID].State)
	}
	if seen[b.ID].State != StateRunnable {
		t.Fatalf("snapshot state for b = %v, want Runnable", seen[b.ID].State)
	}
	if seen[a.ID].Process != "kernel" || seen[b.ID].Process != "kernel" {
		t.Fatal("expected both threads to report the kernel process by name")
	}

	s.ExitCurrent(0, a)
	if len(s.Snapshot()) != 1 {
		t.Fatal("expected Snapshot to drop a thread removed by ExitCurrent")
	}
}

// TestAtomicSleepReasonRoundTrip is the spec.md §8 scenario 3 packing
// check: an Until deadline survives pack/unpack with its low 2 bits
// truncated away, and an Event(42) round-trips exactly.
func TestAtomicSleepReasonRoundTrip(t *testing.T) {
	var r AtomicSleepReason

	r.StoreUntil(ktime.FromMicros(0xDEAD_BEEF))
	deadline, ok := r.Deadline()
	if !ok {
		t.Fatal("expected Deadline() ok=true after StoreUntil")
	}
	want := ktime.FromMicros(0xDEAD_BEEF &^ 0b11)
	if deadline != want {
		t.Fatalf("Deadline() = %#x, want %#x", deadline.Micros(), want.Micros())
	}

	r.StoreEvent(42)
	handle, ok := r.Handle()
	if !ok || handle != 42 {
		t.Fatalf("Handle() = (%v,%v), want (42,true)", handle, ok)
	}

	r.StoreNone()
	if kind, _ := r.Load(); kind != SleepNone {
		t.Fatalf("Load() kind = %v, want SleepNone", kind)
	}
}

func TestThreadStateStringCoversEveryState(t *testing.T) {
	for _, s := range []State{StateRunnable, StateRunning, StateSleeping, StateExited} {
		if s.String() == "invalid" {
			t.Fatalf("State(%d).String() = invalid", s)
		}
	}
	if State(99).String() != "invalid" {
		t.Fatal("expected an unknown State to stringify as invalid")
	}
}
