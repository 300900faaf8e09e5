package sched

import (
	"container/heap"
	"errors"
	"sync/atomic"

	"corekernel/internal/addr"
	"corekernel/internal/klock"
	"corekernel/internal/ktime"
	"corekernel/internal/percpu"
	"corekernel/internal/vmm"
)

// kernelStackPages is the guarded kernel stack size every thread gets,
// matching internal/smp's AP stacks (spec.md names no specific size
// for thread stacks; 64 pages keeps every guarded allocation in this
// module uniform).
const kernelStackPages = 64

// ErrNoSuchThread is returned when an operation names a ThreadID the
// scheduler has no record of.
var ErrNoSuchThread = errors.New("sched: no such thread")

// deadlineItem is one entry in the sleepers min-heap, ordered by
// deadline so Tick only ever inspects threads that are actually due.
// Grounded on spec.md §4.8's "scan a priority-ordered structure keyed
// by deadline"; no pack dependency supplies a priority queue, so this
// uses container/heap, the standard idiomatic choice the whole Go
// ecosystem reaches for here (see DESIGN.md).
type deadlineItem struct {
	thread   *Thread
	deadline ktime.Instant
	index    int
}

type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *deadlineHeap) Push(x any) {
	item := x.(*deadlineItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Scheduler owns the global thread table, the deadline-ordered
// sleepers heap, and a handle-keyed map of event sleepers; run queues
// themselves live in each core's internal/percpu.CoreLocals (spec.md
// §4.7's run-queue field), not here.
type Scheduler struct {
	mu       *klock.Ticket
	threads  map[ThreadID]*Thread
	deadline deadlineHeap
	events   map[SleepHandle][]*Thread

	stacks *vmm.Allocator
	clock  ktime.Source

	reschedule [percpu.MaxCores]atomic.Bool
}

// NewScheduler constructs an empty scheduler. stacks backs every
// thread's guarded kernel stack allocation; clock drives Tick's
// deadline scan.
func NewScheduler(stacks *vmm.Allocator, clock ktime.Source) *Scheduler {
	return &Scheduler{
		mu:      klock.NewTicket(nil),
		threads: make(map[ThreadID]*Thread),
		events:  make(map[SleepHandle][]*Thread),
		stacks:  stacks,
		clock:   clock,
	}
}

func (s *Scheduler) enqueue(core int, t *Thread) {
	t.setState(StateRunnable)
	t.HomeCore = core
	if !percpu.IsInitialized(core) {
		panic("sched: enqueue onto an uninitialized core")
	}
	if _, ok := percpu.Current(core).RunQueue.TryPush(uint64(t.ID)); !ok {
		panic("sched: run queue full")
	}
}

// spawnCommon allocates a guarded kernel stack, builds the Thread
// record, registers it in the thread table, and enqueues it Runnable
// on core — the shared tail of spawn_kernel and spawn_user.
func (s *Scheduler) spawnCommon(core int, proc *Process, fn func()) (*Thread, error) {
	stack, err := s.stacks.AllocateGuarded(addr.Size4KiB, kernelStackPages)
	if err != nil {
		return nil, err
	}
	t := &Thread{
		ID:          NewThreadID(),
		Process:     proc,
		KernelStack: stack,
		Fn:          fn,
	}
	t.Sleep.StoreNone()

	s.mu.Lock()
	s.threads[t.ID] = t
	s.mu.Unlock()

	s.enqueue(core, t)
	return t, nil
}

// SpawnKernel allocates a kernel stack, builds a thread belonging to
// the kernel process, and enqueues it Runnable on core.
func (s *Scheduler) SpawnKernel(core int, fn func()) (*Thread, error) {
	return s.spawnCommon(core, KernelProcess(), fn)
}

// SpawnUser allocates a kernel stack (the trap frame a syscall/
// interrupt lands the CPU on), a user stack sized userStackPages
// within proc's address space, and enqueues a thread that on dispatch
// would enter entry at the requested user privilege. The user stack
// allocation itself happens through proc.AddressSpace, guarded the
// same way the kernel stack is.
func (s *Scheduler) SpawnUser(core int, proc *Process, entry uintptr, userStackPages uint64) (*Thread, error) {
	userStack, err := proc.AddressSpace.UserHalf.AllocateGuarded(addr.Size4KiB, userStackPages)
	if err != nil {
		return nil, err
	}
	t, err := s.spawnCommon(core, proc, nil)
	if err != nil {
		proc.AddressSpace.UserHalf.FreePages(userStack)
		return nil, err
	}
	t.UserStack = userStack
	t.HasUserStack = true
	_ = entry // the entry address belongs in the initial register frame a real context switch builds; this simulation has no register file to seed.
	return t, nil
}

// Dispatch pops the next Runnable thread for core, transitions it to
// Running, installs it as the core's current thread, and switches the
// core's active address space if the incoming thread's process
// differs — the context-switch phase of spec.md §4.8, minus the
// register/stack-pointer save/restore a real context switch performs
// (this module has no CPU register file to save). Returns nil if the
// run queue is empty (the core should run its idle thread).
func (s *Scheduler) Dispatch(core int) *Thread {
	cl := percpu.Current(core)
	id, ok := cl.RunQueue.Pop()
	if !ok {
		return nil
	}
	s.mu.Lock()
	t := s.threads[ThreadID(id)]
	s.mu.Unlock()
	if t == nil || !t.compareAndSwapState(StateRunnable, StateRunning) {
		return nil
	}
	cl.CurrentThread.Store(uint64(t.ID))
	if t.Process != nil && t.Process.AddressSpace != nil {
		cl.AddressSpace.Store(t.Process.AddressSpace)
	}
	return t
}

// YieldNow cooperatively yields current: Running → Runnable at the
// tail of its own core's queue.
func (s *Scheduler) YieldNow(core int, current *Thread) {
	if !current.compareAndSwapState(StateRunning, StateRunnable) {
		return
	}
	percpu.Current(core).CurrentThread.Store(0)
	s.enqueue(core, current)
}

// SleepFor computes deadline = now + d, records it, and removes
// current from Running (the caller's dispatch loop must not resume it
// until a later Tick wakes it).
func (s *Scheduler) SleepFor(core int, current *Thread, d ktime.Duration) {
	if !current.compareAndSwapState(StateRunning, StateSleeping) {
		return
	}
	percpu.Current(core).CurrentThread.Store(0)
	deadline := s.clock.Now().Add(d)
	current.Sleep.StoreUntil(deadline)
	current.HomeCore = core

	s.mu.Lock()
	heap.Push(&s.deadline, &deadlineItem{thread: current, deadline: deadline})
	s.mu.Unlock()
}

// SleepOn parks current until handle is woken via WakeHandle.
func (s *Scheduler) SleepOn(core int, current *Thread, handle SleepHandle) {
	if !current.compareAndSwapState(StateRunning, StateSleeping) {
		return
	}
	percpu.Current(core).CurrentThread.Store(0)
	current.Sleep.StoreEvent(handle)
	current.HomeCore = core

	s.mu.Lock()
	s.events[handle] = append(s.events[handle], current)
	s.mu.Unlock()
}

// WakeHandle transitions every thread sleeping on handle back to
// Runnable, enqueuing each on its home core. Waking a thread that is
// already Runnable, Running, or Exited is a no-op — spec.md §4.8's
// idempotence requirement.
func (s *Scheduler) WakeHandle(handle SleepHandle) {
	s.mu.Lock()
	waiters := s.events[handle]
	delete(s.events, handle)
	s.mu.Unlock()

	for _, t := range waiters {
		if t.compareAndSwapState(StateSleeping, StateRunnable) {
			t.Sleep.StoreNone()
			s.enqueue(t.HomeCore, t)
		}
	}
}

// Tick advances the deadline heap against now, waking every Until
// sleeper whose deadline has passed, then consumes core's reschedule
// flag: if a timer ISR set it since the last Tick, the currently
// Running thread on core cooperatively yields, exactly mirroring the
// teacher's timerPreempt's runtime.Gosched() call
// (src/mazboot/golang/main/goroutine.go).
func (s *Scheduler) Tick(core int) {
	now := s.clock.Now()
	for {
		s.mu.Lock()
		if s.deadline.Len() == 0 || now.Before(s.deadline[0].deadline) {
			s.mu.Unlock()
			break
		}
		item := heap.Pop(&s.deadline).(*deadlineItem)
		s.mu.Unlock()
		if item.thread.compareAndSwapState(StateSleeping, StateRunnable) {
			item.thread.Sleep.StoreNone()
			s.enqueue(item.thread.HomeCore, item.thread)
		}
	}

	if s.ConsumeRescheduleFlag(core) {
		cl := percpu.Current(core)
		id := cl.CurrentThread.Load()
		if id != 0 {
			s.mu.Lock()
			current := s.threads[ThreadID(id)]
			s.mu.Unlock()
			if current != nil {
				s.YieldNow(core, current)
			}
		}
	}
}

// RequestReschedule marks core for a cooperative yield at its next
// Tick, the quantum-boundary half of spec.md §4.8's preemption design.
// Grounded on the teacher's timerPreempt setting a per-goroutine flag
// the scheduler loop checks on its next pass.
func (s *Scheduler) RequestReschedule(core int) { s.reschedule[core].Store(true) }

// ConsumeRescheduleFlag reports whether core had a pending reschedule
// request and clears it in the same atomic step.
func (s *Scheduler) ConsumeRescheduleFlag(core int) bool { return s.reschedule[core].Swap(false) }

// ExitCurrent marks current Exited, detaches it from its process, and
// frees its kernel (and, if present, user) stack. Spec.md types this
// "-> !" (never returns); this module has no bottom type and rejects
// panic/Goexit as ordinary control flow (spec.md §9: "Exceptions/
// panics for control flow: none inside the core"), so the convention
// here is that ExitCurrent is the last call a thread's Fn makes before
// returning — callers must not resume execution past it.
func (s *Scheduler) ExitCurrent(core int, current *Thread) {
	current.setState(StateExited)
	percpu.Current(core).CurrentThread.Store(0)
	s.stacks.FreePages(current.KernelStack)
	if current.HasUserStack && current.Process != nil && current.Process.AddressSpace != nil {
		current.Process.AddressSpace.UserHalf.FreePages(current.UserStack)
	}
	s.mu.Lock()
	delete(s.threads, current.ID)
	s.mu.Unlock()
}

// ThreadSnapshot is a point-in-time copy of one thread's schedulable
// metadata, safe to read after Snapshot returns since it shares no
// mutable state with the live Thread.
type ThreadSnapshot struct {
	ID        ThreadID
	ProcessID ProcessID
	Process   string
	State     State
	HomeCore  int
}

// Snapshot returns a point-in-time copy of every thread currently
// registered with the scheduler, supplemented per SPEC_FULL.md §12
// from the original's global process-table enumeration
// (kernel/src/process.rs, surfaced for `ps`-like introspection) and
// grounded on the teacher's schedtrace_monitor.go periodic scheduler
// dump. Intended for diagnostics and tests, never for control flow:
// a thread may change state the instant after it is copied here.
func (s *Scheduler) Snapshot() []ThreadSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ThreadSnapshot, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, ThreadSnapshot{
			ID:        t.ID,
			ProcessID: t.Process.ID,
			Process:   t.Process.Name,
			State:     t.State(),
			HomeCore:  t.HomeCore,
		})
	}
	return out
}

// CurrentProcess returns current's owning process.
func (s *Scheduler) CurrentProcess(current *Thread) *Process { return current.Process }

// CurrentThreadID returns current's ID.
func (s *Scheduler) CurrentThreadID(current *Thread) ThreadID { return current.ID }

// Lookup returns the thread registered under id, or ErrNoSuchThread.
func (s *Scheduler) Lookup(id ThreadID) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNoSuchThread
	}
	return t, nil
}
