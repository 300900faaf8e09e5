// Package sched implements the scheduler spec.md §4.8 describes: a
// single global thread table, one run queue per core, the
// Runnable/Running/Sleeping/Exited state machine, and the
// spawn/yield/sleep/wake/exit operation set. Grounded on
// original_source/beskar-core/src/process.rs for Process/ProcessId/
// SleepHandle/AtomicSleepReason's exact bit layout, and on the
// teacher's src/mazboot/golang/main/goroutine.go for the
// timer-fires-sets-reschedule-flag/yield shape (timerPreempt's
// runtime.Gosched() call becomes this package's Tick/YieldNow pair).
package sched

import (
	"sync/atomic"

	"corekernel/internal/paging"
)

// ProcessID is a monotonic, globally unique process identifier.
// Grounded on beskar-core/src/process.rs's ProcessId(AtomicU64).
type ProcessID uint64

var nextProcessID atomic.Uint64

// NewProcessID allocates the next ProcessID.
func NewProcessID() ProcessID {
	return ProcessID(nextProcessID.Add(1) - 1)
}

// ProcessKind distinguishes the kernel's own singleton process from
// ordinary user processes.
type ProcessKind int

const (
	KindKernel ProcessKind = iota
	KindUser
)

// Process owns a name, a stable PID, an address space (the kernel
// process borrows the shared kernel address space; user processes own
// theirs), and a kind. Grounded on beskar-core/src/process.rs's
// Process struct; Threads hold a strong reference to their Process,
// while a Process retains no reference back to its threads (spec.md
// §9's "Cyclic or back-reference structures" note) — the scheduler's
// run queues are the sole owner of Thread values.
type Process struct {
	ID           ProcessID
	Name         string
	Kind         ProcessKind
	AddressSpace *paging.AddressSpace
}

// NewProcess constructs a process with a fresh PID.
func NewProcess(name string, kind ProcessKind, as *paging.AddressSpace) *Process {
	return &Process{ID: NewProcessID(), Name: name, Kind: kind, AddressSpace: as}
}

var kernelProcess atomic.Pointer[Process]

// InitKernelProcess installs the one kernel process every kernel
// thread (including idle threads) belongs to, borrowing the supplied
// kernel-half address space. Calling it twice panics, matching the
// once-per-boot contract every other static singleton in this module
// follows.
func InitKernelProcess(as *paging.AddressSpace) *Process {
	p := NewProcess("kernel", KindKernel, as)
	if !kernelProcess.CompareAndSwap(nil, p) {
		panic("sched: InitKernelProcess called twice")
	}
	return p
}

// KernelProcess returns the process installed by InitKernelProcess, or
// nil before it has run.
func KernelProcess() *Process { return kernelProcess.Load() }

// resetKernelProcessForTest clears the kernel process singleton so
// tests can call InitKernelProcess again from a clean slate; never
// called outside tests.
func resetKernelProcessForTest() { kernelProcess.Store(nil) }
