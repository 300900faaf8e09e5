// Package percpu implements the per-core record spec.md §4.7
// describes: core identity, descriptor tables, the LAPIC handle,
// scheduler state, and the active address space, addressed by core
// index rather than an implicit locals!() accessor (see Current's
// doc comment for why). Grounded on
// src/mazboot/golang/main/gic_qemu.go's per-core interrupt-controller
// globals (interruptHandlers array, GICD_BASE/GICC_BASE constants),
// generalized from one implicit core to an indexed table of records.
package percpu

import (
	"sync/atomic"

	"corekernel/internal/klock"
	"corekernel/internal/kqueue"
	"corekernel/internal/paging"
)

// MaxCores bounds the static per-core table; spec.md leaves core count
// a boot-time discovery, so this is a generous upper bound rather than
// a tuned constant.
const MaxCores = 256

// IDT is the interrupt descriptor table: 256 gate entries, patched in
// place during init. Rust's UnsafeCell-wrapped IDT needs no Go
// counterpart — ordinary struct fields are already directly mutable
// through a shared pointer here.
type IDT struct {
	Entries [256]uint64
}

// GDT is the global descriptor table the teacher's AP trampoline
// patches and every core's segment registers point at.
type GDT struct {
	Entries [8]uint64
}

// TSS is the task state segment supplying the kernel-mode stack
// pointers the CPU switches to on privilege-level changes and on each
// IST-routed exception.
type TSS struct {
	RSP [3]uint64
	IST [7]uint64
}

// CoreLocals is one core's complete local state. LAPIC is guarded by
// an MCSMaybeUninit because it is installed after the record itself
// exists (the core must be addressable before its LAPIC handle is
// known) — the exact one-shot-after-construction shape
// internal/klock.MCSMaybeUninit was built for.
type CoreLocals struct {
	CoreID int
	ApicID uint32

	IDT *IDT
	GDT *GDT
	TSS *TSS

	LAPIC *klock.MCSMaybeUninit[LAPIC]

	RunQueue      *kqueue.MpmcQueue[uint64]
	CurrentThread atomic.Uint64
	IdleThread    uint64
	AddressSpace  atomic.Pointer[paging.AddressSpace]
}

var table [MaxCores]CoreLocals
var initialized [MaxCores]atomic.Bool

// Init installs coreID's record: descriptor tables, an uninitialized
// LAPIC slot, and a run queue of the given capacity. Calling it twice
// for the same core panics, matching the one-shot bring-up contract
// internal/klock.Once and internal/klock.MCSMaybeUninit also enforce.
func Init(coreID int, apicID uint32, runQueueCap int) *CoreLocals {
	if coreID < 0 || coreID >= MaxCores {
		panic("percpu: core id out of range")
	}
	if !initialized[coreID].CompareAndSwap(false, true) {
		panic("percpu: CoreLocals already initialized for this core")
	}
	if runQueueCap <= 0 {
		runQueueCap = 64
	}
	cl := &table[coreID]
	cl.CoreID = coreID
	cl.ApicID = apicID
	cl.IDT = &IDT{}
	cl.GDT = &GDT{}
	cl.TSS = &TSS{}
	cl.LAPIC = klock.NewMCSMaybeUninit[LAPIC](nil)
	cl.RunQueue = kqueue.NewMpmcQueue[uint64](runQueueCap)
	return cl
}

// Current returns coreID's record. Real freestanding code resolves
// coreID from a CPU-local base (GS base on x86-64) in the
// interrupt/syscall prologue before ever reaching Go-equivalent code;
// this module has no portable per-goroutine analogue to that hardware
// base; every caller here threads coreID explicitly instead of
// through an implicit locals!() accessor, the same kind of documented
// adaptation internal/paging.PhysMem makes for the direct map.
func Current(coreID int) *CoreLocals {
	if coreID < 0 || coreID >= MaxCores {
		panic("percpu: core id out of range")
	}
	return &table[coreID]
}

// IsInitialized reports whether Init has run for coreID.
func IsInitialized(coreID int) bool {
	if coreID < 0 || coreID >= MaxCores {
		return false
	}
	return initialized[coreID].Load()
}

// reset clears every record and initialization flag; test-only.
func reset() {
	for i := range table {
		table[i] = CoreLocals{}
		initialized[i].Store(false)
	}
}

// ResetForTest clears every core record and initialization flag, and
// the jumped/ready counters alongside them. Exported for other
// packages' tests (internal/sched) that need a clean table between
// cases; production code never calls it.
func ResetForTest() {
	reset()
	ResetCounters()
}
