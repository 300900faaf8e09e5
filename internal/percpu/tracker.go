package percpu

import (
	"sync/atomic"

	"corekernel/internal/smp"
)

var jumpedCores atomic.Int64
var readyCores atomic.Int64

// JumpedCores returns the number of APs that have released the
// trampoline stack handoff during the most recent bring-up (spec.md
// §4.7's jumped_cores).
func JumpedCores() int64 { return jumpedCores.Load() }

// ReadyCores returns the number of APs that have finished local init
// (spec.md §4.7's ready_cores).
func ReadyCores() int64 { return readyCores.Load() }

// ResetCounters zeroes both counters, for reuse across bring-up runs
// in tests.
func ResetCounters() {
	jumpedCores.Store(0)
	readyCores.Store(0)
}

// Tracker implements internal/smp.CoreInit: as each AP restores its
// registers it calls InitCore, which installs that core's CoreLocals
// record and advances the package-level jumped/ready counters spec.md
// §4.7 names. This sits one layer above internal/smp's own internal
// handshake counters, which exist purely to pace BringUp's spin loop;
// Tracker's counters are the ones the rest of the kernel (diagnostics,
// a future "wait for N cores" syscall) is meant to observe.
type Tracker struct {
	// ApicIDFor resolves an AP's APIC ID from its bring-up index; nil
	// leaves ApicID zero, fine for hosted simulation.
	ApicIDFor func(coreID int) uint32
	// RunQueueCap sizes every installed core's run queue; <=0 defaults
	// to 64 (see Init).
	RunQueueCap int
}

func (t *Tracker) InitCore(coreID int) {
	jumpedCores.Add(1)
	var apicID uint32
	if t.ApicIDFor != nil {
		apicID = t.ApicIDFor(coreID)
	}
	Init(coreID, apicID, t.RunQueueCap)
	readyCores.Add(1)
}

var _ smp.CoreInit = (*Tracker)(nil)
