package paging

import (
	"sync"

	"corekernel/internal/addr"
)

// Table is one 512-entry page table page (any of L4/L3/L2/L1).
type Table [512]uint64

// PhysMem is the software stand-in for the hardware direct map: a
// lookup from physical frame address to the Table stored there. Real
// freestanding code reads page-table pages through an identity or
// direct-mapped virtual window (dmap.go's Dmaplen); this package
// cannot portably synthesize that mapping outside a real kernel
// runtime, so PhysMem plays the same role as a plain keyed store.
// Every Table this package ever dereferences was allocated through
// PhysMem.Alloc, so the simulation is exact for all operations this
// package performs.
type PhysMem struct {
	mu     sync.Mutex
	tables map[addr.PhysAddr]*Table
}

// NewPhysMem constructs an empty PhysMem.
func NewPhysMem() *PhysMem {
	return &PhysMem{tables: make(map[addr.PhysAddr]*Table)}
}

// Alloc registers frame as backing a freshly zeroed Table and returns
// it.
func (m *PhysMem) Alloc(frame addr.PhysAddr) *Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &Table{}
	m.tables[frame] = t
	return t
}

// Table returns the Table backing frame, or nil if frame was never
// registered via Alloc (a bug: a present PTE pointed at an untracked
// frame).
func (m *PhysMem) Table(frame addr.PhysAddr) *Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[frame]
}

// Free unregisters frame's backing storage.
func (m *PhysMem) Free(frame addr.PhysAddr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, frame)
}
