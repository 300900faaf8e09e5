package paging

import (
	"errors"

	"corekernel/internal/addr"
	"corekernel/internal/pmm"
)

// ErrNotMapped is returned by Unmap, UpdateFlags, and Translate when
// the requested page has no leaf mapping.
var ErrNotMapped = errors.New("paging: page is not mapped")

// CacheFlush is a token returned by every mutating PageTable operation
// so that call sites are forced to consider TLB invalidation (spec.md
// §4.5). This simulation has no hardware TLB to invalidate; Flush is
// the seam a hosted or bare-metal backend would hook to issue invlpg.
type CacheFlush struct {
	Page addr.VirtAddr
}

// Flush invalidates the TLB entry for the page this token covers.
func (c CacheFlush) Flush() {}

func pteAddr(entry uint64) addr.PhysAddr {
	return addr.PhysAddr(entry & ptePhysMask)
}

func makePTE(p addr.PhysAddr, flags PTEFlags) uint64 {
	return uint64(p)&ptePhysMask | uint64(flags)
}

// leafLevel identifies which table level holds the leaf entry for a
// given size class: 1 = L1 (4 KiB), 2 = L2 (2 MiB, huge), 3 = L3 (1
// GiB, huge).
func leafLevel(size addr.SizeClass) int {
	switch size {
	case addr.Size4KiB:
		return 1
	case addr.Size2MiB:
		return 2
	case addr.Size1GiB:
		return 3
	default:
		panic("paging: invalid size class")
	}
}

func sizeForLevel(level int) addr.SizeClass {
	switch level {
	case 1:
		return addr.Size4KiB
	case 2:
		return addr.Size2MiB
	case 3:
		return addr.Size1GiB
	default:
		panic("paging: invalid page table level")
	}
}

// PageTable is a 4-level x86-64-style page table hierarchy, backed by
// a PhysMem direct-map simulation and able to allocate its own
// intermediate tables from a pmm.Allocator.
type PageTable struct {
	root   addr.PhysAddr
	mem    *PhysMem
	frames *pmm.Allocator
}

// NewPageTable allocates a fresh L4 table from frames and returns a
// PageTable rooted at it.
func NewPageTable(frames *pmm.Allocator, mem *PhysMem) (*PageTable, error) {
	f, err := frames.Alloc(addr.Size4KiB)
	if err != nil {
		return nil, err
	}
	mem.Alloc(f.Start)
	return &PageTable{root: f.Start, mem: mem, frames: frames}, nil
}

// Root returns the physical address of the L4 table, for installing
// into CR3 (or this address space's saved CR3 shadow).
func (pt *PageTable) Root() addr.PhysAddr { return pt.root }

// descend returns the child table pointed at by table[index],
// allocating and linking a fresh one if absent and allocMissing is
// set.
func (pt *PageTable) descend(table *Table, index uint64, allocMissing bool) (*Table, error) {
	entry := table[index]
	if entry&uint64(FlagPresent) == 0 {
		if !allocMissing {
			return nil, ErrNotMapped
		}
		f, err := pt.frames.Alloc(addr.Size4KiB)
		if err != nil {
			return nil, err
		}
		child := pt.mem.Alloc(f.Start)
		table[index] = makePTE(f.Start, FlagPresent|FlagWritable|FlagUserAccessible)
		return child, nil
	}
	child := pt.mem.Table(pteAddr(entry))
	if child == nil {
		panic("paging: present PTE references an untracked table frame")
	}
	return child, nil
}

// walkToLeaf descends to the table holding page's leaf entry, stopping
// at L1/L2/L3 according to page.Size, and returns that table plus the
// index of the leaf entry within it.
func (pt *PageTable) walkToLeaf(page addr.Page, allocMissing bool) (*Table, uint64, error) {
	l4 := pt.mem.Table(pt.root)
	l3, err := pt.descend(l4, page.Start.L4Index(), allocMissing)
	if err != nil {
		return nil, 0, err
	}
	if page.Size == addr.Size1GiB {
		return l3, page.Start.L3Index(), nil
	}
	l2, err := pt.descend(l3, page.Start.L3Index(), allocMissing)
	if err != nil {
		return nil, 0, err
	}
	if page.Size == addr.Size2MiB {
		return l2, page.Start.L2Index(), nil
	}
	l1, err := pt.descend(l2, page.Start.L2Index(), allocMissing)
	if err != nil {
		return nil, 0, err
	}
	return l1, page.Start.L1Index(), nil
}

// Map installs a leaf PTE mapping page to frame with flags, allocating
// intermediate tables from the frame allocator if absent. page and
// frame must share the same size class.
func (pt *PageTable) Map(page addr.Page, frame addr.Frame, flags PTEFlags) (CacheFlush, error) {
	if page.Size != frame.Size {
		return CacheFlush{}, errors.New("paging: page/frame size class mismatch")
	}
	table, idx, err := pt.walkToLeaf(page, true)
	if err != nil {
		return CacheFlush{}, err
	}
	eff := flags | FlagPresent
	if page.Size != addr.Size4KiB {
		eff |= FlagHuge
	}
	table[idx] = makePTE(frame.Start, eff)
	return CacheFlush{Page: page.Start}, nil
}

// Unmap clears page's leaf PTE and returns the frame it referenced.
func (pt *PageTable) Unmap(page addr.Page) (addr.Frame, CacheFlush, error) {
	table, idx, err := pt.walkToLeaf(page, false)
	if err != nil {
		return addr.Frame{}, CacheFlush{}, err
	}
	entry := table[idx]
	if entry&uint64(FlagPresent) == 0 {
		return addr.Frame{}, CacheFlush{}, ErrNotMapped
	}
	table[idx] = 0
	frame, ok := addr.FrameFromStartAddress(pteAddr(entry), page.Size)
	if !ok {
		panic("paging: unmapped PTE held a misaligned physical address")
	}
	return frame, CacheFlush{Page: page.Start}, nil
}

// UpdateFlags replaces page's flags without changing its target frame.
func (pt *PageTable) UpdateFlags(page addr.Page, flags PTEFlags) (CacheFlush, error) {
	table, idx, err := pt.walkToLeaf(page, false)
	if err != nil {
		return CacheFlush{}, err
	}
	entry := table[idx]
	if entry&uint64(FlagPresent) == 0 {
		return CacheFlush{}, ErrNotMapped
	}
	eff := flags | FlagPresent
	if page.Size != addr.Size4KiB {
		eff |= FlagHuge
	}
	table[idx] = makePTE(pteAddr(entry), eff)
	return CacheFlush{Page: page.Start}, nil
}

// walkEntry walks from the root to whichever level holds vaddr's leaf
// mapping (stopping early at a huge L3/L2 entry), returning the raw
// entry and the level it was found at (1=L1/4KiB, 2=L2/2MiB,
// 3=L3/1GiB).
func (pt *PageTable) walkEntry(vaddr addr.VirtAddr) (entry uint64, level int, ok bool) {
	l4 := pt.mem.Table(pt.root)
	e4 := l4[vaddr.L4Index()]
	if e4&uint64(FlagPresent) == 0 {
		return 0, 0, false
	}
	l3 := pt.mem.Table(pteAddr(e4))
	e3 := l3[vaddr.L3Index()]
	if e3&uint64(FlagPresent) == 0 {
		return 0, 0, false
	}
	if e3&uint64(FlagHuge) != 0 {
		return e3, 3, true
	}
	l2 := pt.mem.Table(pteAddr(e3))
	e2 := l2[vaddr.L2Index()]
	if e2&uint64(FlagPresent) == 0 {
		return 0, 0, false
	}
	if e2&uint64(FlagHuge) != 0 {
		return e2, 2, true
	}
	l1 := pt.mem.Table(pteAddr(e2))
	e1 := l1[vaddr.L1Index()]
	if e1&uint64(FlagPresent) == 0 {
		return 0, 0, false
	}
	return e1, 1, true
}

// Translate walks the hierarchy and returns vaddr's physical mapping,
// or (0, false) if any level is unmapped.
func (pt *PageTable) Translate(vaddr addr.VirtAddr) (addr.PhysAddr, bool) {
	entry, level, ok := pt.walkEntry(vaddr)
	if !ok {
		return 0, false
	}
	base := pteAddr(entry)
	offset := uint64(vaddr) & (sizeForLevel(level).Bytes() - 1)
	return addr.PhysAddr(uint64(base) + offset), true
}

// Flags returns the flag bits of vaddr's leaf mapping, or (0, false)
// if unmapped. Used by AddressSpace.IsAddrOwned to check permissions
// at syscall boundaries.
func (pt *PageTable) Flags(vaddr addr.VirtAddr) (PTEFlags, bool) {
	entry, _, ok := pt.walkEntry(vaddr)
	if !ok {
		return 0, false
	}
	return PTEFlags(entry &^ ptePhysMask), true
}
