package paging

import (
	"corekernel/internal/addr"
	"corekernel/internal/klock"
	"corekernel/internal/memrange"
	"corekernel/internal/pmm"
	"corekernel/internal/vmm"
)

// UserHalfWindow is the canonical lower half of the address space
// available to AllocateSpecific/AllocatePages for user mappings.
var UserHalfWindow = memrange.NewRange(0, 0x0000_7FFF_FFFF_FFFF)

// AddressSpace owns a page table, a private user-half virtual
// allocator, a shared reference to the kernel-half allocator, and a
// PCID tag. Grounded on Vm_t's pairing of a Pmap_t with a Vmregion_t
// under one mutex (other_examples/8ba31cb4_..._biscuit-src-vm-as.go.go);
// Lock_pmap/Unlock_pmap becomes an ordinary klock.Ticket held around
// every mutating or reading operation below.
type AddressSpace struct {
	mu         *klock.Ticket
	PageTable  *PageTable
	UserHalf   *vmm.Allocator
	KernelHalf *vmm.Allocator
	frames     *pmm.Allocator
	PCID       uint16
}

// NewAddressSpace allocates a fresh page table and user-half allocator
// for a new address space. kernelHalf is shared by reference across
// every AddressSpace so kernel mappings are instantly visible
// everywhere (spec.md §4.5's "Kernel-half PDEs are shared by reference").
func NewAddressSpace(frames *pmm.Allocator, mem *PhysMem, kernelHalf *vmm.Allocator, pcid uint16) (*AddressSpace, error) {
	pt, err := NewPageTable(frames, mem)
	if err != nil {
		return nil, err
	}
	return &AddressSpace{
		mu:         klock.NewTicket(nil),
		PageTable:  pt,
		UserHalf:   vmm.New(UserHalfWindow, nil),
		KernelHalf: kernelHalf,
		frames:     frames,
		PCID:       pcid,
	}, nil
}

// AllocMap allocates a page range of count pages of size, allocates
// backing frames for every page, and maps them all with flags in one
// transaction; on any failure it rolls back every partial mapping and
// frame it already made and returns the error.
func (as *AddressSpace) AllocMap(size addr.SizeClass, count uint64, flags PTEFlags) (addr.Range, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	pages, err := as.UserHalf.AllocatePages(size, count)
	if err != nil {
		return addr.Range{}, err
	}

	mapped := make([]addr.Page, 0, count)
	var failure error
	pages.ForEach(func(p addr.Page) bool {
		f, ferr := as.frames.Alloc(size)
		if ferr != nil {
			failure = ferr
			return false
		}
		if _, merr := as.PageTable.Map(p, f, flags); merr != nil {
			as.frames.Free(f)
			failure = merr
			return false
		}
		mapped = append(mapped, p)
		return true
	})

	if failure != nil {
		for _, p := range mapped {
			if f, _, uerr := as.PageTable.Unmap(p); uerr == nil {
				as.frames.Free(f)
			}
		}
		as.UserHalf.FreePages(pages)
		return addr.Range{}, failure
	}
	return pages, nil
}

// UnmapFree unmaps every page in r, frees every backing frame, and
// returns the virtual range to the user-half allocator.
func (as *AddressSpace) UnmapFree(r addr.Range) {
	as.mu.Lock()
	defer as.mu.Unlock()
	r.ForEach(func(p addr.Page) bool {
		if f, _, err := as.PageTable.Unmap(p); err == nil {
			as.frames.Free(f)
		}
		return true
	})
	as.UserHalf.FreePages(r)
}

// IsAddrOwned reports whether every 4 KiB page covering [start,end]
// is present and user-accessible in this address space, the check
// used at syscall boundaries to validate a pointer passed from user
// mode before it is ever dereferenced. Grounded on
// Userdmap8_inner/Vmregion.Lookup's "does this address have a valid
// mapping" check.
func (as *AddressSpace) IsAddrOwned(start, end addr.VirtAddr) bool {
	return as.isAddrOwned(start, end, 0)
}

// IsAddrOwnedWritable is IsAddrOwned plus a check that every covered
// page also carries FlagWritable — the stronger probe a syscall must
// run before the kernel writes into a user-supplied buffer (§4.9's
// Read, which fills buf on the kernel's behalf).
func (as *AddressSpace) IsAddrOwnedWritable(start, end addr.VirtAddr) bool {
	return as.isAddrOwned(start, end, FlagWritable)
}

func (as *AddressSpace) isAddrOwned(start, end addr.VirtAddr, require PTEFlags) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	if uint64(end) < uint64(start) {
		return false
	}
	p := addr.PageContaining(start, addr.Size4KiB)
	last := addr.PageContaining(end, addr.Size4KiB)
	for {
		flags, ok := as.PageTable.Flags(p.Start)
		if !ok || flags&FlagPresent == 0 || flags&FlagUserAccessible == 0 || flags&require != require {
			return false
		}
		if p.Start == last.Start {
			return true
		}
		p = p.Next()
	}
}

// WithPageTable grants scoped access to the underlying PageTable for
// low-level operations that don't fit the AllocMap/UnmapFree shape.
func (as *AddressSpace) WithPageTable(f func(*PageTable)) {
	as.mu.Lock()
	defer as.mu.Unlock()
	f(as.PageTable)
}
