// Package paging implements the 4-level page table hierarchy and the
// per-process AddressSpace built on top of it. Grounded on
// other_examples/8ba31cb4_Oichkatzelesfrettschen-biscuit__biscuit-src-vm-as.go.go
// (Vm_t's Lock_pmap/Unlock_pmap mutex discipline and
// Userdmap8_inner's user-pointer probe, generalized into
// AddressSpace.IsAddrOwned) and
// other_examples/830a50c0_Oichkatzelesfrettschen-biscuit__biscuit-src-mem-dmap.go.go
// (Dmap_init's direct-map-for-reading-page-table-pages-by-physical-address
// technique, which Go cannot express portably via unsafe.Pointer
// arithmetic outside a real freestanding runtime — PhysMem below is
// the software-simulated equivalent: a table keyed by physical
// address standing in for the direct-map window).
package paging

// PTEFlags packs the page table entry flag bits used throughout this
// package. Bit layout is a simplified stand-in for the real x86-64 PTE
// format (spec.md §4.5): flags occupy the low bits alongside the
// architectural NX bit at bit 63, leaving bits 12-51 for the physical
// address.
type PTEFlags uint64

const (
	FlagPresent        PTEFlags = 1 << 0
	FlagWritable       PTEFlags = 1 << 1
	FlagUserAccessible PTEFlags = 1 << 2
	FlagWriteThrough   PTEFlags = 1 << 3 // WT
	FlagNoCache        PTEFlags = 1 << 4 // PCD
	FlagHuge           PTEFlags = 1 << 7 // PS: entry is a leaf at L2/L3, not a pointer to a child table
	FlagNoExecute      PTEFlags = 1 << 63
)

// MMIOSuitable is the flag combination the spec names for mapping
// device memory: present, writable, non-executable, uncached.
const MMIOSuitable = FlagPresent | FlagWritable | FlagNoExecute | FlagNoCache

// ptePhysMask isolates bits 12-51: the 4 KiB-aligned physical address
// a present, non-huge-flagged PTE points at.
const ptePhysMask = 0x000F_FFFF_FFFF_F000
