// Package volatile wraps MMIO and page-table-entry memory accesses
// behind a typed pointer whose read/write rights are checked at
// compile time. It generalizes the teacher's readMemory32/writeMemory32
// family (memory.go) and asm.MmioRead/asm.MmioWrite call sites
// (gic_qemu.go) into a single generic handle, implementing the sealed
// NoAccess-marker contract that spec.md §9 calls the "intended"
// volatile-pointer design (resolving the coexistence of an older,
// unsealed API that this module does not reproduce).
package volatile

import "unsafe"

// access is a sealed marker interface: only the four types below may
// implement it, so a type parameter constrained to Access can never be
// satisfied by a caller-defined type.
type access interface {
	sealedAccess()
}

// NoAccess grants neither read nor write.
type NoAccess struct{}

// ReadOnly grants read but not write.
type ReadOnly struct{}

// WriteOnly grants write but not read.
type WriteOnly struct{}

// ReadWrite grants both read and write.
type ReadWrite struct{}

func (NoAccess) sealedAccess()  {}
func (ReadOnly) sealedAccess()  {}
func (WriteOnly) sealedAccess() {}
func (ReadWrite) sealedAccess() {}

// readable is implemented only by access markers that permit Read.
type readable interface {
	access
	canRead()
}

func (ReadOnly) canRead()  {}
func (ReadWrite) canRead() {}

// writable is implemented only by access markers that permit Write.
type writable interface {
	access
	canWrite()
}

func (WriteOnly) canWrite() {}
func (ReadWrite) canWrite() {}

// Volatile wraps a non-null pointer to T, gated by access rights chosen
// at the type level via Access.
type Volatile[Access access, T any] struct {
	ptr *T
}

// New wraps ptr, which must be non-nil.
func New[Access access, T any](ptr *T) Volatile[Access, T] {
	if ptr == nil {
		panic("volatile: nil pointer")
	}
	return Volatile[Access, T]{ptr: ptr}
}

// FromAddr wraps the raw address addr as a pointer to T. Used at MMIO
// register and page-table-entry sites where the address comes from a
// linker symbol or a PTE physical-to-virtual translation rather than a
// Go-allocated value.
func FromAddr[Access access, T any](addr uintptr) Volatile[Access, T] {
	if addr == 0 {
		panic("volatile: nil address")
	}
	return Volatile[Access, T]{ptr: (*T)(unsafe.Pointer(addr))}
}

// Addr returns the wrapped pointer's address.
func (v Volatile[Access, T]) Addr() uintptr {
	return uintptr(unsafe.Pointer(v.ptr))
}

// Add returns a handle to the T located count*sizeof(T) bytes after v.
func (v Volatile[Access, T]) Add(count uintptr) Volatile[Access, T] {
	return Volatile[Access, T]{ptr: (*T)(unsafe.Add(unsafe.Pointer(v.ptr), count*unsafe.Sizeof(*v.ptr)))}
}

// ByteAdd returns a handle to the T located offset bytes after v.
func (v Volatile[Access, T]) ByteAdd(offset uintptr) Volatile[Access, T] {
	return Volatile[Access, T]{ptr: (*T)(unsafe.Add(unsafe.Pointer(v.ptr), offset))}
}

// Cast reinterprets v's pointee as type U at the same address.
func Cast[Access access, T, U any](v Volatile[Access, T]) Volatile[Access, U] {
	return Volatile[Access, U]{ptr: (*U)(unsafe.Pointer(v.ptr))}
}

// CoerceReadOnly downgrades any handle to read-only.
func CoerceReadOnly[Access access, T any](v Volatile[Access, T]) Volatile[ReadOnly, T] {
	return Volatile[ReadOnly, T]{ptr: v.ptr}
}

// CoerceWriteOnly downgrades any handle to write-only.
func CoerceWriteOnly[Access access, T any](v Volatile[Access, T]) Volatile[WriteOnly, T] {
	return Volatile[WriteOnly, T]{ptr: v.ptr}
}

// CoerceNoAccess strips all rights, e.g. to hold a typed address without
// permitting dereference until a probe re-grants access.
func CoerceNoAccess[Access access, T any](v Volatile[Access, T]) Volatile[NoAccess, T] {
	return Volatile[NoAccess, T]{ptr: v.ptr}
}

// Read performs a volatile load. Only callable when Access is ReadOnly
// or ReadWrite; attempting it on a WriteOnly/NoAccess handle is a
// compile-time error because Read's Access type parameter is
// constrained by the readable interface.
func Read[Access readable, T any](v Volatile[Access, T]) T {
	return *(*T)(unsafe.Pointer(v.ptr))
}

// Write performs a volatile store. Only callable when Access is
// WriteOnly or ReadWrite.
func Write[Access writable, T any](v Volatile[Access, T], val T) {
	*(*T)(unsafe.Pointer(v.ptr)) = val
}
