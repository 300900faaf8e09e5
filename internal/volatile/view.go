package volatile

// View is a ranged generalization of Volatile over a contiguous run of
// N elements, the way the original's hyperdrive::ptrs::view module
// layers a slice-like helper over its volatile pointer. The AP
// trampoline payload patcher (smp package) does not use it; it writes
// its four u64 slots through Volatile.Add and Write.
type View[Access access, T any] struct {
	base  Volatile[Access, T]
	count uintptr
}

// NewView builds a View of count elements starting at base.
func NewView[Access access, T any](base Volatile[Access, T], count uintptr) View[Access, T] {
	return View[Access, T]{base: base, count: count}
}

// Len returns the number of elements in the view.
func (v View[Access, T]) Len() uintptr { return v.count }

// At returns the Volatile handle for element i.
func (v View[Access, T]) At(i uintptr) Volatile[Access, T] {
	if i >= v.count {
		panic("volatile: view index out of bounds")
	}
	return v.base.Add(i)
}

// ReadAt reads element i. Requires a readable Access.
func ReadAt[Access readable, T any](v View[Access, T], i uintptr) T {
	return Read(v.At(i))
}

// WriteAt writes element i. Requires a writable Access.
func WriteAt[Access writable, T any](v View[Access, T], i uintptr, val T) {
	Write(v.At(i), val)
}

// WriteAll writes vals starting at element 0, requiring len(vals) <=
// v.Len().
func WriteAll[Access writable, T any](v View[Access, T], vals []T) {
	if uintptr(len(vals)) > v.Len() {
		panic("volatile: WriteAll values exceed view length")
	}
	for i, val := range vals {
		WriteAt(v, uintptr(i), val)
	}
}
