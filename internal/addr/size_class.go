package addr

// SizeClass identifies one of the three mapping granularities the
// paging hierarchy supports.
type SizeClass int

const (
	Size4KiB SizeClass = iota
	Size2MiB
	Size1GiB
)

// Bytes returns the byte size of one unit of the size class.
func (s SizeClass) Bytes() uint64 {
	switch s {
	case Size4KiB:
		return uint64(KiB4)
	case Size2MiB:
		return uint64(MiB2)
	case Size1GiB:
		return uint64(GiB1)
	default:
		panic("addr: invalid size class")
	}
}

// Alignment returns the Alignment matching this size class's natural
// granularity.
func (s SizeClass) Alignment() Alignment {
	switch s {
	case Size4KiB:
		return KiB4
	case Size2MiB:
		return MiB2
	case Size1GiB:
		return GiB1
	default:
		panic("addr: invalid size class")
	}
}

func (s SizeClass) String() string {
	switch s {
	case Size4KiB:
		return "4KiB"
	case Size2MiB:
		return "2MiB"
	case Size1GiB:
		return "1GiB"
	default:
		return "invalid"
	}
}

// Frame owns an aligned physical range of exactly one SizeClass unit.
type Frame struct {
	Size  SizeClass
	Start PhysAddr
}

// FrameFromStartAddress constructs a Frame, succeeding only if addr is
// aligned to size's granularity (spec.md §8: "Frame from_start_address
// succeeds iff x mod S == 0").
func FrameFromStartAddress(addr PhysAddr, size SizeClass) (Frame, bool) {
	if !addr.IsAligned(size.Alignment()) {
		return Frame{}, false
	}
	return Frame{Size: size, Start: addr}, true
}

// FrameContaining returns the frame of the given size class that
// contains addr.
func FrameContaining(addr PhysAddr, size SizeClass) Frame {
	return Frame{Size: size, Start: addr.AlignedDown(size.Alignment())}
}

// End returns the inclusive last byte address covered by the frame.
func (f Frame) End() PhysAddr { return f.Start.Add(f.Size.Bytes() - 1) }

// Next returns the frame immediately following f in address order.
func (f Frame) Next() Frame { return Frame{Size: f.Size, Start: f.Start.Add(f.Size.Bytes())} }

// Prev returns the frame immediately preceding f in address order.
func (f Frame) Prev() Frame { return Frame{Size: f.Size, Start: PhysAddr(uint64(f.Start) - f.Size.Bytes())} }

// Page owns an aligned virtual range of exactly one SizeClass unit: the
// virtual-address counterpart of Frame.
type Page struct {
	Size  SizeClass
	Start VirtAddr
}

// PageFromStartAddress constructs a Page, succeeding only if addr is
// aligned to size's granularity.
func PageFromStartAddress(addr VirtAddr, size SizeClass) (Page, bool) {
	if !addr.IsAligned(size.Alignment()) {
		return Page{}, false
	}
	return Page{Size: size, Start: addr}, true
}

// PageContaining returns the page of the given size class that contains
// addr.
func PageContaining(addr VirtAddr, size SizeClass) Page {
	return Page{Size: size, Start: addr.AlignedDown(size.Alignment())}
}

func (p Page) End() VirtAddr { return p.Start.Add(p.Size.Bytes() - 1) }

func (p Page) Next() Page { return Page{Size: p.Size, Start: p.Start.Add(p.Size.Bytes())} }

func (p Page) Prev() Page { return Page{Size: p.Size, Start: p.Start.Sub(p.Size.Bytes())} }

// Range is an inclusive run of consecutive pages [Start, End], iterable
// forward and backward. Invariant: End >= Start-1 in page units (an
// empty range has Count==0).
type Range struct {
	Start Page
	Count uint64
}

// NewRange builds a Range of count consecutive pages starting at start.
func NewRange(start Page, count uint64) Range {
	return Range{Start: start, Count: count}
}

// Len returns the number of pages in the range.
func (r Range) Len() uint64 { return r.Count }

// ByteLen returns the total byte length covered by the range.
func (r Range) ByteLen() uint64 { return r.Count * r.Start.Size.Bytes() }

// At returns the i'th page in the range (0-indexed).
func (r Range) At(i uint64) Page {
	if i >= r.Count {
		panic("addr: range index out of bounds")
	}
	p := r.Start
	p.Start = p.Start.Add(i * p.Size.Bytes())
	return p
}

// ForEach iterates the range forward, calling fn for each page in
// ascending address order. fn may return false to stop early.
func (r Range) ForEach(fn func(Page) bool) {
	for i := uint64(0); i < r.Count; i++ {
		if !fn(r.At(i)) {
			return
		}
	}
}

// ForEachReverse iterates the range backward, descending address order.
func (r Range) ForEachReverse(fn func(Page) bool) {
	for i := r.Count; i > 0; i-- {
		if !fn(r.At(i - 1)) {
			return
		}
	}
}
