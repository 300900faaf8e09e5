package syscall

// Num is the stable syscall number userspace supplies in the fixed
// ABI register. Values and order match spec.md §4.9's table exactly.
type Num uint64

const (
	Exit Num = iota
	MemoryMap
	MemoryUnmap
	MemoryProtect
	Read
	Write
	Open
	Close
	Sleep
	WaitOnEvent
)

func (n Num) String() string {
	switch n {
	case Exit:
		return "Exit"
	case MemoryMap:
		return "MemoryMap"
	case MemoryUnmap:
		return "MemoryUnmap"
	case MemoryProtect:
		return "MemoryProtect"
	case Read:
		return "Read"
	case Write:
		return "Write"
	case Open:
		return "Open"
	case Close:
		return "Close"
	case Sleep:
		return "Sleep"
	case WaitOnEvent:
		return "WaitOnEvent"
	default:
		return "Unknown"
	}
}

// Protection flags for MemoryMap/MemoryProtect, carried in the flags
// argument word.
const (
	ProtRead    uint64 = 1 << 0
	ProtWrite   uint64 = 1 << 1
	ProtExecute uint64 = 1 << 2
)

// Args is one syscall invocation: the number plus the six argument
// words the ABI passes in fixed registers (§6's "syscall number in a
// fixed register, six argument registers"). Buf stands in for the
// bytes a real kernel would reach by dereferencing a probed user
// pointer; this module has no byte-addressable store backing user
// data frames (internal/paging.PhysMem only tracks page-table pages),
// so Read/Write's caller supplies the buffer directly alongside the
// pointer argument used purely for the probe check — the same kind of
// documented simulation substitute internal/smp's trampoline patch
// makes by operating on a real []byte in place of a physical frame.
type Args struct {
	Num                    Num
	A0, A1, A2, A3, A4, A5 uint64
	Buf                    []byte
}
