// dispatch.go is the actual numbered-entry-point dispatcher; errno.go
// carries this package's doc comment and error-number space.
package syscall

import (
	"corekernel/internal/addr"
	"corekernel/internal/klog"
	"corekernel/internal/ktime"
	"corekernel/internal/paging"
	"corekernel/internal/sched"
)

var logger = klog.Default.WithTag("syscall")

// IO abstracts the Read/Write/Open/Close handlers that ultimately talk
// to a VFS handle. The core itself has no VFS (explicitly out of
// scope, spec.md §1); production wires a real VFS dispatcher, tests
// and the hosted harness wire internal/syscallio's unix-fd-backed
// implementation.
type IO interface {
	Read(handle uint64, buf []byte, offset uint64) (int64, error)
	Write(handle uint64, buf []byte, offset uint64) (int64, error)
	Open(path string) (uint64, error)
	Close(handle uint64) error
}

// Dispatcher wires syscall dispatch to the scheduler (for Exit/Sleep/
// WaitOnEvent) and an IO backend (for Read/Write/Open/Close).
// MemoryMap/MemoryUnmap/MemoryProtect go straight through the calling
// thread's own AddressSpace, since §4.9 defines them purely in terms
// of the caller's own address space.
type Dispatcher struct {
	Sched *sched.Scheduler
	IO    IO
}

// NewDispatcher constructs a Dispatcher over the given scheduler and
// IO backend.
func NewDispatcher(s *sched.Scheduler, io IO) *Dispatcher {
	return &Dispatcher{Sched: s, IO: io}
}

// Dispatch executes one syscall on behalf of current, running on core.
// It never dereferences a user pointer argument without first probing
// it against current.Process.AddressSpace (spec.md §4.9's "probe"
// contract) — the single choke point every user-pointer-accepting
// syscall in this file routes through.
func (d *Dispatcher) Dispatch(core int, current *sched.Thread, args Args) int64 {
	as := current.Process.AddressSpace

	switch args.Num {
	case Exit:
		d.Sched.ExitCurrent(core, current)
		return int64(args.A0)

	case MemoryMap:
		return d.memoryMap(as, args.A0, args.A1, args.A2)

	case MemoryUnmap:
		return d.memoryUnmap(as, args.A0, args.A1)

	case MemoryProtect:
		return d.memoryProtect(as, args.A0, args.A1, args.A2)

	case Read:
		return d.read(as, args)

	case Write:
		return d.write(as, args)

	case Open:
		return d.open(args)

	case Close:
		if err := d.IO.Close(args.A0); err != nil {
			return int64(EBADF)
		}
		return 0

	case Sleep:
		d.Sched.SleepFor(core, current, ktime.Duration(args.A0)*ktime.Millisecond)
		return 0

	case WaitOnEvent:
		d.Sched.SleepOn(core, current, sched.SleepHandle(args.A0))
		return 0

	default:
		logger.Warn("unrecognized syscall number %d", args.Num)
		return int64(EINVAL)
	}
}

// pageAlign4KiB is the alignment ceiling MemoryMap enforces (spec.md
// §7's InvalidAlignment: "user passed an alignment ... exceeds 4 KiB").
const pageAlign4KiB = uint64(addr.KiB4)

func (d *Dispatcher) memoryMap(as *paging.AddressSpace, length, align, flagsWord uint64) int64 {
	if align == 0 || align&(align-1) != 0 || align > pageAlign4KiB {
		return 0
	}
	if length == 0 {
		return 0
	}
	count := (length + pageAlign4KiB - 1) / pageAlign4KiB

	ptFlags := paging.FlagPresent | paging.FlagUserAccessible
	if flagsWord&ProtWrite != 0 {
		ptFlags |= paging.FlagWritable
	}
	if flagsWord&ProtExecute == 0 {
		ptFlags |= paging.FlagNoExecute
	}

	r, err := as.AllocMap(addr.Size4KiB, count, ptFlags)
	if err != nil {
		logger.Warn("mmap failed: %v", err)
		return 0
	}
	return int64(r.Start.Start.Uint64())
}

func pageRangeFor(ptr, length uint64) (addr.Range, bool) {
	if length == 0 || ptr%pageAlign4KiB != 0 || length%pageAlign4KiB != 0 {
		return addr.Range{}, false
	}
	start, ok := addr.NewVirtAddr(ptr)
	if !ok {
		return addr.Range{}, false
	}
	page, ok := addr.PageFromStartAddress(start, addr.Size4KiB)
	if !ok {
		return addr.Range{}, false
	}
	count := length / pageAlign4KiB
	return addr.NewRange(page, count), true
}

func (d *Dispatcher) memoryUnmap(as *paging.AddressSpace, ptr, length uint64) int64 {
	r, ok := pageRangeFor(ptr, length)
	if !ok {
		return int64(EINVAL)
	}
	if !as.IsAddrOwned(r.Start.Start, r.At(r.Len()-1).End()) {
		return int64(EFAULT)
	}
	as.UnmapFree(r)
	return 0
}

func (d *Dispatcher) memoryProtect(as *paging.AddressSpace, ptr, length, flagsWord uint64) int64 {
	r, ok := pageRangeFor(ptr, length)
	if !ok {
		return int64(EINVAL)
	}
	if !as.IsAddrOwned(r.Start.Start, r.At(r.Len()-1).End()) {
		return int64(EFAULT)
	}

	ptFlags := paging.FlagPresent | paging.FlagUserAccessible
	if flagsWord&ProtWrite != 0 {
		ptFlags |= paging.FlagWritable
	}
	if flagsWord&ProtExecute == 0 {
		ptFlags |= paging.FlagNoExecute
	}

	var failed bool
	as.WithPageTable(func(pt *paging.PageTable) {
		r.ForEach(func(p addr.Page) bool {
			flush, err := pt.UpdateFlags(p, ptFlags)
			if err != nil {
				failed = true
				return false
			}
			flush.Flush()
			return true
		})
	})
	if failed {
		return int64(EFAULT)
	}
	return 0
}

// probeRange reports whether [ptr, ptr+n) lies within a present,
// user-accessible (and, if requireWritable, writable) region of as —
// the single place every Read/Write syscall's pointer validation goes
// through, per spec.md §4.9's "probe" contract: "Kernel must not
// dereference an unprobed user pointer."
func probeRange(as *paging.AddressSpace, ptr, n uint64, requireWritable bool) bool {
	if n == 0 {
		return true
	}
	start, ok := addr.NewVirtAddr(ptr)
	if !ok {
		return false
	}
	end, ok := addr.NewVirtAddr(ptr + n - 1)
	if !ok {
		return false
	}
	if requireWritable {
		return as.IsAddrOwnedWritable(start, end)
	}
	return as.IsAddrOwned(start, end)
}

func (d *Dispatcher) read(as *paging.AddressSpace, args Args) int64 {
	if !probeRange(as, args.A1, args.A2, true) {
		return -1
	}
	n, err := d.IO.Read(args.A0, args.Buf, args.A3)
	if err != nil {
		return -1
	}
	return n
}

func (d *Dispatcher) write(as *paging.AddressSpace, args Args) int64 {
	if !probeRange(as, args.A1, args.A2, false) {
		return -1
	}
	n, err := d.IO.Write(args.A0, args.Buf, args.A3)
	if err != nil {
		return -1
	}
	return n
}

func (d *Dispatcher) open(args Args) int64 {
	h, err := d.IO.Open(string(args.Buf))
	if err != nil {
		return -1
	}
	return int64(h)
}
