// Package hostsim is the hosted (runs under plain `go test`/`go run`,
// no real hardware) conformance harness SPEC_FULL.md §11 describes.
// The nine core components (§4.1-§4.9) stay pure, freestanding-safe
// Go; this package supplies the seams bare metal would fill with real
// MMU/LAPIC access: golang.org/x/sys/unix-backed guard pages so a
// guard-page write actually SIGSEGVs under go test (spec.md §8
// scenario 5), and golang.org/x/sync/errgroup-driven AP bring-up
// simulation, one goroutine standing in for one physical core,
// grounded on how tinyrange-cc's internal/hv fans out its own per-vCPU
// setup work with the same library.
package hostsim

import (
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"corekernel/internal/smp"
)

// GuardedMapping is a real mmap'd region whose first page is
// PROT_NONE, mirroring the virtual page allocator's guard-page
// semantics (spec.md §4.4) with actual MMU-enforced protection so a
// test can observe the SIGSEGV a stack-overflowing write would
// trigger on bare metal instead of merely asserting on bookkeeping
// state.
type GuardedMapping struct {
	mem       []byte
	pageSize  int
	numPages  int
}

// MapGuarded mmaps (1+stackPages) pages of anonymous memory and
// mprotects the first page PROT_NONE, returning a mapping whose
// Stack() gives the writable region above the guard.
func MapGuarded(stackPages int) (*GuardedMapping, error) {
	pageSize := unix.Getpagesize()
	total := (1 + stackPages) * pageSize

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	if err := unix.Mprotect(mem[:pageSize], unix.PROT_NONE); err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	return &GuardedMapping{mem: mem, pageSize: pageSize, numPages: 1 + stackPages}, nil
}

// GuardPage returns the protected page a write into will fault on.
func (g *GuardedMapping) GuardPage() []byte { return g.mem[:g.pageSize] }

// Stack returns the writable region above the guard page, the region
// a real guarded kernel/user stack allocation backs.
func (g *GuardedMapping) Stack() []byte { return g.mem[g.pageSize:] }

// Unmap releases the mapping.
func (g *GuardedMapping) Unmap() error { return unix.Munmap(g.mem) }

// FakeIPISender records every IPI delivered instead of touching a real
// LAPIC, reusable by cmd/bringupsim and by tests outside internal/smp.
type FakeIPISender struct {
	mu    sync.Mutex
	Inits []int
	SIPIs []int
}

func (f *FakeIPISender) SendInit(core int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inits = append(f.Inits, core)
}

func (f *FakeIPISender) SendSIPI(core int, vector uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SIPIs = append(f.SIPIs, core)
}

// FakeControlRegisters is a hosted stand-in for CR0/CR4/EFER; every
// simulated core shares it since goroutines have no real per-core
// register file.
type FakeControlRegisters struct {
	mu                     sync.Mutex
	CR0, CR4, EFER         uint64
	LoadedCR0, LoadedCR4   []uint64
	LoadedEFER             []uint64
}

func (r *FakeControlRegisters) ReadCR0() uint64  { return r.CR0 }
func (r *FakeControlRegisters) ReadCR4() uint64  { return r.CR4 }
func (r *FakeControlRegisters) ReadEFER() uint64 { return r.EFER }
func (r *FakeControlRegisters) LoadCR0(v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LoadedCR0 = append(r.LoadedCR0, v)
}
func (r *FakeControlRegisters) LoadCR4(v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LoadedCR4 = append(r.LoadedCR4, v)
}
func (r *FakeControlRegisters) LoadEFER(v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LoadedEFER = append(r.LoadedEFER, v)
}

// RecordingCoreInit records which simulated cores completed register
// restore + per-core init.
type RecordingCoreInit struct {
	mu    sync.Mutex
	Cores []int
}

func (c *RecordingCoreInit) InitCore(coreID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Cores = append(c.Cores, coreID)
}

// BringUpAPs drives ctrl.BringUp(n, blob, apEntry, start), where start
// launches one errgroup goroutine per simulated AP running
// ctrl.APEntry(coreID) — the hosted analogue of a real AP free-running
// the trampoline after SIPI delivery. It waits for every launched
// goroutine to finish before returning, so callers observe the fully
// settled post-bring-up state spec.md §8's AP property names.
func BringUpAPs(ctrl *smp.Controller, n int, blob []byte, apEntry uintptr) error {
	var g errgroup.Group
	err := ctrl.BringUp(n, blob, apEntry, func(coreID int) {
		g.Go(func() error {
			ctrl.APEntry(coreID)
			return nil
		})
	})
	if err != nil {
		return err
	}
	return g.Wait()
}
