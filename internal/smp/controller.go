package smp

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"corekernel/internal/addr"
	"corekernel/internal/klock"
	"corekernel/internal/memrange"
	"corekernel/internal/paging"
	"corekernel/internal/pmm"
	"corekernel/internal/vmm"
)

// stackPages is the number of 4 KiB pages given to each AP's stack,
// preceded by vmm's own implicit guard page (spec.md §4.6 step 5: "a
// 64-page guarded stack per AP").
const stackPages = 64

// IPISender abstracts LAPIC ICR delivery so the bring-up state machine
// in this package is identical on bare metal and under hosted
// simulation. Grounded on
// other_examples/6d107c32_usbarmory-tamago__amd64-smp.go.go's
// cpu.LAPIC.IPI(i, vector, 1<<ICR_INIT|ICR_DLV_INIT) /
// ...ICR_DLV_SIPI) pair, split into two named calls.
type IPISender interface {
	SendInit(core int)
	SendSIPI(core int, vector uint8)
}

// ControlRegisters abstracts reading and loading CR0/CR4/EFER so the
// snapshot/restore phases (spec.md §4.6 steps 2 and 6) compile and
// test without real hardware register access.
type ControlRegisters interface {
	ReadCR0() uint64
	ReadCR4() uint64
	ReadEFER() uint64
	LoadCR0(uint64)
	LoadCR4(uint64)
	LoadEFER(uint64)
}

// CoreInit is notified once an AP has restored its snapshotted
// registers and is ready to run kernel code, so it can install that
// core's per-CPU locals (internal/percpu) before signaling readiness.
type CoreInit interface {
	InitCore(coreID int)
}

// ErrHandshakeViolated is raised if AP_STACK_TOP is ever found
// non-zero at the moment the BSP tries to publish a new stack,
// meaning two APs raced the same slot (spec.md §4.6's invariant: "at
// most one AP observes any given stack_top").
var ErrHandshakeViolated = errors.New("smp: AP_STACK_TOP handshake observed a non-zero previous value")

// Controller drives the seven-phase AP bring-up protocol described in
// spec.md §4.6: reservation, snapshot, payload install, IPI, stack
// handshake, register restore, and teardown.
type Controller struct {
	frames        *pmm.Allocator
	trampolineVMM *vmm.Allocator
	stackVMM      *vmm.Allocator
	pageTable     *paging.PageTable
	ipi           IPISender
	regs          ControlRegisters
	coreInit      CoreInit

	bspCR0, bspCR4, bspEFER atomic.Uint64
	apStackTop              atomic.Uint64
	jumpedCores             atomic.Int64
	readyCores              atomic.Int64

	trampoline      *Trampoline
	trampolineFrame addr.Frame
	trampolinePage  addr.Page
}

// NewController wires a bring-up controller to the allocators it
// reserves the trampoline/stacks from, the page table it maps the
// trampoline into, and the IPI/register/per-core backends (bare metal
// or hosted simulation).
func NewController(frames *pmm.Allocator, trampolineVMM, stackVMM *vmm.Allocator, pt *paging.PageTable, ipi IPISender, regs ControlRegisters, coreInit CoreInit) *Controller {
	return &Controller{
		frames:        frames,
		trampolineVMM: trampolineVMM,
		stackVMM:      stackVMM,
		pageTable:     pt,
		ipi:           ipi,
		regs:          regs,
		coreInit:      coreInit,
	}
}

// reserve carries out spec.md §4.6 phase 1: reserve the identity frame
// and page at TrampolinePhysAddr, irrevocably for the kernel's
// lifetime until Teardown.
func (c *Controller) reserve() error {
	within := memrange.NewSet()
	within.Insert(memrange.NewRange(TrampolinePhysAddr, TrampolinePhysAddr+TrampolineSize-1))
	frame, err := c.frames.AllocRequest(addr.Size4KiB, within)
	if err != nil {
		return err
	}
	page, ok := addr.PageFromStartAddress(addr.NewVirtAddrExtend(TrampolinePhysAddr), addr.Size4KiB)
	if !ok {
		panic("smp: TrampolinePhysAddr is not 4KiB aligned")
	}
	if err := c.trampolineVMM.AllocateSpecific(page); err != nil {
		c.frames.Free(frame)
		return err
	}
	c.trampolineFrame = frame
	c.trampolinePage = page
	return nil
}

// snapshot carries out phase 2: save the BSP's current CR0/CR4/EFER so
// every AP can restore the identical execution mode on entry.
func (c *Controller) snapshot() {
	c.bspCR0.Store(c.regs.ReadCR0())
	c.bspCR4.Store(c.regs.ReadCR4())
	c.bspEFER.Store(c.regs.ReadEFER())
}

// installPayload carries out phase 3: copy blob into the trampoline
// and patch its trailing 32 bytes with the page-table root, the
// kernel's AP entry point, the trampoline's own base, and the address
// of the shared AP_STACK_TOP slot, then map the frame into the active
// page table so the BSP's own view of physical memory matches what an
// AP will execute.
func (c *Controller) installPayload(blob []byte, apEntry uintptr) error {
	t := &Trampoline{}
	if err := t.Install(blob, c.pageTable.Root(), apEntry, uintptr(unsafe.Pointer(&c.apStackTop))); err != nil {
		return err
	}
	c.trampoline = t
	if _, err := c.pageTable.Map(c.trampolinePage, c.trampolineFrame, paging.FlagWritable); err != nil {
		return err
	}
	return nil
}

// broadcastIPIs carries out phase 4: INIT then SIPI to every AP
// 1..n-1, payload = trampoline_phys>>12.
func (c *Controller) broadcastIPIs(n int) {
	vector := uint8(TrampolinePhysAddr >> 12)
	for i := 1; i < n; i++ {
		c.ipi.SendInit(i)
		c.ipi.SendSIPI(i, vector)
	}
}

// core_jumped records that AP coreID has published arrival, the
// counter the BSP spins on during the stack handshake and the
// assertion surface for "exactly N cores observe ready".
func (c *Controller) core_jumped() { c.jumpedCores.Add(1) }

// JumpedCores returns the number of APs that have published arrival so
// far.
func (c *Controller) JumpedCores() int64 { return c.jumpedCores.Load() }

// ReadyCores returns the number of APs that have completed register
// restore and per-core init.
func (c *Controller) ReadyCores() int64 { return c.readyCores.Load() }

// spawnAP is supplied by the caller to actually cause core i to begin
// executing (a real ap, once it receives SIPI, free-runs the
// trampoline on its own; a hosted simulation instead launches a
// goroutine running APEntry). Kept outside Controller so this package
// stays host/bare-metal agnostic.
type spawnAP func(coreID int)

// BringUp drives every phase of spec.md §4.6 in order for n total
// cores (BSP plus n-1 APs): reserve, snapshot, install the given
// trampoline blob targeting apEntry, broadcast IPIs, then for each
// expected AP allocate a guarded stack and hand it over through the
// atomic AP_STACK_TOP swap-assert-zero handshake, spinning until that
// AP acknowledges arrival via core_jumped. start is invoked once per
// AP, after its stack has been published, to actually set that core
// running. On success, teardown unmaps and frees the trampoline before
// BringUp returns; an error return leaves the reservation in place.
func (c *Controller) BringUp(n int, blob []byte, apEntry uintptr, start spawnAP) error {
	if n < 1 {
		return errors.New("smp: BringUp requires n >= 1")
	}
	if err := c.reserve(); err != nil {
		return err
	}
	c.snapshot()
	if err := c.installPayload(blob, apEntry); err != nil {
		return err
	}
	c.broadcastIPIs(n)

	for i := 1; i < n; i++ {
		stack, err := c.stackVMM.AllocateGuarded(addr.Size4KiB, stackPages)
		if err != nil {
			return err
		}
		stackTop := uint64(stack.At(stack.Len() - 1).End())

		if old := c.apStackTop.Swap(stackTop); old != 0 {
			return ErrHandshakeViolated
		}

		start(i)

		for c.jumpedCores.Load() < int64(i) {
			klock.SpinLoopBackoff()
		}
	}

	return c.teardown()
}

// APEntry is what start(coreID) ultimately runs on the AP's side: pop
// its stack assignment off AP_STACK_TOP, restore the BSP's snapshotted
// control registers, run the supplied per-core init, and publish
// arrival. Real trampoline code performs the stack pop and register
// load in assembly before ever reaching Go; this is the simulated
// equivalent exercised by hostsim and by this package's own tests.
func (c *Controller) APEntry(coreID int) uint64 {
	stackTop := c.apStackTop.Swap(0)
	c.core_jumped()

	c.regs.LoadCR0(c.bspCR0.Load())
	c.regs.LoadCR4(c.bspCR4.Load())
	c.regs.LoadEFER(c.bspEFER.Load())

	if c.coreInit != nil {
		c.coreInit.InitCore(coreID)
	}

	c.readyCores.Add(1)
	return stackTop
}

// teardown carries out phase 7: unmap the trampoline page, free its
// frame, and return the virtual page to the allocator it came from.
func (c *Controller) teardown() error {
	frame, _, err := c.pageTable.Unmap(c.trampolinePage)
	if err != nil {
		return err
	}
	c.frames.Free(frame)
	c.trampolineVMM.FreePages(addr.NewRange(c.trampolinePage, 1))
	return nil
}
