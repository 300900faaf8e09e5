// Command kernel is the freestanding entry point wiring the boot
// handoff (internal/bootinfo) through physical/virtual memory
// initialization, AP bring-up, and scheduler start — the Go analogue
// of the teacher's src/mazboot/golang/main/kernel.go top-level kmain,
// generalized from one flat package main into calls across this
// module's nine components. Real hardware access (LAPIC ICR delivery,
// CR0/CR4/EFER, the UEFI-supplied BootInfo itself) has no portable Go
// expression outside a real freestanding runtime; those seams are
// named and left to panic with a self-documenting message exactly the
// way the teacher's arch_unsupported.go/platform_unsupported.go stub
// files force a build-time decision instead of silently no-opping.
package main

import (
	"corekernel/internal/bootinfo"
	"corekernel/internal/config"
	"corekernel/internal/klog"
	"corekernel/internal/kpanic"
	"corekernel/internal/ktime"
	"corekernel/internal/memrange"
	"corekernel/internal/paging"
	"corekernel/internal/percpu"
	"corekernel/internal/pmm"
	"corekernel/internal/sched"
	"corekernel/internal/smp"
	"corekernel/internal/vmm"
)

var log = klog.Default.WithTag("kernel")

// unimplementedHardware is the seam every real register/IPI access in
// this command funnels through; bare metal replaces this file's
// construction of Controller with one backed by real LAPIC/CR
// accessors. Mirrors the teacher's compileError_ARCH_NOT_SPECIFIED
// self-documenting panic.
type unimplementedHardware struct{}

func (unimplementedHardware) SendInit(core int)          { panic("kernel: SendInit has no hosted backend; wire a real LAPIC driver") }
func (unimplementedHardware) SendSIPI(core int, v uint8) { panic("kernel: SendSIPI has no hosted backend; wire a real LAPIC driver") }
func (unimplementedHardware) ReadCR0() uint64            { panic("kernel: ReadCR0 has no hosted backend") }
func (unimplementedHardware) ReadCR4() uint64            { panic("kernel: ReadCR4 has no hosted backend") }
func (unimplementedHardware) ReadEFER() uint64           { panic("kernel: ReadEFER has no hosted backend") }
func (unimplementedHardware) LoadCR0(uint64)             { panic("kernel: LoadCR0 has no hosted backend") }
func (unimplementedHardware) LoadCR4(uint64)             { panic("kernel: LoadCR4 has no hosted backend") }
func (unimplementedHardware) LoadEFER(uint64)            { panic("kernel: LoadEFER has no hosted backend") }

// hardwareClock is the ktime.Source seam a real build backs with a
// LAPIC/HPET-derived monotonic counter (ktime's own doc comment names
// this pairing); there is no portable Go expression of that read
// outside a real freestanding runtime, so it panics the same way the
// register seams above do rather than returning a fabricated value.
type hardwareClock struct{}

func (hardwareClock) Now() ktime.Instant {
	panic("kernel: hardwareClock has no hosted backend; wire a real LAPIC/HPET read")
}

// kernelHalfWindow is the upper canonical half every AddressSpace's
// kernel-half allocator shares, excluding the recursive-mapping slot
// (spec.md §4.4).
var kernelHalfWindow = memrange.NewRange(0xFFFF_8000_0000_0000, 0xFFFF_FFFF_FFFF_EFFF)

// lowIdentityWindow is the sub-1 MiB identity-mapped region the AP
// trampoline payload is installed into (spec.md §4.6 step 1's
// TrampolinePhysAddr reservation).
var lowIdentityWindow = memrange.NewRange(0, 0xF_FFFF)

// coreLocalsInit bridges internal/smp.CoreInit to internal/percpu.Init,
// installing each AP's per-core record the moment its register restore
// completes (spec.md §4.6 step 6 feeding §4.7).
type coreLocalsInit struct {
	apicIDs []uint32
}

func (c *coreLocalsInit) InitCore(coreID int) {
	apic := uint32(coreID)
	if coreID < len(c.apicIDs) {
		apic = c.apicIDs[coreID]
	}
	percpu.Init(coreID, apic, 256)
	log.Info("core %d ready (APIC id %d)", coreID, apic)
}

// KernelMain is the entry point the bootloader stub jumps to once long
// mode is enabled and a stack is live, the x86-64 analogue of the
// teacher's KernelMain(r0, r1, atags uint32) called from boot.s. This
// module carries no linker-symbol/assembly stub of its own, so info
// arrives as a constructed *bootinfo.BootInfo rather than a raw
// register/pointer triple; a real bootloader handoff decodes its own
// memory map format into one before calling this.
func KernelMain(info *bootinfo.BootInfo) {
	Boot(info, nil)
}

// Boot wires spec.md §4.3-§4.8 together from a received BootInfo: seed
// the physical frame allocator from the usable memory map, build the
// kernel's own page table and address space, bring up every reported
// AP, and spawn the kernel's idle thread on core 0. It returns once
// the idle thread is spawned; no dispatch loop runs here (see the
// comment at the end of the function). OutOfPhysicalMemory/
// OutOfVirtualAddress during this sequence are fatal, surfaced through
// internal/kpanic rather than returned.
func Boot(info *bootinfo.BootInfo, apTrampolineBlob []byte) {
	log.Info("boot: %d usable region(s), %d core(s) reported", len(info.UsableRegions()), info.CoreCount)

	usable := make([]memrange.Range, 0, len(info.MemoryMap))
	for _, r := range info.UsableRegions() {
		usable = append(usable, memrange.NewRange(uint64(r.Start), uint64(r.End)))
	}
	frames := pmm.New(usable)

	mem := paging.NewPhysMem()
	kernelHalf := vmm.New(kernelHalfWindow, nil)

	kernelAS, err := paging.NewAddressSpace(frames, mem, kernelHalf, 0)
	if err != nil {
		kpanic.Panic(0, "building the kernel address space: %v", err)
		return
	}

	percpu.Init(0, 0, 256)
	sched.InitKernelProcess(kernelAS)

	cfg := config.Active()
	scheduler := sched.NewScheduler(kernelHalf, hardwareClock{})

	if info.CoreCount > 1 {
		bringUpAPs(frames, kernelAS, info.CoreCount, apTrampolineBlob, cfg)
	}

	idle, err := scheduler.SpawnKernel(0, func() {})
	if err != nil {
		kpanic.Panic(0, "spawning the idle thread: %v", err)
		return
	}
	log.Info("idle thread %d spawned on core 0, bring-up complete", idle.ID)

	// The real steady-state loop dispatches, runs, and reschedules
	// threads forever in response to the LAPIC timer and syscall
	// traps; expressing that loop requires the register-frame
	// save/restore this module's simulation deliberately does not
	// model (see internal/sched.Scheduler.Dispatch's doc comment).
}

func bringUpAPs(frames *pmm.Allocator, kernelAS *paging.AddressSpace, coreCount int, blob []byte, cfg config.Config) {
	log.Info("bringing up %d AP(s), trampoline at %#x, %d stack pages each", coreCount-1, cfg.APTrampolinePAddr, cfg.KernelStackPagesPerAP)
	trampolineVMM := vmm.New(lowIdentityWindow, nil)
	ctrl := smp.NewController(frames, trampolineVMM, kernelAS.KernelHalf, kernelAS.PageTable, unimplementedHardware{}, unimplementedHardware{}, &coreLocalsInit{})
	spawn := func(coreID int) {
		// Real hardware needs no Go-side goroutine here: the AP free-runs
		// the trampoline the moment it receives SIPI. This hook exists so
		// a hosted build (internal/hostsim) can substitute a simulated
		// core; a bare-metal build leaves it a no-op.
	}
	if err := ctrl.BringUp(coreCount, blob, apEntryAddr, spawn); err != nil {
		kpanic.Panic(0, "AP bring-up failed: %v", err)
	}
}

// apEntryAddr is the kernel-side AP entry point the trampoline jumps
// to after enabling long mode; a real build patches this to the
// linked address of the assembly stub that calls Controller.APEntry.
const apEntryAddr = 0
