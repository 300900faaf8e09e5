// Command bringupsim is the hosted CLI that drives internal/smp's
// seven-phase AP bring-up state machine over internal/hostsim's
// errgroup-based simulated cores, rendering progress with
// schollz/progressbar the way tinyrange-cc renders its own VM boot
// progress (internal/cmd/benchmark/main.go's progressbar.Default loop),
// and optionally loading internal/config overrides from a YAML
// manifest the way tinyrange-cc configures its VM boot parameters.
// SPEC_FULL.md §11's domain-stack wiring table names both dependencies
// for this command.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/schollz/progressbar/v3"

	"corekernel/internal/config"
	"corekernel/internal/hostsim"
	"corekernel/internal/memrange"
	"corekernel/internal/paging"
	"corekernel/internal/pmm"
	"corekernel/internal/smp"
	"corekernel/internal/vmm"
)

func main() {
	cores := flag.Int("cores", 4, "total cores to bring up, including the BSP")
	configPath := flag.String("config", "", "optional kernel.yaml overriding build-time defaults")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadYAML(*configPath)
		if err != nil {
			log.Fatalf("bringupsim: loading %s: %v", *configPath, err)
		}
		cfg = loaded
	}
	config.Install(cfg)

	if err := run(*cores, cfg); err != nil {
		log.Fatalf("bringupsim: %v", err)
	}
}

func run(n int, cfg config.Config) error {
	if n < 1 {
		return fmt.Errorf("cores must be >= 1 (the BSP itself), got %d", n)
	}

	frames := pmm.New([]memrange.Range{memrange.NewRange(0, 0x0FFF_FFFF)})
	mem := paging.NewPhysMem()
	pt, err := paging.NewPageTable(frames, mem)
	if err != nil {
		return fmt.Errorf("constructing the bring-up page table: %w", err)
	}

	lowWindow := memrange.NewRange(0, 0xF_FFFF)
	trampolineVMM := vmm.New(lowWindow, nil)
	stackWindow := memrange.NewRange(0xFFFF_8000_0000_0000, 0xFFFF_8000_FFFF_FFFF)
	stackVMM := vmm.New(stackWindow, nil)

	ipi := &hostsim.FakeIPISender{}
	regs := &hostsim.FakeControlRegisters{CR0: 0x8000_0011, CR4: 0x0020, EFER: 0x0500}

	bar := progressbar.Default(int64(n - 1))
	coreInit := &progressCoreInit{bar: bar}

	ctrl := smp.NewController(frames, trampolineVMM, stackVMM, pt, ipi, regs, coreInit)

	fmt.Printf("bringupsim: bringing up %d AP(s), trampoline at %#x, %d stack pages each\n",
		n-1, cfg.APTrampolinePAddr, cfg.KernelStackPagesPerAP)

	start := time.Now()
	blob := []byte{0x90, 0x90, 0x90} // filler payload; no real 16-bit trampoline assembly in a hosted simulation
	if err := hostsim.BringUpAPs(ctrl, n, blob, 0xFFFF_FFFF_8010_0000); err != nil {
		return fmt.Errorf("bring-up failed: %w", err)
	}
	bar.Close()

	fmt.Printf("bringupsim: %d core(s) ready in %s\n", ctrl.ReadyCores(), time.Since(start))
	return nil
}

// progressCoreInit advances the progress bar as each simulated AP
// finishes register restore + per-core init, in place of a real
// internal/percpu.Init call site (this command has no real per-core
// state to install, only the protocol's state machine).
type progressCoreInit struct {
	bar *progressbar.ProgressBar
}

func (p *progressCoreInit) InitCore(coreID int) {
	p.bar.Add(1)
}
