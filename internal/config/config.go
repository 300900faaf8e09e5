// Package config centralizes the build-time options spec.md §6 lists:
// the AP trampoline physical address, the per-AP kernel stack page
// count, the external heap's slab threshold, and the scheduler's
// preemption quantum. The teacher resolves every boot-time address or
// size through getLinkerSymbol("_symbol_name") (memory.go) rather than
// inlining a magic constant at each call site; this package is that
// same indirection generalized into named, typed accessors instead of
// one linker-symbol lookup per call.
package config

// Config holds every build-time knob named in spec.md §6. Defaults
// match the spec's stated values exactly.
type Config struct {
	// APTrampolinePAddr is the fixed physical address the 16-bit AP
	// startup vector must point at (spec.md §4.6/§6).
	APTrampolinePAddr uint64 `yaml:"ap_trampoline_paddr"`

	// KernelStackPagesPerAP is the guarded stack size, in 4 KiB pages,
	// given to each application processor during bring-up (§4.6 step 5).
	KernelStackPagesPerAP uint64 `yaml:"kernel_stack_pages_per_ap"`

	// SlabThresholdBytes is the allocation-size cutoff the external
	// slab+buddy heap (out of this core's scope, §1) uses to route a
	// request to its slab versus buddy path. Carried here because §6
	// lists it as a build-time option of the core even though the heap
	// itself is an external collaborator.
	SlabThresholdBytes uint64 `yaml:"slab_threshold_bytes"`

	// SchedulerQuantumUs is the LAPIC-timer-tick preemption quantum in
	// microseconds (§4.8's "implementation choice").
	SchedulerQuantumUs uint64 `yaml:"scheduler_quantum_us"`
}

// Default returns the spec's stated defaults: trampoline at 0x8000, 64
// stack pages per AP, a 512-byte slab threshold, and a 10ms quantum
// (the implementation's chosen value for the quantum, which §6 leaves
// open).
func Default() Config {
	return Config{
		APTrampolinePAddr:     0x8000,
		KernelStackPagesPerAP: 64,
		SlabThresholdBytes:    512,
		SchedulerQuantumUs:    10_000,
	}
}

// current is the process-wide active configuration, installed once at
// boot (or left at Default() for anything that never calls Install).
var current = Default()

// Active returns the currently installed configuration.
func Active() Config { return current }

// Install replaces the active configuration; called once during boot
// after resolving build-time overrides, mirroring the one-shot
// resolution the teacher's getLinkerSymbol calls perform at each
// *_init function's entry.
func Install(c Config) { current = c }
