// Package kpanic implements the terminal kernel panic path: log the
// message, signal peer cores via NMI, and hang. It does not itself
// disable interrupts on the current core. Not
// used for recoverable errors (those stay Result/Option-shaped Go
// errors, per §7's propagation policy) — only for
// ThreadStateInvariantViolated and the other invariant violations §7
// lists as "always a bug." Grounded on the teacher's
// exceptions.go:handleException (print exception info, PrintTraceback,
// then "System halted" + spin-forever) and traceback.go's
// defer/panic-free PrintTraceback.
package kpanic

import (
	"fmt"
	"sync"
	"sync/atomic"

	"corekernel/internal/klog"
)

// NMISender abstracts delivering a non-maskable interrupt to every
// peer core so they halt too (spec.md §7: "a panicking kernel thread
// raises NMI to peer cores, which then also panic"). Bare metal backs
// this with a LAPIC broadcast NMI; hosted tests back it with a
// recording fake.
type NMISender interface {
	BroadcastNMI(exceptCore int)
}

var (
	sender   atomic.Pointer[NMISender]
	logger   = klog.Default.WithTag("kpanic")
	halted   atomic.Bool
	haltOnce sync.Once
)

// Install registers the NMI backend used by Panic. Call once during
// boot; production wires the real LAPIC, go test wires a fake that
// records which cores it broadcast to instead of actually halting the
// test process.
func Install(s NMISender) {
	sender.Store(&s)
}

// Halted reports whether a kernel panic has already latched the
// system into its halted state; callers (e.g. a hosted test harness)
// poll this instead of actually hanging the test process.
func Halted() bool { return halted.Load() }

// haltFn is what Panic calls once it has logged and broadcast NMI; in
// production this spins forever exactly like the teacher's
// handleException tail ("System halted" + `for {}`). Tests substitute
// a no-op so Panic can be exercised without hanging the test binary.
var haltFn = func() {
	for {
	}
}

// SetHaltFnForTest swaps the spin-forever tail for a test-visible
// no-op; never called outside tests.
func SetHaltFnForTest(fn func()) (restore func()) {
	prev := haltFn
	haltFn = fn
	return func() { haltFn = prev }
}

// Panic is the single entry point every ThreadStateInvariantViolated-
// class bug in this module funnels through. It logs the message and
// core, broadcasts NMI to every other core exactly once system-wide
// (haltOnce — a racing second Panic from a peer core observing the
// NMI must not re-enter this path), then hangs. It never returns.
func Panic(core int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("PANIC on core %d: %s", core, msg)

	haltOnce.Do(func() {
		halted.Store(true)
		if s := sender.Load(); s != nil {
			(*s).BroadcastNMI(core)
		}
	})

	haltFn()
}
