// Package smp implements the application-processor bring-up protocol:
// reserve the identity-mapped trampoline frame, snapshot BSP control
// registers, patch and install the trampoline payload, send
// INIT/SIPI, and run the stack handshake that hands each AP its own
// guarded stack exactly once. Grounded on
// other_examples/6d107c32_usbarmory-tamago__amd64-smp.go.go (InitSMP's
// reg.Write-patch-then-LAPIC.IPI(ICR_DLV_INIT)/IPI(ICR_DLV_SIPI)
// sequence, and procresize's reg.WaitFor handshake loop, generalized
// here into the atomic-swap stack handshake spec.md §4.6 specifies).
package smp

import (
	"errors"
	"unsafe"

	"corekernel/internal/addr"
	"corekernel/internal/volatile"
)

// TrampolinePhysAddr is the fixed 16-bit-reachable physical address
// the AP startup vector must point at (vector = addr>>12).
const TrampolinePhysAddr = 0x8000

// TrampolineSize is the frame size the trampoline occupies.
const TrampolineSize = 4096

// patchOffset is where the four trailing 8-byte patch fields begin:
// page-table root, AP entry address, trampoline base, and the address
// of the shared AP_STACK_TOP slot (spec.md §4.6 step 3).
const patchOffset = TrampolineSize - 32

// Trampoline holds the real-mode-to-long-mode payload blob that gets
// copied into the reserved physical frame before IPI delivery.
type Trampoline struct {
	blob [TrampolineSize]byte
}

// Install copies blob into the trampoline and patches its trailing 32
// bytes with the four fields APs read on entry.
func (t *Trampoline) Install(blob []byte, pageTableRoot addr.PhysAddr, apEntry uintptr, stackTopAddr uintptr) error {
	if len(blob) > patchOffset {
		return errors.New("smp: trampoline payload too large for the reserved frame")
	}
	copy(t.blob[:], blob)

	field := volatile.FromAddr[volatile.ReadWrite, uint64](uintptr(unsafe.Pointer(&t.blob[patchOffset])))
	volatile.Write(field, uint64(pageTableRoot))
	volatile.Write(field.Add(1), uint64(apEntry))
	volatile.Write(field.Add(2), uint64(TrampolinePhysAddr))
	volatile.Write(field.Add(3), uint64(stackTopAddr))
	return nil
}

// Bytes returns the full patched payload, ready to be copied into the
// reserved physical frame (on real hardware, through the direct map;
// in this simulation, pmm/paging never materialize frame contents, so
// callers needing the bytes for inspection use this directly).
func (t *Trampoline) Bytes() []byte { return t.blob[:] }
