package percpu

import "corekernel/internal/volatile"

// Standard x86-64 local-APIC register offsets from its base (either
// the legacy MMIO window or, on this module's hosted backend, a plain
// Go buffer standing in for it the same way internal/paging.PhysMem
// stands in for the direct map).
const (
	apicIDOffset  = 0x020
	eoiOffset     = 0x0B0
	icrLowOffset  = 0x300
	icrHighOffset = 0x310
)

// ICR delivery-mode and trigger bits (Intel SDM vol.3 §10.6).
const (
	icrDeliveryInit    uint32 = 5 << 8
	icrDeliveryStartup uint32 = 6 << 8
	icrLevelAssert     uint32 = 1 << 14
	icrTriggerLevel    uint32 = 1 << 15
)

// LAPIC is a minimal local-APIC register handle: enough to identify
// the owning core and deliver INIT/SIPI IPIs during AP bring-up.
// Grounded on src/mazboot/golang/main/gic_qemu.go's
// GICD_BASE/GICC_BASE-plus-offset, mmio_write-per-register style,
// carried over from ARM's GIC distributor/CPU-interface registers to
// x86-64's local APIC ICR pair. The SendInit/SendSIPI method shapes
// generalize other_examples/6d107c32_usbarmory-tamago__amd64-smp.go.go's
// cpu.LAPIC.IPI(dest, vector, flags) call into
// internal/smp.IPISender's two named phases.
type LAPIC struct {
	base uintptr
}

// NewLAPIC wraps a LAPIC register base address.
func NewLAPIC(base uintptr) *LAPIC { return &LAPIC{base: base} }

func (l *LAPIC) writeReg(offset uintptr, val uint32) {
	v := volatile.FromAddr[volatile.WriteOnly, uint32](l.base + offset)
	volatile.Write(v, val)
}

func (l *LAPIC) readReg(offset uintptr) uint32 {
	v := volatile.FromAddr[volatile.ReadOnly, uint32](l.base + offset)
	return volatile.Read(v)
}

// ID returns this LAPIC's own APIC ID.
func (l *LAPIC) ID() uint32 { return l.readReg(apicIDOffset) >> 24 }

// EOI signals end-of-interrupt to the local APIC.
func (l *LAPIC) EOI() { l.writeReg(eoiOffset, 0) }

// SendInit issues an INIT IPI addressed to core's APIC ID, satisfying
// internal/smp.IPISender.
func (l *LAPIC) SendInit(core int) {
	l.writeReg(icrHighOffset, uint32(core)<<24)
	l.writeReg(icrLowOffset, icrDeliveryInit|icrLevelAssert|icrTriggerLevel)
}

// SendSIPI issues a Startup IPI carrying vector (trampoline_phys>>12)
// to core's APIC ID, satisfying internal/smp.IPISender.
func (l *LAPIC) SendSIPI(core int, vector uint8) {
	l.writeReg(icrHighOffset, uint32(core)<<24)
	l.writeReg(icrLowOffset, icrDeliveryStartup|uint32(vector))
}
