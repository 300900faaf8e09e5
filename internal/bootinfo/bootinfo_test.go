package bootinfo

import (
	"testing"

	"corekernel/internal/addr"
)

func TestUsableRegionsFiltersKind(t *testing.T) {
	b := &BootInfo{
		MemoryMap: []MemoryRegion{
			{Start: 0, End: 0xFFF, Kind: KindUsable},
			{Start: 0x1000, End: 0x1FFF, Kind: KindReserved},
			{Start: 0x2000, End: 0x2FFF, Kind: KindUsable},
		},
	}
	usable := b.UsableRegions()
	if len(usable) != 2 {
		t.Fatalf("expected 2 usable regions, got %d", len(usable))
	}
	if usable[0].Start != 0 || usable[1].Start != addr.PhysAddr(0x2000) {
		t.Fatalf("unexpected usable regions: %+v", usable)
	}
}
