package tlb

import (
	"testing"

	"github.com/rayshifu/ibm4xxmmu/mmuhw"
	"github.com/rayshifu/ibm4xxmmu/tte"
)

func newTestEngine(n int) (*Engine, *mmuhw.Fake) {
	fake := mmuhw.NewFake(n)
	e := New(fake, n)
	e.FinishBootstrap() // no reserved slots in these tests
	return e, fake
}

func TestInstallThenFlushOne(t *testing.T) {
	e, fake := newTestEngine(8)
	tt := tte.New(0x00200000, tte.SizeIndex16K, tte.ZonePerPTE1, tte.WR)
	slot := e.Install(5, 0x1000, tt)

	hi, lo := fake.ReadSlot(slot)
	if !tte.HiValid(hi) {
		t.Fatalf("installed slot must be valid")
	}
	if tte.TTE(lo).PA() != 0x00200000 {
		t.Fatalf("installed PA mismatch: %#x", tte.TTE(lo).PA())
	}

	if _, ok := fake.Probe(5, tte.HiVPN(hi)); !ok {
		t.Fatalf("expected to find installed entry via probe")
	}

	e.FlushOne(5, tte.HiVPN(hi))
	if _, ok := fake.Probe(5, tte.HiVPN(hi)); ok {
		t.Fatalf("expected entry to be gone after FlushOne")
	}
}

func TestFlushOneZeroCtxIsNoop(t *testing.T) {
	e, _ := newTestEngine(4)
	// Must not panic or probe anything.
	e.FlushOne(0, 0x4000)
}

func TestFlushAllClearsNonReserved(t *testing.T) {
	e, fake := newTestEngine(4)
	for i := 0; i < 4; i++ {
		tt := tte.New(uint32(i+1)<<16, tte.SizeIndex16K, tte.ZonePerPTE1, tte.WR)
		e.Install(uint(i+1), uint32(i)<<16, tt)
	}
	e.FlushAll()
	for i := 0; i < 4; i++ {
		hi, _ := fake.ReadSlot(i)
		if tte.HiValid(hi) {
			t.Fatalf("slot %d still valid after FlushAll", i)
		}
	}
}

func TestVictimSkipsLockedReservedRegion(t *testing.T) {
	fake := mmuhw.NewFake(4)
	e := New(fake, 4)
	// Reserve slot 0 before finishing bootstrap.
	e.Reserve(0xE0000000, 0xE0000000, 1<<10, tte.WR)
	e.FinishBootstrap()

	if e.NReserved() != 1 {
		t.Fatalf("expected 1 reserved slot, got %d", e.NReserved())
	}

	for i := 0; i < 10; i++ {
		tt := tte.New(uint32(i+1)<<16, tte.SizeIndex16K, tte.ZonePerPTE1, tte.WR)
		slot := e.Install(uint(i%3+1), uint32(i)<<16, tt)
		if slot == 0 {
			t.Fatalf("victim selection must never pick the reserved slot 0")
		}
	}
}

func TestStackGuardReprievesCurrentStackPage(t *testing.T) {
	e, _ := newTestEngine(2)
	tt := tte.New(0x00100000, tte.SizeIndex16K, tte.ZonePerPTE1, tte.WR)
	slot := e.Install(1, 0x9000, tt)
	hi, _ := e.cpu.ReadSlot(slot)
	stackVPN := tte.HiVPN(hi)
	e.SetStackPage(stackVPN)

	// Force every slot used so the walker must consider the stack
	// page; it must reprieve it (mark REF) rather than select it.
	// 0xC000 lies in the 16 KiB page after the stack page's.
	tt2 := tte.New(0x00200000, tte.SizeIndex16K, tte.ZonePerPTE1, tte.WR)
	e.Install(2, 0xC000, tt2)

	victim := e.selectVictim()
	if e.slots[victim].vpn == stackVPN {
		t.Fatalf("victim selection must never choose the current kernel stack page")
	}
}

func TestMapIODevFindsReservedWindow(t *testing.T) {
	fake := mmuhw.NewFake(8)
	e := New(fake, 8)
	e.Reserve(0xEF600000, 0xEF600000, 1<<20, tte.WR)
	e.FinishBootstrap()

	va, ok := e.MapIODev(0xEF600100, 256)
	if !ok {
		t.Fatalf("expected mapiodev to find the reserved window")
	}
	if va != 0xEF600100 {
		t.Fatalf("mapiodev va = %#x, want %#x", va, 0xEF600100)
	}
}

func TestReserveAfterBootstrapPanics(t *testing.T) {
	e, _ := newTestEngine(4)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling Reserve after FinishBootstrap")
		}
	}()
	e.Reserve(0x1000, 0x1000, 1<<10, tte.WR)
}

func TestInstallZeroTTEPanics(t *testing.T) {
	e, _ := newTestEngine(4)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic installing a zero TTE")
		}
	}()
	e.Install(1, 0x1000, 0)
}
