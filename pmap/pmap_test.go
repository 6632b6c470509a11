package pmap

import (
	"testing"

	"github.com/rayshifu/ibm4xxmmu/defs"
	"github.com/rayshifu/ibm4xxmmu/mmuhw"
	"github.com/rayshifu/ibm4xxmmu/pmap/vmsvc"
	"github.com/rayshifu/ibm4xxmmu/pv"
)

const testPageSize = 16 << 10

func newTestService(t *testing.T) (*Service, *vmsvc.Fake) {
	t.Helper()
	cpu := mmuhw.NewFake(8)
	cache := &mmuhw.FakeCache{}
	vm := vmsvc.NewFake(0x00100000, 0x00400000, testPageSize)

	cfg := Config{
		NumCtx:             8,
		MinCtx:             2,
		NTLB:               8,
		KernelMinVA:        0x80000000,
		KernelMaxVA:        0xF0000000,
		DirectMapSizeIndex: 7, // 16 MiB
		PVSlabCapacity:     4,
		NumPhysPages:       512,
		BaseFrame:          0,
	}
	s := NewService(cfg, cpu, vm, cache)
	s.Bootstrap(0x00000000, 0x00004000)
	s.Init()
	return s, vm
}

func TestCreateReferenceDestroy(t *testing.T) {
	s, _ := newTestService(t)
	pm := s.Create()
	if pm.RefCount() != 1 {
		t.Fatalf("new pmap refcount = %d, want 1", pm.RefCount())
	}
	s.Reference(pm)
	if pm.RefCount() != 2 {
		t.Fatalf("after reference refcount = %d, want 2", pm.RefCount())
	}
	s.Destroy(pm)
	if pm.RefCount() != 1 {
		t.Fatalf("after one destroy refcount = %d, want 1", pm.RefCount())
	}
	s.Destroy(pm)
	if pm.RefCount() != 0 {
		t.Fatalf("after second destroy refcount = %d, want 0", pm.RefCount())
	}
}

func TestDestroyWithResidentMappingPanics(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)
	if errc := s.Enter(pm, 0x1000, pa, defs.PROT_READ|defs.PROT_WRITE, 0); errc != 0 {
		t.Fatalf("enter failed: %v", errc)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("destroy with outstanding mapping did not panic")
		}
	}()
	s.Destroy(pm)
}

func TestEnterExtractRoundTrip(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)

	if errc := s.Enter(pm, 0x4000, pa, defs.PROT_READ|defs.PROT_WRITE, 0); errc != 0 {
		t.Fatalf("enter failed: %v", errc)
	}
	got, ok := s.Extract(pm, 0x4000)
	if !ok || got != pa {
		t.Fatalf("extract = (%#x, %v), want (%#x, true)", got, ok, pa)
	}
	if pm.ResidentCount() != 1 {
		t.Fatalf("resident count = %d, want 1", pm.ResidentCount())
	}
}

func TestEnterWiredThenExtractAndCounts(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)

	if errc := s.Enter(pm, 0x80000000, pa, defs.PROT_READ|defs.PROT_WRITE, defs.WIRED); errc != 0 {
		t.Fatalf("enter failed: %v", errc)
	}
	got, ok := s.Extract(pm, 0x80000000)
	if !ok || got != pa {
		t.Fatalf("extract = (%#x, %v)", got, ok)
	}
	if pm.ResidentCount() != 1 || pm.WiredCount() != 1 {
		t.Fatalf("resident=%d wired=%d, want 1,1", pm.ResidentCount(), pm.WiredCount())
	}
}

func TestEnterThenRemoveRestoresCounts(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)

	if errc := s.Enter(pm, 0x2000, pa, defs.PROT_READ|defs.PROT_WRITE, defs.WIRED); errc != 0 {
		t.Fatalf("enter failed: %v", errc)
	}
	s.Remove(pm, 0x2000, 0x2000+testPageSize)

	if _, ok := s.Extract(pm, 0x2000); ok {
		t.Fatal("extract found a mapping after remove")
	}
	if pm.ResidentCount() != 0 || pm.WiredCount() != 0 {
		t.Fatalf("resident=%d wired=%d after remove, want 0,0", pm.ResidentCount(), pm.WiredCount())
	}
}

func TestEnterAllocFailureReturnsENOMEMUnderCanfail(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)
	vm.SetFailAlloc(true)

	errc := s.Enter(pm, 0x3000, pa, defs.PROT_READ, defs.CANFAIL)
	if errc != defs.ENOMEM {
		t.Fatalf("enter under exhaustion = %v, want ENOMEM", errc)
	}
	if _, ok := s.Extract(pm, 0x3000); ok {
		t.Fatal("extract found a mapping despite ENOMEM (partial state leaked)")
	}
}

func TestProtectDropReadDegeneratesToRemove(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)
	s.Enter(pm, 0x4000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)

	s.Protect(pm, 0x4000, 0x4000+testPageSize, defs.PROT_NONE)

	if _, ok := s.Extract(pm, 0x4000); ok {
		t.Fatal("extract found a mapping after protect(NONE)")
	}
}

func TestProtectIsIdempotent(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)
	s.Enter(pm, 0x5000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)

	s.Protect(pm, 0x5000, 0x5000+testPageSize, defs.PROT_READ)
	first := *pm.dir.Find(0x5000)
	s.Protect(pm, 0x5000, 0x5000+testPageSize, defs.PROT_READ)
	second := *pm.dir.Find(0x5000)

	if first != second {
		t.Fatalf("protect(READ) twice changed the PTE: %#x != %#x", first, second)
	}
}

func TestUnwireClearsWiredCount(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)
	s.Enter(pm, 0x6000, pa, defs.PROT_READ, defs.WIRED)

	if pm.WiredCount() != 1 {
		t.Fatalf("wired count = %d before unwire, want 1", pm.WiredCount())
	}
	s.Unwire(pm, 0x6000)
	if pm.WiredCount() != 0 {
		t.Fatalf("wired count = %d after unwire, want 0", pm.WiredCount())
	}
}

func TestKenterPaAndKRemove(t *testing.T) {
	s, vm := newTestService(t)
	kpm := s.Kernel()
	pa, _ := vm.AllocPage(false)

	s.KenterPA(0x90000000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)
	got, ok := s.Extract(kpm, 0x90000000)
	if !ok || got != pa {
		t.Fatalf("extract after kenter_pa = (%#x, %v)", got, ok)
	}

	s.KRemove(0x90000000, testPageSize)
	if _, ok := s.Extract(kpm, 0x90000000); ok {
		t.Fatal("extract found a mapping after kremove")
	}
}

func TestPageProtectUnmapsEveryAlias(t *testing.T) {
	s, vm := newTestService(t)
	pa, _ := vm.AllocPage(false)
	pm1 := s.Create()
	pm2 := s.Create()

	s.Enter(pm1, 0x7000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)
	s.Enter(pm2, 0x8000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)

	s.PageProtect(pa, defs.PROT_NONE)

	if _, ok := s.Extract(pm1, 0x7000); ok {
		t.Fatal("pm1 still mapped after page_protect(NONE)")
	}
	if _, ok := s.Extract(pm2, 0x8000); ok {
		t.Fatal("pm2 still mapped after page_protect(NONE)")
	}
}

func TestCheckAttrChgClearsAndRefreshesOnWrite(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	pa, _ := vm.AllocPage(false)
	s.Enter(pm, 0x9000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)

	if !s.CheckAttr(pa, pv.Chg, true) {
		t.Fatal("check_attr(CHG) on a freshly entered writable page = false, want true")
	}
	if s.CheckAttr(pa, pv.Chg, false) {
		t.Fatal("check_attr(CHG) immediately after clearing = true, want false")
	}

	// protect(READ) should have been applied so that a later enter
	// with write permission re-dirties the page.
	s.Enter(pm, 0x9000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)
	if !s.CheckAttr(pa, pv.Chg, false) {
		t.Fatal("check_attr(CHG) after re-entering writable = false, want true")
	}
}

func TestTLBMissUnmappedReturnsOne(t *testing.T) {
	s, _ := newTestService(t)
	pm := s.Create()
	s.Activate(pm)

	if got := s.TLBMiss(pm.Ctx(), 0x1000); got != 1 {
		t.Fatalf("tlbmiss on unmapped va = %d, want 1", got)
	}
}

func TestTLBMissInstallsResidentMapping(t *testing.T) {
	s, vm := newTestService(t)
	pm := s.Create()
	s.Activate(pm)
	pa, _ := vm.AllocPage(false)
	s.Enter(pm, 0x1000, pa, defs.PROT_READ|defs.PROT_WRITE, 0)

	if got := s.TLBMiss(pm.Ctx(), 0x1000); got != 0 {
		t.Fatalf("tlbmiss on resident va = %d, want 0", got)
	}
}

func TestTLBMissDirectWindowBelowKernelMin(t *testing.T) {
	s, _ := newTestService(t)
	if got := s.TLBMiss(1 /* KernelCtx */, 0x00500000); got != 0 {
		t.Fatalf("tlbmiss on direct-map window = %d, want 0", got)
	}
}

func TestGrowKernelIsIdempotentBelowWatermark(t *testing.T) {
	s, _ := newTestService(t)
	first := s.GrowKernel(0x80100000)
	second := s.GrowKernel(0x80000000)
	if second != first {
		t.Fatalf("growkernel with a smaller target returned %#x, want unchanged %#x", second, first)
	}
}

func TestActivateAllocatesDistinctContextsAndStealsWhenFull(t *testing.T) {
	s, _ := newTestService(t)
	pms := make([]*Pmap, 0, 6)
	for i := 0; i < 6; i++ {
		pm := s.Create()
		s.Activate(pm)
		pms = append(pms, pm)
	}
	seen := map[uint]bool{}
	for _, pm := range pms {
		if seen[pm.Ctx()] {
			t.Fatalf("context %d reused while table had room", pm.Ctx())
		}
		seen[pm.Ctx()] = true
	}

	stolen := s.Create()
	s.Activate(stolen)
	var victim *Pmap
	for _, pm := range pms {
		if pm.Ctx() == 0 {
			victim = pm
		}
	}
	if victim == nil {
		t.Fatal("no earlier pmap had its context reclaimed by the steal")
	}
}

func TestBootstrapRegistersTrimmedSegments(t *testing.T) {
	cpu := mmuhw.NewFake(8)
	cache := &mmuhw.FakeCache{}
	// The kernel image [0x4000, 0x8000) sits inside this single raw
	// region, forcing bootstrap to split it in two.
	vm := vmsvc.NewFake(0x00000000, 0x00040000, testPageSize)

	cfg := Config{
		NumCtx: 8, MinCtx: 2, NTLB: 8,
		KernelMinVA: 0x80000000, KernelMaxVA: 0xF0000000,
		DirectMapSizeIndex: 7, PVSlabCapacity: 4,
		NumPhysPages: 512, BaseFrame: 0,
	}
	s := NewService(cfg, cpu, vm, cache)
	s.Bootstrap(0x00004000, 0x00008000)
	s.Init()
	_ = s

	regs := vm.Registered()
	if len(regs) != 2 {
		t.Fatalf("registered %d segments, want 2 (split around the kernel image): %+v", len(regs), regs)
	}
	for _, seg := range regs {
		if seg.Start < 0x00008000 && seg.End > 0x00004000 {
			t.Fatalf("registered segment %+v overlaps the excluded kernel image", seg)
		}
	}
}
