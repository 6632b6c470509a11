package ctx

import (
	"testing"

	"github.com/rayshifu/ibm4xxmmu/klog"
	"github.com/rayshifu/ibm4xxmmu/mmuhw"
	"github.com/rayshifu/ibm4xxmmu/tlb"
)

type fakePmap struct {
	ctx uint
	id  int
}

func (p *fakePmap) Ctx() uint     { return p.ctx }
func (p *fakePmap) SetCtx(c uint) { p.ctx = c }

func newTestTable(numCtx uint) *Table {
	e := tlb.New(mmuhw.NewFake(64), 64)
	e.FinishBootstrap()
	return New(e, &klog.Counters{}, 2, numCtx)
}

func TestAllocAssignsDistinctContexts(t *testing.T) {
	tbl := newTestTable(8)
	pm1 := &fakePmap{id: 1}
	pm2 := &fakePmap{id: 2}

	c1 := tbl.Alloc(pm1)
	c2 := tbl.Alloc(pm2)
	if c1 == c2 {
		t.Fatalf("expected distinct contexts, got %d and %d", c1, c2)
	}
	if pm1.Ctx() != c1 || pm2.Ctx() != c2 {
		t.Fatalf("Alloc must set the owner's context field")
	}
}

func TestAllocStealsWhenFull(t *testing.T) {
	tbl := newTestTable(4) // contexts 2,3 stealable
	pm1 := &fakePmap{id: 1}
	pm2 := &fakePmap{id: 2}
	pm3 := &fakePmap{id: 3}

	tbl.Alloc(pm1)
	tbl.Alloc(pm2)
	c3 := tbl.Alloc(pm3) // must steal

	stolenFromPm1 := pm1.Ctx() == 0
	stolenFromPm2 := pm2.Ctx() == 0
	if !stolenFromPm1 && !stolenFromPm2 {
		t.Fatalf("expected one of the first two pmaps to have its context reclaimed")
	}
	if tbl.Owner(c3) != pm3 {
		t.Fatalf("table must record pm3 as owner of its new context")
	}
}

func TestFreeClearsOwnerAndFlushes(t *testing.T) {
	tbl := newTestTable(8)
	pm := &fakePmap{id: 1}
	c := tbl.Alloc(pm)

	tbl.Free(pm)
	if pm.Ctx() != 0 {
		t.Fatalf("Free must reset the pmap's context to 0")
	}
	if tbl.Owner(c) != nil {
		t.Fatalf("Free must clear the table's owner slot")
	}
}

func TestFreeKernelContextPanics(t *testing.T) {
	tbl := newTestTable(8)
	kpm := &fakePmap{ctx: KernelCtx}
	tbl.busy[KernelCtx] = kpm

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic freeing the kernel context")
		}
	}()
	tbl.Free(kpm)
}

func TestFreeContextZeroIsNoop(t *testing.T) {
	tbl := newTestTable(8)
	pm := &fakePmap{ctx: 0}
	tbl.Free(pm) // must not panic
}
