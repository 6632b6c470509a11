// Package ctx implements the MMU context (address-space ID)
// allocator (§4.3): a small fixed table of context IDs, allocated
// with a rotating cursor and stolen-and-flushed when full.
package ctx

import (
	"github.com/rayshifu/ibm4xxmmu/klog"
	"github.com/rayshifu/ibm4xxmmu/tlb"
)

// Owner is the subset of pmap behavior the context allocator needs:
// reading and clearing the context currently assigned to a pmap. It
// is an interface (rather than importing the pmap package directly)
// to break the pmap<->ctx<->tlb cycle the design notes call out in
// §9 ("Cyclic references... Break it by making ctxbusy[] a
// non-owning index").
type Owner interface {
	Ctx() uint
	SetCtx(uint)
}

// Table is the fixed-size context table, §3's "Context table":
// index 0 reserved, index 1 reserved for the kernel, [MinCtx, NumCtx)
// stealable.
type Table struct {
	busy   []Owner
	next   uint
	minCtx uint
	numCtx uint

	tlb   *tlb.Engine
	stats *klog.Counters
}

// KernelCtx is the fixed context ID the kernel pmap occupies.
const KernelCtx = 1

// New builds a context table of size numCtx with the stealable range
// starting at minCtx. tlbEngine is flushed whenever a context is
// stolen or freed.
func New(tlbEngine *tlb.Engine, stats *klog.Counters, minCtx, numCtx uint) *Table {
	if minCtx < 2 || minCtx >= numCtx {
		panic("ctx: invalid minCtx/numCtx")
	}
	return &Table{
		busy:   make([]Owner, numCtx),
		next:   minCtx,
		minCtx: minCtx,
		numCtx: numCtx,
		tlb:    tlbEngine,
		stats:  stats,
	}
}

// AssignFixed directly installs pm at a reserved low context (0 or
// KernelCtx), used only by bootstrap (§4.7 step 3/9). It bypasses the
// rotating allocator.
func (t *Table) AssignFixed(c uint, pm Owner) {
	if c >= t.minCtx {
		panic("ctx: AssignFixed is only for the reserved low contexts")
	}
	t.busy[c] = pm
	pm.SetCtx(c)
}

// Alloc assigns pm a context, stealing one from another pmap if the
// table is full (§4.3). After Alloc returns, no TLB entry carries the
// returned context ID (invariant #5 in §8).
func (t *Table) Alloc(pm Owner) uint {
	start := t.next
	chosen := uint(0)
	found := false
	for i := uint(0); i < t.numCtx-t.minCtx; i++ {
		c := t.minCtx + (start-t.minCtx+i)%(t.numCtx-t.minCtx)
		if t.busy[c] == nil {
			chosen = c
			found = true
			break
		}
	}
	if !found {
		// Ring fully occupied: steal the slot the cursor currently
		// points at.
		chosen = start
	}
	t.next = chosen + 1
	if t.next >= t.numCtx {
		t.next = t.minCtx
	}

	if victim := t.busy[chosen]; victim != nil {
		victim.SetCtx(0)
		t.tlb.FlushCtx(chosen)
		if t.stats != nil {
			t.stats.CtxSteals.Inc()
		}
	}

	t.busy[chosen] = pm
	pm.SetCtx(chosen)
	return chosen
}

// Free releases pm's context, flushing it from the TLB. Freeing the
// kernel context is a programmer error and panics (§4.3).
func (t *Table) Free(pm Owner) {
	c := pm.Ctx()
	if c == 0 {
		return
	}
	if c == KernelCtx {
		panic("ctx: freeing the kernel context is forbidden")
	}
	t.busy[c] = nil
	pm.SetCtx(0)
	t.tlb.FlushCtx(c)
}

// Owner returns the pmap currently holding context c, or nil.
func (t *Table) Owner(c uint) Owner {
	return t.busy[c]
}
