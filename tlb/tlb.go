// Package tlb implements the software-managed TLB engine (§4.2):
// install, search and invalidate hardware slots, FIFO-with-reference
// victim selection, the locked reserved-entry region, and the fixed
// I/O mapping reservations consumed by mapiodev. It is the component
// every mutating pmap operation funnels its hardware-visible half
// through (§5: the install sequence runs at spl-high).
package tlb

import (
	"github.com/rayshifu/ibm4xxmmu/klog"
	"github.com/rayshifu/ibm4xxmmu/mmuhw"
	"github.com/rayshifu/ibm4xxmmu/tte"
)

// SlotFlags records the software shadow state of one hardware slot.
type SlotFlags uint8

const (
	Used SlotFlags = 1 << iota
	Ref
	Locked
)

// slotInfo is the software shadow of one hardware TLB slot (§3 "TLB
// slot").
type slotInfo struct {
	flags SlotFlags
	ctx   uint
	vpn   uint32
}

// Engine owns the TLB software shadow and the reserved-slot cursor.
// There is exactly one Engine per running kernel (§9 "single owned
// MMU service object").
type Engine struct {
	cpu   mmuhw.CpuMmu
	slots []slotInfo

	nreserved int // count of permanently locked reserved slots
	tlbnext   int // clock hand; wraps [nreserved, len(slots))

	// stackPage is the virtual page number of the currently
	// executing kernel stack; victim selection must never evict it
	// (§4.2 "Stack guard").
	stackPage uint32
	haveStack bool

	reservedDone bool // true once bootstrap forbids further Reserve calls

	Stats   klog.Counters
	Evicted *klog.EvictionRecorder
}

// New builds an Engine over n hardware slots, backed by cpu.
func New(cpu mmuhw.CpuMmu, n int) *Engine {
	return &Engine{cpu: cpu, slots: make([]slotInfo, n)}
}

// NSlots returns the number of hardware slots this engine manages.
func (e *Engine) NSlots() int { return len(e.slots) }

// NReserved returns the number of permanently locked reserved slots.
func (e *Engine) NReserved() int { return e.nreserved }

// SetStackPage records the virtual page number of the kernel stack
// currently in use, refreshed on every context switch (§9
// SUPPLEMENTED FEATURES).
func (e *Engine) SetStackPage(vpn uint32) {
	e.stackPage = vpn
	e.haveStack = true
}

// initTLBNext implements bootstrap step 1: skip the reserved region
// forever.
func (e *Engine) initTLBNext() {
	e.tlbnext = e.nreserved
}

// selectVictim walks the clock hand looking for a candidate slot,
// per §4.2 steps 1-5. It never inspects reserved slots and is
// guaranteed to terminate within two full sweeps (§9 "FIFO victim
// walker as coroutine": one sweep that only clears REF bits is
// guaranteed to find an all-REF-clear slot on the second).
func (e *Engine) selectVictim() int {
	n := len(e.slots)
	span := n - e.nreserved
	if span <= 0 {
		panic("tlb: no victim-eligible slots")
	}
	for steps := 0; steps < 2*n; steps++ {
		idx := e.tlbnext
		e.advance()

		s := &e.slots[idx]
		if s.flags&Used == 0 {
			return idx
		}
		if s.flags&Locked != 0 {
			continue
		}
		// Stack guard: never evict the page backing the kernel
		// stack currently executing.
		if e.haveStack && s.vpn == e.stackPage {
			s.flags |= Ref
			if e.Evicted != nil {
				e.Evicted.Record(s.ctx, true)
			}
			continue
		}
		if s.flags&Ref == 0 {
			if e.Evicted != nil {
				e.Evicted.Record(s.ctx, false)
			}
			return idx
		}
		s.flags &^= Ref
	}
	panic("tlb: victim selection did not converge")
}

// advance moves the clock hand forward one slot, wrapping from
// len(slots)-1 back to nreserved.
func (e *Engine) advance() {
	e.tlbnext++
	if e.tlbnext >= len(e.slots) {
		e.tlbnext = e.nreserved
	}
}

// Install places (ctx, va, t) into the TLB, selecting a victim slot
// via FIFO-with-reference, and returns the slot index used. Callers
// must already hold whatever lock models spl-VM for the owning pmap;
// Install itself is the spl-high section (§5): the WriteSlot call is
// the only place PID/MSR are manipulated.
func (e *Engine) Install(ctx uint, va uint32, t tte.TTE) int {
	if t == 0 {
		panic("tlb: refusing to install a zero TTE")
	}
	slot := e.selectVictim()
	hi := tte.MakeHi(va, t.SizeIndex())
	lo := tte.MakeLo(t)

	e.cpu.WriteSlot(slot, ctx, hi, lo)

	e.slots[slot] = slotInfo{flags: Used | Ref, ctx: ctx, vpn: tte.HiVPN(hi)}
	e.Stats.TLBInstalls.Inc()
	return slot
}

// FlushOne invalidates the slot mapping (va, ctx) if present and not
// locked, and primes tlbnext to reuse it first (§4.2 "Flush one").
// ctx == 0 means "not resident" and is always a no-op.
func (e *Engine) FlushOne(ctx uint, va uint32) {
	if ctx == 0 {
		return
	}
	slot, ok := e.cpu.Probe(ctx, va)
	if !ok {
		return
	}
	if e.slots[slot].flags&Locked != 0 {
		return
	}
	e.invalidate(slot, false)
	e.tlbnext = slot
	e.Stats.TLBFlushes.Inc()
}

// FlushAll invalidates every non-reserved slot (§4.2 "Flush all").
func (e *Engine) FlushAll() {
	for i := e.nreserved; i < len(e.slots); i++ {
		if e.slots[i].flags&Locked != 0 {
			continue
		}
		e.invalidate(i, false)
	}
	e.Stats.TLBFlushAll.Inc()
}

// FlushCtx invalidates every slot tagged with ctx, used when a
// context is stolen or freed (§4.3).
func (e *Engine) FlushCtx(ctx uint) {
	for i := e.nreserved; i < len(e.slots); i++ {
		if e.slots[i].flags&Used != 0 && e.slots[i].ctx == ctx {
			e.invalidate(i, false)
		}
	}
}

// invalidate clears hardware slot i and its shadow. debug controls
// whether only the valid bit is cleared or the whole slot is zeroed
// (§4.2 "Invalidate slot").
func (e *Engine) invalidate(i int, debug bool) {
	e.cpu.InvalidateSlot(i, debug)
	e.slots[i] = slotInfo{}
}

// Reserve installs a permanently locked fixed mapping and returns the
// slot index used. Only callable before bootstrap completes (§4.2).
func (e *Engine) Reserve(pa, va uint32, size uint32, flags tte.Flags) int {
	if e.reservedDone {
		panic("tlb: reserve called after bootstrap completed")
	}
	sizeIndex, ok := supportedSize(size)
	if !ok {
		panic("tlb: reserve size is not a supported power of two")
	}
	slot := e.nreserved
	if slot >= len(e.slots) {
		panic("tlb: no room for another reserved slot")
	}
	// pa need not arrive pre-aligned to the reservation window (real
	// I/O register bases rarely are); round it down the same way
	// MakeHi already rounds va, matching ppc4xx_tlb_reserve.
	pa &^= tte.SizeTable[sizeIndex] - 1
	t := tte.New(pa, sizeIndex, tte.ZoneUncondition, flags)
	hi := tte.MakeHi(va, sizeIndex)
	lo := tte.MakeLo(t)
	e.cpu.WriteSlot(slot, 0, hi, lo)
	e.slots[slot] = slotInfo{flags: Used | Locked, ctx: 0, vpn: tte.HiVPN(hi)}
	e.nreserved++
	return slot
}

// FinishBootstrap marks the reserved-slot region closed (no further
// Reserve calls) and sets the clock hand to skip it forever (§4.7
// steps 1 and 10).
func (e *Engine) FinishBootstrap() {
	e.reservedDone = true
	e.initTLBNext()
}

// MapIODev linearly scans the reserved slots for one whose PA range
// contains [base, base+len), returning the corresponding virtual
// address (§4.2 "mapiodev... replaces keeping a side table").
func (e *Engine) MapIODev(base, length uint32) (uint32, bool) {
	end := base + length
	for i := 0; i < e.nreserved; i++ {
		hi, lo := e.cpu.ReadSlot(i)
		sizeIndex := (hi >> tte.TLBSizeShift) & 0x7
		size := tte.SizeTable[sizeIndex]
		pa := tte.TTE(lo).PA()
		if base >= pa && end <= pa+size {
			va := tte.HiVPN(hi)
			return va + (base - pa), true
		}
	}
	return 0, false
}

func supportedSize(size uint32) (uint, bool) {
	for i, s := range tte.SizeTable {
		if s == size {
			return uint(i), true
		}
	}
	// no exact match: round up to the smallest supported size that
	// covers the request (§4.2).
	for i, s := range tte.SizeTable {
		if s >= size {
			return uint(i), true
		}
	}
	return 0, false
}
