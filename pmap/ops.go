package pmap

import (
	"github.com/rayshifu/ibm4xxmmu/defs"
	"github.com/rayshifu/ibm4xxmmu/pgtbl"
	"github.com/rayshifu/ibm4xxmmu/pv"
	"github.com/rayshifu/ibm4xxmmu/tte"
)

func pageSize() uint32 { return tte.SizeTable[tte.SizeIndex16K] }

func pageAlign(va uint32) uint32 {
	ps := pageSize()
	return va &^ (ps - 1)
}

// zoneFor picks the CPU zone-protection class for a new TTE: the
// kernel pmap always maps priv-only, user pmaps map per-PTE (§4.7
// step 8: "Z0 priv-only, Z1/Z2 per-PTE").
func zoneFor(pm *Pmap) tte.Zone {
	if pm.kernel {
		return tte.ZonePrivOnly
	}
	return tte.ZonePerPTE1
}

// protFlags translates the protection-bit API (defs.Prot) into the
// storage flags a TTE carries.
func protFlags(prot defs.Prot) tte.Flags {
	var f tte.Flags
	if prot&defs.PROT_WRITE != 0 {
		f |= tte.WR
	}
	if prot&defs.PROT_EXEC != 0 {
		f |= tte.EX
	}
	return f
}

// Enter installs a single 16 KiB mapping (§4.6 "enter"). It always
// removes any existing mapping at va first, then builds a fresh TTE,
// writes the page table, registers the mapping in the PV table if the
// frame is VM-managed (rolling the PTE back if that fails), and
// installs the TLB entry unless the mapping is wired
// (wired mappings defer to a later fault, matching scenario 1 in §8).
func (s *Service) Enter(pm *Pmap, va, pa uint32, prot defs.Prot, flags defs.EnterFlags) defs.Err_t {
	va = pageAlign(va)
	pa = pageAlign(pa)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	s.removeLocked(pm, va, va+pageSize())

	t := tte.New(pa, tte.SizeIndex16K, zoneFor(pm), protFlags(prot))

	delta, ok := pm.dir.Enter(va, t, s.leaf)
	if !ok {
		return failOrPanic(flags, defs.ENOMEM)
	}
	pm.residentCount += delta

	managed := s.vm.Managed(pa)
	wired := flags&defs.WIRED != 0
	if managed {
		canFail := flags&defs.CANFAIL != 0
		if !s.pv.Enter(pm, va, pa, wired, canFail) {
			// Roll back the PTE we just wrote so no partial state
			// survives the failure (§7).
			d, _ := pm.dir.Enter(va, 0, s.leaf)
			pm.residentCount += d
			s.Stats.PVAllocFails.Inc()
			return defs.ENOMEM
		}
		if wired {
			pm.wiredCount++
		}
		bits := pv.Ref
		if t.HasFlags(tte.WR) {
			bits |= pv.Chg
		}
		s.pv.OrAttr(pa, bits)
	}

	if !wired && t != 0 {
		s.tlb.Install(pm.Ctx(), va, t)
	}
	return 0
}

// removeLocked is the body of Remove, callable while pm.mu is already
// held (Enter needs this to perform its leading remove).
func (s *Service) removeLocked(pm *Pmap, sva, eva uint32) {
	ps := pageSize()
	for va := pageAlign(sva); va < eva; va += ps {
		slot := pm.dir.Find(va)
		if slot == nil || *slot == 0 {
			continue
		}
		pa := slot.PA()
		if s.vm.Managed(pa) {
			if wasWired, found := s.pv.Remove(pm, va, pa); found && wasWired {
				pm.wiredCount--
			}
		}
		delta, _ := pm.dir.Enter(va, 0, s.leaf)
		pm.residentCount += delta
		s.tlb.FlushOne(pm.Ctx(), va)
	}
}

// Remove unmaps every page in [sva, eva) (§4.6 "remove").
func (s *Service) Remove(pm *Pmap, sva, eva uint32) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	s.removeLocked(pm, sva, eva)
}

// Protect narrows the protection of every live PTE in [sva, eva).
// Dropping READ degenerates to a full remove; otherwise only the WR
// and EX bits can be cleared, never set, and an already-narrower PTE
// is left untouched (§4.6 "protect", §8 "protect... is idempotent").
func (s *Service) Protect(pm *Pmap, sva, eva uint32, prot defs.Prot) {
	if prot&defs.PROT_READ == 0 {
		s.Remove(pm, sva, eva)
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	ps := pageSize()
	var clear tte.Flags
	if prot&defs.PROT_WRITE == 0 {
		clear |= tte.WR
	}
	if prot&defs.PROT_EXEC == 0 {
		clear |= tte.EX
	}
	if clear == 0 {
		return
	}

	for va := pageAlign(sva); va < eva; va += ps {
		slot := pm.dir.Find(va)
		if slot == nil || *slot == 0 {
			continue
		}
		if slot.Flags()&clear == 0 {
			continue
		}
		*slot = slot.ClearFlags(clear)
		s.tlb.FlushOne(pm.Ctx(), va)
	}
}

// Extract returns the physical address va currently maps to, if any
// (§4.6 "extract").
func (s *Service) Extract(pm *Pmap, va uint32) (uint32, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	slot := pm.dir.Find(va)
	if slot == nil || *slot == 0 {
		return 0, false
	}
	return slot.PA() | pgtbl.PageOffset(va), true
}

// Unwire clears the wired flag on the PV entry for (pm, va) (§4.6
// "unwire").
func (s *Service) Unwire(pm *Pmap, va uint32) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	va = pageAlign(va)
	slot := pm.dir.Find(va)
	if slot == nil || *slot == 0 {
		return
	}
	if prev, found := s.pv.SetWired(pm, va, slot.PA(), false); found && prev {
		pm.wiredCount--
	}
}

// KenterPA maps a kernel VA directly to a PA, never through the PV
// table, always priv-only zone, executable if any access is granted
// (§4.6 "kenter_pa"). It is restricted to the kernel pmap.
func (s *Service) KenterPA(va, pa uint32, prot defs.Prot, flags defs.EnterFlags) {
	pm := s.kernel
	va = pageAlign(va)
	pa = pageAlign(pa)

	f := protFlags(prot)
	if prot != defs.PROT_NONE {
		f |= tte.EX
	}
	t := tte.New(pa, tte.SizeIndex16K, tte.ZonePrivOnly, f)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	delta, ok := pm.dir.Enter(va, t, s.leaf)
	if !ok {
		panic("pmap: kenter_pa allocation failure")
	}
	pm.residentCount += delta
	s.tlb.Install(pm.Ctx(), va, t)
}

// KRemove unmaps length bytes of kernel VA starting at va (§4.6
// "kremove"). It is restricted to the kernel pmap.
func (s *Service) KRemove(va, length uint32) {
	pm := s.kernel
	ps := pageSize()
	end := va + length

	pm.mu.Lock()
	defer pm.mu.Unlock()

	for v := pageAlign(va); v < end; v += ps {
		delta, _ := pm.dir.Enter(v, 0, s.leaf)
		pm.residentCount += delta
		s.tlb.FlushOne(pm.Ctx(), v)
	}
}

// PageProtect applies Protect to every (pm, va) mapping the frame at
// pa, via the PV chain (§4.6 "page_protect"). pv.Table.Walk snapshots
// the whole chain before invoking the callback, so it tolerates
// Protect(..., NONE) removing the very entry being visited.
func (s *Service) PageProtect(pa uint32, prot defs.Prot) {
	ps := pageSize()
	s.pv.Walk(pa, func(pm *Pmap, va uint32, wired bool) {
		s.Protect(pm, va, va+ps, prot)
	})
}

// CheckAttr tests the REF/CHG attribute bits of the frame at pa, and
// when clear is set forces every live mapping to re-fault on the next
// access so the attribute stays accurate (§4.6 "check_attr"):
// clearing CHG drops WR so the next write re-dirties it, clearing REF
// drops all access so the next touch re-references it.
func (s *Service) CheckAttr(pa uint32, mask pv.Attr, clear bool) bool {
	got := s.pv.TestAndClear(pa, mask, clear)
	if clear {
		if mask&pv.Chg != 0 {
			s.PageProtect(pa, defs.PROT_READ)
		} else {
			s.PageProtect(pa, defs.PROT_NONE)
		}
	}
	return got != 0
}

// Procwr synchronizes the instruction cache after self-modifying code
// writes to [va, va+length) (§4.6 "procwr"). For the currently
// executing process it switches PID in place and flushes by VA; for
// any other process it translates each cacheline's VA to a PA via
// Extract and flushes by PA instead, since the other process's
// mappings are not the live translation.
func (s *Service) Procwr(pm *Pmap, current bool, va, length uint32) {
	line := s.cfg.CacheLineSize
	if line == 0 {
		line = 32
	}
	end := va + length
	start := va &^ (line - 1)

	if current {
		prev := s.cpu.SetPID(pm.Ctx())
		for a := start; a < end; a += line {
			s.cache.Flush(a)
		}
		s.cpu.SetPID(prev)
		return
	}

	for a := start; a < end; a += line {
		pa, ok := s.Extract(pm, a)
		if !ok {
			continue
		}
		s.cache.Flush(pa)
	}
}
