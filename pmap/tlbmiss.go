package pmap

import (
	"github.com/rayshifu/ibm4xxmmu/ctx"
	"github.com/rayshifu/ibm4xxmmu/tte"
)

// TLBMiss handles a hardware TLB-miss trap (§4.6 "tlbmiss"). It runs
// at trap level with translation disabled; it must not block and must
// not take the spl-VM section the other ops use — the page-table
// lookup and TLB install it performs are safe without that lock
// because the ordering guarantee in §5 makes the preceding "update
// PTE; flush TLB" pair atomic from the trap handler's point of view.
//
// Returns 0 if a translation was installed, 1 if the access is
// genuinely unmapped and the trap should be redirected to a real page
// fault.
func (s *Service) TLBMiss(ctxID uint, va uint32) int {
	inKernelRange := va >= s.cfg.KernelMinVA && va < s.cfg.KernelMaxVA
	if ctxID != ctx.KernelCtx || inKernelRange {
		owner := s.ctxTbl.Owner(ctxID)
		if owner == nil {
			return 1
		}
		pm, ok := owner.(*Pmap)
		if !ok {
			return 1
		}
		slot := pm.dir.Find(va)
		if slot == nil || *slot == 0 {
			return 1
		}
		s.tlb.Install(ctxID, va, *slot)
		return 0
	}

	// Kernel-PID trap on a physical-window VA below the real kernel
	// range: synthesize a 16 MiB privileged, writable direct-map TTE
	// rather than consulting the page table at all.
	if va < s.cfg.KernelMinVA {
		pa := va &^ (tte.SizeTable[s.cfg.DirectMapSizeIndex] - 1)
		t := tte.New(pa, s.cfg.DirectMapSizeIndex, tte.ZonePrivOnly, tte.WR)
		s.tlb.Install(ctxID, va, t)
		return 0
	}
	return 1
}
