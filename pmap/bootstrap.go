package pmap

import (
	"sort"

	"github.com/rayshifu/ibm4xxmmu/ctx"
	"github.com/rayshifu/ibm4xxmmu/pmap/vmsvc"
	"github.com/rayshifu/ibm4xxmmu/pv"
	"github.com/rayshifu/ibm4xxmmu/util"
)

// Bootstrap runs pre-VM initialization with translation disabled
// (§4.7). Step numbers below match the spec's ordered list; steps
// with nothing left to do in this model (publishing the page size,
// setting the CPU zone-protection registers) are noted rather than
// silently skipped.
func (s *Service) Bootstrap(kstart, kend uint32) {
	// Step 1: the clock hand is set to nreserved by
	// tlb.Engine.FinishBootstrap, called at step 10, so there is
	// nothing further to do here.

	// Step 2: record the kernel page-table array's base.
	s.kernmap = kend
	s.growWatermark = s.cfg.KernelMinVA

	// Step 3: null segment directory for the kernel pmap is already
	// its zero value; assign contexts 0 and 1.
	s.ctxTbl.AssignFixed(0, s.kernel)
	s.ctxTbl.AssignFixed(ctx.KernelCtx, s.kernel)

	// Step 4: the page size is a fixed constant (tte.SizeIndex16K)
	// shared by every package in this module, not a runtime value
	// published to a separate VM subsystem.

	// Step 5: read regions, exclude the kernel image, page-align,
	// drop empties, sort by start address.
	regions := trimRegions(s.vm.Segments(), kstart, kend, pageSize())

	// Step 6: reserve message-buffer pages at the tail of the
	// largest region.
	if len(regions) > 0 && s.cfg.MsgBufSize > 0 {
		i := largestRegion(regions)
		regions[i].End -= s.cfg.MsgBufSize
	}

	// Step 7: register each region with the VM free lists.
	for _, r := range regions {
		s.vm.RegisterSegment(r)
	}

	// Step 8: zone assignment happens per-TTE at Install time
	// (tte.Zone), not through a separate CPU zone register in this
	// model — see zoneFor and KenterPA.

	// Step 9: already satisfied by step 3's AssignFixed(KernelCtx,
	// ...), which also sets s.kernel's ctx field to KernelCtx since
	// it is the later of the two AssignFixed calls.

	// Step 10: close the reserved-slot region.
	s.tlb.FinishBootstrap()
	s.bootstrapped = true
}

// trimRegions excludes [kstart, kend) from each raw region, splitting
// a region that straddles it, page-aligns what remains inward, drops
// anything that becomes empty, and sorts the result by start address.
func trimRegions(raw []vmsvc.Segment, kstart, kend, pageSize uint32) []vmsvc.Segment {
	var out []vmsvc.Segment
	for _, r := range raw {
		start := util.Roundup(r.Start, pageSize)
		end := util.Rounddown(r.End, pageSize)
		if start >= end {
			continue
		}
		if end <= kstart || start >= kend {
			out = append(out, vmsvc.Segment{Start: start, End: end})
			continue
		}
		if start < kstart {
			out = append(out, vmsvc.Segment{Start: start, End: kstart})
		}
		if end > kend {
			out = append(out, vmsvc.Segment{Start: kend, End: end})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func largestRegion(regions []vmsvc.Segment) int {
	best := 0
	for i, r := range regions {
		if r.End-r.Start > regions[best].End-regions[best].Start {
			best = i
		}
	}
	return best
}

// Init runs the post-VM initialization step (§4.7 "init"): the PV
// header array sized to the configured physical page count, and the
// PV slab pool. It must run after Bootstrap.
func (s *Service) Init() {
	s.slab = newPVSlab(s.cfg.PVSlabCapacity)
	s.pv = pv.New[*Pmap](s.cfg.NumPhysPages, s.cfg.BaseFrame, s.slab)
}
