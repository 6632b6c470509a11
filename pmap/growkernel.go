package pmap

import "github.com/rayshifu/ibm4xxmmu/pgtbl"

// GrowKernel extends the kernel page table so every leaf-table-sized
// stride up to maxkva has a (possibly empty) leaf allocated, and
// returns the new watermark (§4.8 "growkernel"). Calling it with a
// maxkva at or below the current watermark is a no-op.
//
// Before Bootstrap runs, s.leaf is backed directly by whatever
// vmsvc.Collaborators was constructed with; swapping that
// implementation for an early bump allocator versus the real wired
// page allocator is how the two-mode behavior in §4.8 is realized —
// this function itself does not need to know which mode is active.
func (s *Service) GrowKernel(maxkva uint32) uint32 {
	if maxkva <= s.growWatermark {
		return s.growWatermark
	}

	leafSpan := pageSize() * pgtbl.PTSZ
	start := s.growWatermark &^ (leafSpan - 1)

	pm := s.kernel
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for va := start; va < maxkva; va += leafSpan {
		if !pm.dir.EnsureLeaf(va, s.leaf) {
			panic("pmap: growkernel allocation failure")
		}
		s.Stats.KernGrowths.Inc()
	}
	s.growWatermark = maxkva
	return s.growWatermark
}
