package pmap

import "github.com/rayshifu/ibm4xxmmu/util"

// VirtualSpace reports the range of kernel virtual addresses this
// core manages (§6 "Upward" interfaces).
func (s *Service) VirtualSpace() (start, end uint32) {
	return s.cfg.KernelMinVA, s.cfg.KernelMaxVA
}

// RealMemory clamps [start, start+size) to its intersection with the
// first overlapping physical memory region reported by the VM layer's
// Segments (before bootstrap trimming), reporting ok=false if the
// request doesn't overlap real memory at all (§6).
func (s *Service) RealMemory(start, size uint32) (outStart, outSize uint32, ok bool) {
	end := start + size
	for _, seg := range s.vm.Segments() {
		lo, hi := util.Max(start, seg.Start), util.Min(end, seg.End)
		if lo < hi {
			return lo, hi - lo, true
		}
	}
	return 0, 0, false
}

// ZeroPage zeroes the page containing pa through the direct-mapped
// physical window (§6).
func (s *Service) ZeroPage(pa uint32) {
	s.cache.Zero(pageAlign(pa), pageSize())
}

// CopyPage copies one page from src to dst through the direct-mapped
// physical window (§6).
func (s *Service) CopyPage(src, dst uint32) {
	from := s.vm.DirectMap(src)
	to := s.vm.DirectMap(dst)
	n := copy(to, from[:pageSize()])
	if n != int(pageSize()) {
		panic("pmap: copy_page short copy")
	}
}
