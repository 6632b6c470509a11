package pmap

import "github.com/rayshifu/ibm4xxmmu/pv"

// pvSlab is the fixed-capacity PV-node pool (§4.7 "initialize the PV
// slab pool", §5 "Slab allocation for PV nodes uses a non-waiting
// policy"). It is a plain free list over a preallocated backing
// array — no dynamic growth, matching the NOWAIT contract exactly:
// once the backing array is exhausted, Alloc fails immediately rather
// than growing or blocking.
type pvSlab struct {
	nodes []pv.Node[*Pmap]
	free  []*pv.Node[*Pmap]
}

func newPVSlab(capacity int) *pvSlab {
	s := &pvSlab{nodes: make([]pv.Node[*Pmap], capacity)}
	s.free = make([]*pv.Node[*Pmap], 0, capacity)
	for i := range s.nodes {
		s.free = append(s.free, &s.nodes[i])
	}
	return s
}

func (s *pvSlab) Alloc() (*pv.Node[*Pmap], bool) {
	if len(s.free) == 0 {
		return nil, false
	}
	n := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	return n, true
}

func (s *pvSlab) Free(n *pv.Node[*Pmap]) {
	*n = pv.Node[*Pmap]{}
	s.free = append(s.free, n)
}

var _ pv.Allocator[*Pmap] = (*pvSlab)(nil)
