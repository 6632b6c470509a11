// Package pgtbl implements the two-level per-pmap page table (§4.4):
// a fixed-length segment directory of leaf table pointers, lazy leaf
// allocation on first non-zero insert, and zero-fill on allocation.
package pgtbl

import "github.com/rayshifu/ibm4xxmmu/tte"

const (
	// offBits is the page-offset width for the fixed 16 KiB page
	// size (§1).
	offBits = 14
	// ptBits indexes the leaf table (PTIDX).
	ptBits = 8
	// stBits indexes the segment directory (STIDX).
	stBits = 10

	// STSZ is the segment directory length (§3).
	STSZ = 1 << stBits
	// PTSZ is the leaf table length (§3).
	PTSZ = 1 << ptBits
)

// Leaf is a full page of PTSZ TTE slots.
type Leaf [PTSZ]tte.TTE

// STIDX extracts the segment-directory index from a virtual address.
func STIDX(va uint32) uint {
	return uint(va>>(offBits+ptBits)) & (STSZ - 1)
}

// PTIDX extracts the leaf-table index from a virtual address.
func PTIDX(va uint32) uint {
	return uint(va>>offBits) & (PTSZ - 1)
}

// PageOffset extracts the in-page offset from a virtual address.
func PageOffset(va uint32) uint32 {
	return va & ((1 << offBits) - 1)
}

// LeafAllocator supplies zero-filled leaf table pages on a NOWAIT
// policy (§5 "Suspension points"): either immediate success or
// immediate failure, never a sleep. Production code backs this with
// the kernel's wired page allocator; tests back it with an in-memory
// pool.
type LeafAllocator interface {
	AllocLeaf() (*Leaf, bool)
	FreeLeaf(*Leaf)
}

// Dir is the segment directory of one pmap: STSZ entries, each either
// nil or an owning pointer to a leaf table page.
type Dir struct {
	segs [STSZ]*Leaf
}

// Find returns a pointer to the TTE slot for va, or nil if the
// segment has never been populated (§4.4 "pte_find returns a pointer
// into the leaf table or null").
func (d *Dir) Find(va uint32) *tte.TTE {
	leaf := d.segs[STIDX(va)]
	if leaf == nil {
		return nil
	}
	return &leaf[PTIDX(va)]
}

// Enter writes t into the slot for va, lazily allocating a zero-
// filled leaf table on first non-zero insert. It returns the change
// in resident-page count (-1, 0, or +1) the caller must apply to its
// pmap's resident_count, and ok=false if a needed leaf allocation
// failed (caller should propagate ENOMEM per CANFAIL policy).
//
// Writing zero into an already-empty slot never allocates a leaf
// table (§4.4).
func (d *Dir) Enter(va uint32, t tte.TTE, alloc LeafAllocator) (delta int, ok bool) {
	idx := STIDX(va)
	leaf := d.segs[idx]
	if leaf == nil {
		if t == 0 {
			return 0, true
		}
		var allocated bool
		leaf, allocated = alloc.AllocLeaf()
		if !allocated {
			return 0, false
		}
		d.segs[idx] = leaf
	}

	slot := &leaf[PTIDX(va)]
	wasZero := *slot == 0
	isZero := t == 0
	*slot = t

	switch {
	case wasZero && !isZero:
		return 1, true
	case !wasZero && isZero:
		return -1, true
	default:
		return 0, true
	}
}

// EnsureLeaf guarantees a leaf table exists for the segment containing
// va, allocating a zero-filled one if absent, without writing any
// slot. growkernel uses this to pre-populate segment entries ahead of
// use so that a later tlbmiss never needs to allocate at trap level.
func (d *Dir) EnsureLeaf(va uint32, alloc LeafAllocator) bool {
	idx := STIDX(va)
	if d.segs[idx] != nil {
		return true
	}
	leaf, ok := alloc.AllocLeaf()
	if !ok {
		return false
	}
	d.segs[idx] = leaf
	return true
}

// FreeAll releases every leaf table page belonging to this directory,
// used when a pmap is destroyed (§4.6 "destroy").
func (d *Dir) FreeAll(alloc LeafAllocator) {
	for i := range d.segs {
		if d.segs[i] != nil {
			alloc.FreeLeaf(d.segs[i])
			d.segs[i] = nil
		}
	}
}

// Walk calls fn for every non-zero TTE currently present, in
// ascending virtual-address order of (segment, leaf-index), so a
// caller can count actual occupancy against resident_count (§8
// invariant #1).
func (d *Dir) Walk(fn func(stidx, ptidx uint, t tte.TTE)) {
	for s, leaf := range d.segs {
		if leaf == nil {
			continue
		}
		for p, t := range leaf {
			if t != 0 {
				fn(uint(s), uint(p), t)
			}
		}
	}
}
