package pmap

import (
	"unsafe"

	"github.com/rayshifu/ibm4xxmmu/mmuhw"
	"github.com/rayshifu/ibm4xxmmu/pgtbl"
	"github.com/rayshifu/ibm4xxmmu/pmap/vmsvc"
)

// leafAllocator backs pgtbl.LeafAllocator with the VM layer's page
// allocator and zeroes new leaf pages via the cache-maintenance
// collaborator (§4.4 "lazily allocates a zero-filled leaf table"; §1
// places dcbz out of scope, so zeroing is delegated to CacheOps
// rather than reimplemented here). AllocLeaf runs NOWAIT: it always
// passes canFail=true to the VM allocator and reports failure rather
// than blocking, matching §5.
type leafAllocator struct {
	vm    vmsvc.Collaborators
	cache mmuhw.CacheOps
}

func (l *leafAllocator) AllocLeaf() (*pgtbl.Leaf, bool) {
	pa, ok := l.vm.AllocPage(true)
	if !ok {
		return nil, false
	}
	// The direct map gives us an addressable view of the page so we
	// can hand back a *Leaf backed by real (simulated) memory; in
	// production this is the identity-mapped/direct-mapped window,
	// in tests vmsvc.Fake.DirectMap returns a plain Go byte slice.
	buf := l.vm.DirectMap(pa)
	if len(buf) < int(unsafe.Sizeof(pgtbl.Leaf{})) {
		panic("pmap: direct-mapped page too small to back a leaf table")
	}
	l.cache.Zero(pa, uint32(len(buf)))
	leaf := (*pgtbl.Leaf)(unsafe.Pointer(&buf[0]))
	*leaf = pgtbl.Leaf{}
	return leaf, true
}

func (l *leafAllocator) FreeLeaf(leaf *pgtbl.Leaf) {
	*leaf = pgtbl.Leaf{}
}

var _ pgtbl.LeafAllocator = (*leafAllocator)(nil)
