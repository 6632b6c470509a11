// Package vmsvc declares the collaborators the pmap/TLB core consumes
// but does not own (§1 "Out of scope (external collaborators)", §6
// "Downward" interfaces): physical-segment iteration, wired-KVA
// allocation, page allocation, the VM-managed-page predicate, and the
// direct-mapped physical window zero_page/copy_page operate on.
package vmsvc

// Segment is one contiguous range of available physical memory,
// [Start, End).
type Segment struct {
	Start, End uint32
}

// Collaborators is everything the VM layer provides to this core.
// Production code backs it with the real physical-memory manager;
// tests back it with Fake.
type Collaborators interface {
	// Managed reports whether pa is a VM-managed page (PV tracking
	// applies) as opposed to e.g. device/unmanaged memory.
	Managed(pa uint32) bool

	// Segments returns the available physical memory regions known
	// at bootstrap time, in arbitrary order (bootstrap sorts them).
	Segments() []Segment

	// AllocWiredKVA reserves size bytes of page-aligned wired kernel
	// virtual address space and returns its start address.
	AllocWiredKVA(size uint32) (va uint32, ok bool)

	// AllocPage allocates one physical page on a NOWAIT policy. When
	// canFail is true, returning ok=false means the caller should
	// propagate ENOMEM; otherwise the caller panics.
	AllocPage(canFail bool) (pa uint32, ok bool)

	// FreePage releases a page obtained from AllocPage.
	FreePage(pa uint32)

	// RegisterSegment hands a post-bootstrap-trim region back to the
	// VM layer's free lists (§4.7 step 7).
	RegisterSegment(seg Segment)

	// DirectMap returns a byte slice aliasing the page containing pa
	// through the direct-mapped physical window, for zero_page/
	// copy_page.
	DirectMap(pa uint32) []byte
}
