// Package pv implements the physical-to-virtual reverse map (§4.5): a
// per-frame singly linked list of (pmap, va, wired) entries plus a
// parallel REF/CHG attribute byte per frame.
//
// The pmap identity is a type parameter rather than a concrete type
// so this package never imports the pmap package — breaking the
// pmap<->PV cycle the same way §9's design notes break pmap<->ctx
// (ctxbusy[] as a non-owning index; here, P is compared with ==
// rather than held as an owning reference).
package pv

const pageShift = 14 // 16 KiB pages, matching pgtbl's offBits.

// Attr is the per-frame REF/CHG attribute byte.
type Attr uint8

const (
	Ref Attr = 1 << iota
	Chg
)

// Allocator supplies PV chain nodes on a NOWAIT policy (§5): the slab
// pool either succeeds immediately or fails immediately.
type Allocator[P comparable] interface {
	Alloc() (*Node[P], bool)
	Free(*Node[P])
}

// Node is one PV chain entry beyond the header.
type Node[P comparable] struct {
	Pm    P
	Va    uint32
	Wired bool
	next  *Node[P]
}

// header is the per-frame PV list head, stored inline (not behind a
// pointer) in the flat array so that "no mapping" costs nothing
// beyond the zero value (§3: "A header with pmap=null means no
// mapping for this frame").
type header[P comparable] struct {
	Node[P]
}

func (h *header[P]) empty() bool {
	var zero P
	return h.Pm == zero
}

// Table is the reverse map over a contiguous range of physical
// frames starting at baseFrame (the frame number of the first
// physical page managed).
type Table[P comparable] struct {
	headers   []header[P]
	attrs     []Attr
	alloc     Allocator[P]
	baseFrame uint32
}

// New builds a Table covering nframes frames starting at baseFrame
// (pa >> 14 of the first managed page).
func New[P comparable](nframes int, baseFrame uint32, alloc Allocator[P]) *Table[P] {
	return &Table[P]{
		headers:   make([]header[P], nframes),
		attrs:     make([]Attr, nframes),
		alloc:     alloc,
		baseFrame: baseFrame,
	}
}

func (t *Table[P]) frameIndex(pa uint32) int {
	idx := int(pa>>pageShift) - int(t.baseFrame)
	if idx < 0 || idx >= len(t.headers) {
		panic("pv: physical address outside the managed range")
	}
	return idx
}

// Enter registers (pm, va) against the frame containing pa. If the
// header is empty it is populated directly; otherwise a new node is
// linked in after the header. On slab exhaustion: canFail requests
// ENOMEM-style failure (returns false); otherwise Enter panics
// (§4.5, §7).
func (t *Table[P]) Enter(pm P, va, pa uint32, wired, canFail bool) bool {
	idx := t.frameIndex(pa)
	h := &t.headers[idx]
	if h.empty() {
		h.Pm, h.Va, h.Wired, h.next = pm, va, wired, nil
		return true
	}
	n, ok := t.alloc.Alloc()
	if !ok {
		if canFail {
			return false
		}
		panic("pv: slab pool exhausted")
	}
	n.Pm, n.Va, n.Wired, n.next = pm, va, wired, h.next
	h.next = n
	return true
}

// Remove deletes the (pm, va) entry for the frame containing pa, if
// present, and reports whether it was wired. A missing entry is a
// silent no-op (§4.5: "supports unmanaged pages").
func (t *Table[P]) Remove(pm P, va, pa uint32) (wasWired, found bool) {
	idx := t.frameIndex(pa)
	h := &t.headers[idx]
	if h.empty() {
		return false, false
	}
	if h.Pm == pm && h.Va == va {
		wasWired = h.Wired
		if h.next != nil {
			n := h.next
			h.Node = *n
			t.alloc.Free(n)
		} else {
			h.Node = Node[P]{}
		}
		return wasWired, true
	}
	prev := &h.Node
	for cur := h.next; cur != nil; prev, cur = cur, cur.next {
		if cur.Pm == pm && cur.Va == va {
			wasWired = cur.Wired
			prev.next = cur.next
			t.alloc.Free(cur)
			return wasWired, true
		}
	}
	return false, false
}

// SetWired updates the wired flag of the (pm, va) entry for pa,
// returning whether it was found and its previous wired state — used
// by unwire (§4.6).
func (t *Table[P]) SetWired(pm P, va, pa uint32, wired bool) (prevWired, found bool) {
	idx := t.frameIndex(pa)
	h := &t.headers[idx]
	if !h.empty() && h.Pm == pm && h.Va == va {
		prevWired, h.Wired = h.Wired, wired
		return prevWired, true
	}
	for cur := h.next; cur != nil; cur = cur.next {
		if cur.Pm == pm && cur.Va == va {
			prevWired, cur.Wired = cur.Wired, wired
			return prevWired, true
		}
	}
	return false, false
}

// Walk visits every (pm, va, wired) entry mapping the frame
// containing pa. It snapshots the whole chain before invoking fn on
// any of it, so fn may safely call Remove on the current entry — the
// use case is page_protect walking the PV list while calling back
// into protect(), which can shrink the very chain being walked
// (§4.6). A snapshot is required rather than just capturing each
// node's next pointer ahead of the callback: removing the header
// entry promotes its next node into the header slot in place, so a
// callback-triggered Remove on the header rewrites h.next out from
// under an in-progress walk before the loop ever reads it.
func (t *Table[P]) Walk(pa uint32, fn func(pm P, va uint32, wired bool)) {
	idx := t.frameIndex(pa)
	h := &t.headers[idx]
	if h.empty() {
		return
	}
	type entry struct {
		pm    P
		va    uint32
		wired bool
	}
	entries := []entry{{h.Pm, h.Va, h.Wired}}
	for cur := h.next; cur != nil; cur = cur.next {
		entries = append(entries, entry{cur.Pm, cur.Va, cur.Wired})
	}
	for _, e := range entries {
		fn(e.pm, e.va, e.wired)
	}
}

// Attr returns the current REF/CHG byte for the frame containing pa.
func (t *Table[P]) Attr(pa uint32) Attr {
	return t.attrs[t.frameIndex(pa)]
}

// OrAttr ORs bits into the frame's attribute byte (set on install).
func (t *Table[P]) OrAttr(pa uint32, bits Attr) {
	t.attrs[t.frameIndex(pa)] |= bits
}

// TestAndClear returns the bits of mask currently set for pa, then
// clears them if clear is true (§4.6 check_attr).
func (t *Table[P]) TestAndClear(pa uint32, mask Attr, clear bool) Attr {
	idx := t.frameIndex(pa)
	got := t.attrs[idx] & mask
	if clear {
		t.attrs[idx] &^= mask
	}
	return got
}
