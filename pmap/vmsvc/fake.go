package vmsvc

// Fake is a deterministic, in-process Collaborators double grounded
// on biscuit's Physmem_t free-list style (biscuit/src/mem/mem.go):
// a bump allocator over a fixed byte arena standing in for real
// physical memory, with no dependency on the host's actual RAM.
type Fake struct {
	segs     []Segment
	managed  map[uint32]bool
	nextPage uint32
	pageSize uint32
	freed    map[uint32]bool
	kvaNext  uint32
	arena    map[uint32][]byte
	failAlloc bool

	registered []Segment
}

// NewFake builds a Fake covering one segment [base, base+size) of
// manageable pages, each pageSize bytes.
func NewFake(base, size, pageSize uint32) *Fake {
	f := &Fake{
		segs:     []Segment{{Start: base, End: base + size}},
		managed:  make(map[uint32]bool),
		nextPage: base,
		pageSize: pageSize,
		freed:    make(map[uint32]bool),
		kvaNext:  0x80000000,
		arena:    make(map[uint32][]byte),
	}
	for pa := base; pa < base+size; pa += pageSize {
		f.managed[pa] = true
	}
	return f
}

func (f *Fake) Managed(pa uint32) bool {
	aligned := pa &^ (f.pageSize - 1)
	return f.managed[aligned]
}

func (f *Fake) Segments() []Segment { return f.segs }

func (f *Fake) AllocWiredKVA(size uint32) (uint32, bool) {
	va := f.kvaNext
	f.kvaNext += size
	return va, true
}

func (f *Fake) AllocPage(canFail bool) (uint32, bool) {
	if f.failAlloc {
		if canFail {
			return 0, false
		}
		panic("vmsvc/fake: page allocator exhausted")
	}
	for pa, free := range f.freed {
		if free {
			f.freed[pa] = false
			return pa, true
		}
	}
	for _, s := range f.segs {
		if f.nextPage < s.End {
			pa := f.nextPage
			f.nextPage += f.pageSize
			return pa, true
		}
	}
	if canFail {
		return 0, false
	}
	panic("vmsvc/fake: page allocator exhausted")
}

func (f *Fake) FreePage(pa uint32) {
	f.freed[pa] = true
}

// SetFailAlloc forces subsequent AllocPage calls to fail, for testing
// the ENOMEM/panic paths.
func (f *Fake) SetFailAlloc(fail bool) { f.failAlloc = fail }

func (f *Fake) RegisterSegment(seg Segment) {
	f.registered = append(f.registered, seg)
}

// Registered returns the segments handed to RegisterSegment, for
// bootstrap assertions in tests.
func (f *Fake) Registered() []Segment { return f.registered }

func (f *Fake) DirectMap(pa uint32) []byte {
	aligned := pa &^ (f.pageSize - 1)
	buf, ok := f.arena[aligned]
	if !ok {
		buf = make([]byte, f.pageSize)
		f.arena[aligned] = buf
	}
	return buf
}
