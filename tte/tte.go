// Package tte encodes and decodes Translation Table Entries (TTEs),
// the 32-bit words stored in leaf page tables and copied into TLB-lo
// on install (§4.1 of the pmap/TLB design). The encoding is the single
// source of truth for the bit layout shared by page tables and the
// TLB write path: every other package imports this one instead of
// inlining shifts and masks of its own.
package tte

// TTE is a 32-bit translation table entry. A zero value means "no
// mapping" — every package that stores TTEs relies on this.
type TTE uint32

// Flags is the set of storage-backed protection/cacheability bits
// carried by a TTE (everything except the frame number, size and
// zone).
type Flags uint32

const (
	// WR marks the page as writable.
	WR Flags = 1 << 8
	// EX marks the page as executable.
	EX Flags = 1 << 7
	// Inhibit marks the page as cache-inhibited.
	Inhibit Flags = 1 << 6
	// WriteThrough forces write-through caching.
	WriteThrough Flags = 1 << 5
	// Guarded marks the page as guarded (no speculative access).
	Guarded Flags = 1 << 4
)

// Zone selects one of the four CPU zone-protection register classes
// a TTE can be tagged with (Z0 priv-only, Z1/Z2 per-PTE, Z3
// unconditional).
type Zone uint32

const (
	ZonePrivOnly    Zone = 0
	ZonePerPTE1     Zone = 1
	ZonePerPTE2     Zone = 2
	ZoneUncondition Zone = 3
)

const (
	zoneShift = 2
	zoneMask  = 0x3
	sizeShift = 9
	sizeMask  = 0x7
	flagsMask = Flags(WR | EX | Inhibit | WriteThrough | Guarded)
	rpnShift  = 12
)

// SizeTable maps a 3-bit size index to its page size in bytes, per
// §4.1: {1K, 4K, 16K, 64K, 256K, 1M, 4M, 16M}.
var SizeTable = [8]uint32{
	1 << 10, 4 << 10, 16 << 10, 64 << 10,
	256 << 10, 1 << 20, 4 << 20, 16 << 20,
}

// SizeIndex16K is the size index for the fixed 16 KiB user page size
// this spec standardizes on (§1).
const SizeIndex16K = 2

// New builds a TTE from a page-aligned physical address, a size
// index (0-7, indexing SizeTable), a zone, and storage flags. The
// caller is responsible for page-aligning pa to the chosen size; New
// does not round.
func New(pa uint32, sizeIndex uint, zone Zone, flags Flags) TTE {
	if sizeIndex > sizeMask {
		panic("tte: size index out of range")
	}
	rpn := pa >> rpnShift
	v := rpn<<rpnShift | uint32(sizeIndex)<<sizeShift | uint32(zone)<<zoneShift
	v |= uint32(flags & flagsMask)
	return TTE(v)
}

// PA returns the physical frame address encoded in the TTE.
func (t TTE) PA() uint32 {
	return uint32(t) &^ ((1 << rpnShift) - 1)
}

// SizeIndex returns the page-size index (0-7).
func (t TTE) SizeIndex() uint {
	return uint(uint32(t)>>sizeShift) & sizeMask
}

// Size returns the page size in bytes this TTE maps.
func (t TTE) Size() uint32 {
	return SizeTable[t.SizeIndex()]
}

// Zone returns the zone-protection class.
func (t TTE) Zone() Zone {
	return Zone(uint32(t)>>zoneShift) & zoneMask
}

// Flags returns the storage-backed protection/cacheability flags.
func (t TTE) Flags() Flags {
	return Flags(uint32(t)) & flagsMask
}

// HasFlags reports whether every bit in want is set.
func (t TTE) HasFlags(want Flags) bool {
	return t.Flags()&want == want
}

// Valid reports whether the TTE describes a mapping at all. The zero
// TTE is the only invalid value (§3 DATA MODEL).
func (t TTE) Valid() bool {
	return t != 0
}

// WithFlags returns a copy of t with flags ORed in, leaving PA/size/
// zone untouched.
func (t TTE) WithFlags(add Flags) TTE {
	return TTE(uint32(t) | uint32(add&flagsMask))
}

// ClearFlags returns a copy of t with the given flags cleared.
func (t TTE) ClearFlags(remove Flags) TTE {
	return TTE(uint32(t) &^ uint32(remove&flagsMask))
}
