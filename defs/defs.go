// Package defs holds the error codes and small shared constants used
// across the pmap/TLB core.
package defs

// Err_t is a kernel-style error code: zero is success, a non-zero
// value (one of the positive constants below) names a failure. Soft failures (ENOMEM under CANFAIL) are
// returned as values; programmer errors panic instead of returning
// an Err_t (see ERROR HANDLING DESIGN in spec.md).
type Err_t int

const (
	ENOMEM Err_t = 12
	EINVAL Err_t = 22
	EFAULT Err_t = 14
	ENXIO  Err_t = 6
)

// EnterFlags controls the behavior of enter-like pmap operations.
type EnterFlags uint

const (
	// CANFAIL asks enter/enter_pv to return ENOMEM on allocation
	// failure instead of panicking.
	CANFAIL EnterFlags = 1 << iota
	// WIRED marks the mapping as wired: it contributes to the owning
	// pmap's wired_count and enter does not install it into the TLB.
	// page_protect/check_attr treat wired and unwired mappings alike.
	WIRED
)

// Prot is a protection bitmask, independent of the TTE encoding so
// that callers never need to know the wire format.
type Prot uint

const (
	PROT_NONE  Prot = 0
	PROT_READ  Prot = 1 << 0
	PROT_WRITE Prot = 1 << 1
	PROT_EXEC  Prot = 1 << 2
)
