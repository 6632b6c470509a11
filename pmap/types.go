// Package pmap implements the pmap API surface (§4.6), bootstrap
// (§4.7), the TLB-miss entry point (§4.8... actually §4.6 tlbmiss)
// and kernel growth (§4.8), composing the tte/tlb/ctx/pgtbl/pv
// packages into the single owned "MMU service" object the design
// notes in §9 call for.
package pmap

import (
	"sync"

	"github.com/rayshifu/ibm4xxmmu/ctx"
	"github.com/rayshifu/ibm4xxmmu/pgtbl"
)

// Pmap is an address space (§3 "Pmap"). The mutex models the spl-VM
// critical section every mutating operation takes (§5); this is a
// single-CPU design so a plain mutex suffices where the original
// uses an interrupt-priority raise.
type Pmap struct {
	mu sync.Mutex

	refcount int
	ctxID    uint
	dir      pgtbl.Dir

	residentCount int
	wiredCount    int

	kernel bool
}

// Ctx implements ctx.Owner.
func (pm *Pmap) Ctx() uint { return pm.ctxID }

// SetCtx implements ctx.Owner.
func (pm *Pmap) SetCtx(c uint) { pm.ctxID = c }

// ResidentCount returns the number of non-zero TTEs across all leaf
// tables (§3 invariant, §8 property #1).
func (pm *Pmap) ResidentCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.residentCount
}

// WiredCount returns the number of wired PV entries owned by this
// pmap (§8 property #2).
func (pm *Pmap) WiredCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.wiredCount
}

// RefCount returns the current reference count.
func (pm *Pmap) RefCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.refcount
}

var _ ctx.Owner = (*Pmap)(nil)
