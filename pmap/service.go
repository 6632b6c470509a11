package pmap

import (
	"github.com/rayshifu/ibm4xxmmu/ctx"
	"github.com/rayshifu/ibm4xxmmu/defs"
	"github.com/rayshifu/ibm4xxmmu/klog"
	"github.com/rayshifu/ibm4xxmmu/mmuhw"
	"github.com/rayshifu/ibm4xxmmu/pmap/vmsvc"
	"github.com/rayshifu/ibm4xxmmu/pv"
	"github.com/rayshifu/ibm4xxmmu/tlb"
)

// Config holds the fixed-size-table tunables named throughout §3/§4:
// no dynamic config file exists for this core (SPEC_FULL.md "Ambient
// Stack / Configuration") — every tunable is a constant the service
// is built with once, at boot.
type Config struct {
	NumCtx uint // size of the context table (256)
	MinCtx uint // first stealable context (2)
	NTLB   int  // hardware TLB slot count (64)

	KernelMinVA uint32 // VM_MIN_KERNEL_ADDRESS
	KernelMaxVA uint32 // VM_MAX_KERNEL_ADDRESS

	// DirectMapSizeIndex is the tte size index used to synthesize
	// the 16 MiB direct-map TTE in tlbmiss for physical-window VAs
	// below KernelMinVA.
	DirectMapSizeIndex uint

	PVSlabCapacity int
	NumPhysPages   int
	BaseFrame      uint32

	// MsgBufSize is the number of trailing bytes reserved out of the
	// largest available region for the message buffer at bootstrap
	// (§4.7 step 6). Zero disables the reservation.
	MsgBufSize uint32

	// CacheLineSize sizes the stride procwr uses to walk [va, va+len)
	// issuing per-line cache-maintenance calls. Zero defaults to 32.
	CacheLineSize uint32
}

// Service is the single owned MMU service object (§9): it holds the
// TLB shadow, context table, kernel pmap, PV table and slab, in a
// fixed initialization order (tlb, ctx, kernel pmap, slab, PV).
// A kernel links exactly one Service.
type Service struct {
	cfg Config

	tlb    *tlb.Engine
	ctxTbl *ctx.Table
	pv     *pv.Table[*Pmap]
	slab   *pvSlab
	leaf   *leafAllocator

	vm    vmsvc.Collaborators
	cache mmuhw.CacheOps
	cpu   mmuhw.CpuMmu

	kernel *Pmap

	Stats klog.Counters

	bootstrapped  bool
	growWatermark uint32
	kernmap       uint32
}

// NewService wires the component packages together. It does not yet
// perform bootstrap (§4.7): call Bootstrap, then Init, in order.
func NewService(cfg Config, cpu mmuhw.CpuMmu, vm vmsvc.Collaborators, cache mmuhw.CacheOps) *Service {
	s := &Service{cfg: cfg, vm: vm, cache: cache, cpu: cpu}
	s.tlb = tlb.New(cpu, cfg.NTLB)
	s.ctxTbl = ctx.New(s.tlb, &s.Stats, cfg.MinCtx, cfg.NumCtx)
	s.leaf = &leafAllocator{vm: vm, cache: cache}
	s.kernel = &Pmap{kernel: true}
	return s
}

// Kernel returns the distinguished kernel pmap singleton.
func (s *Service) Kernel() *Pmap { return s.kernel }

// TLB exposes the TLB engine for tests and diagnostics.
func (s *Service) TLB() *tlb.Engine { return s.tlb }

// Create allocates a new address space: refcount=1, ctx=0, all
// segments empty (§4.6 "create").
func (s *Service) Create() *Pmap {
	return &Pmap{refcount: 1}
}

// Reference increments pm's reference count (§4.6 "reference").
func (s *Service) Reference(pm *Pmap) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.refcount++
}

// Destroy decrements pm's reference count; at zero it frees every
// leaf table, frees the context if any, and asserts the pmap is
// fully unmapped (§4.6 "destroy", §8 invariants #1 and #2).
func (s *Service) Destroy(pm *Pmap) {
	pm.mu.Lock()
	pm.refcount--
	if pm.refcount > 0 {
		pm.mu.Unlock()
		return
	}
	if pm.refcount < 0 {
		panic("pmap: destroy called on a pmap with refcount already zero")
	}

	pm.dir.FreeAll(s.leaf)
	if pm.ctxID != 0 {
		s.ctxTbl.Free(pm)
	}
	if pm.residentCount != 0 || pm.wiredCount != 0 {
		pm.mu.Unlock()
		panic("pmap: destroy invariant violated: residentCount/wiredCount not zero")
	}
	pm.mu.Unlock()
}

// failOrPanic implements §7's ENOMEM policy: return the error when
// CANFAIL is set, otherwise panic.
func failOrPanic(flags defs.EnterFlags, err defs.Err_t) defs.Err_t {
	if flags&defs.CANFAIL != 0 {
		return err
	}
	panic("pmap: allocation failure without CANFAIL")
}
