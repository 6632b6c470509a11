package mmuhw

// Production is the hardware CpuMmu implementation. Its methods are
// thin Go wrappers around board-specific assembly stubs (tlbwe,
// tlbsx, mtspr PID, mtmsr/mfmsr) that live outside this module's
// scope — §1 places "the trap entry assembly" among the external
// collaborators this core does not own. Production exists so that
// callers can depend on the CpuMmu interface unconditionally; on a
// host with no such stubs linked in, its methods panic rather than
// silently doing nothing.
type Production struct {
	// Asm holds the assembly entry points. A real kernel build
	// supplies all five; tests use mmuhw.Fake instead of Production.
	Asm AsmStubs
}

// AsmStubs is the set of assembly trampolines Production delegates
// to. Each corresponds to one of the "irreducible CPU primitives"
// named in §9.
type AsmStubs struct {
	WriteSlot      func(slot int, ctx uint, hi, lo uint32)
	ReadSlot       func(slot int) (hi, lo uint32)
	InvalidateSlot func(slot int, debug bool)
	Probe          func(ctx uint, va uint32) (slot int, ok bool)
	SetPID         func(ctx uint) (prev uint)
}

func (p *Production) WriteSlot(slot int, ctx uint, hi, lo uint32) {
	p.mustStubs()
	p.Asm.WriteSlot(slot, ctx, hi, lo)
}

func (p *Production) ReadSlot(slot int) (uint32, uint32) {
	p.mustStubs()
	return p.Asm.ReadSlot(slot)
}

func (p *Production) InvalidateSlot(slot int, debug bool) {
	p.mustStubs()
	p.Asm.InvalidateSlot(slot, debug)
}

func (p *Production) Probe(ctx uint, va uint32) (int, bool) {
	p.mustStubs()
	return p.Asm.Probe(ctx, va)
}

func (p *Production) SetPID(ctx uint) uint {
	p.mustStubs()
	return p.Asm.SetPID(ctx)
}

func (p *Production) mustStubs() {
	if p.Asm.WriteSlot == nil || p.Asm.ReadSlot == nil || p.Asm.InvalidateSlot == nil ||
		p.Asm.Probe == nil || p.Asm.SetPID == nil {
		panic("mmuhw: Production used without board-specific assembly stubs wired in")
	}
}
