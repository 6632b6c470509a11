package pmap

// Activate assigns pm a hardware context if it does not already have
// one, stealing from another pmap if the table is full (§4.3). This
// corresponds to the original kernel's pmap_activate, called by the
// scheduler at context-switch time; it is not itself one of §4.6's
// operations, but enter's "install into TLB" step is meaningless for
// a pmap with no context, so something upstream of enter must call
// this first.
func (s *Service) Activate(pm *Pmap) uint {
	if c := pm.Ctx(); c != 0 {
		return c
	}
	return s.ctxTbl.Alloc(pm)
}

// Deactivate releases pm's hardware context, flushing its TLB
// entries. Freeing the kernel pmap's context is forbidden and panics,
// matching ctx.Table.Free.
func (s *Service) Deactivate(pm *Pmap) {
	s.ctxTbl.Free(pm)
}
