package klog

import (
	"io"

	"github.com/google/pprof/profile"
)

// EvictionRecorder accumulates TLB victim-selection events as pprof
// samples, one location per (context, reprieved-as-stack-guard)
// pair. It exists to let a developer chasing the open question in
// §9 (the stack-page guard only protects one of possibly several live
// kernel stack pages at eviction time) visualize which contexts are
// repeatedly reprieved, using any standard pprof viewer.
type EvictionRecorder struct {
	prof      *profile.Profile
	locations map[evictKey]*profile.Location
	functions map[evictKey]*profile.Function
	nextID    uint64
}

type evictKey struct {
	ctx        uint
	stackGuard bool
}

// NewEvictionRecorder builds an empty recorder. Disabled builds never
// construct one.
func NewEvictionRecorder() *EvictionRecorder {
	return &EvictionRecorder{
		prof: &profile.Profile{
			SampleType: []*profile.ValueType{{Type: "evictions", Unit: "count"}},
			PeriodType: &profile.ValueType{Type: "eviction", Unit: "count"},
			Period:     1,
		},
		locations: make(map[evictKey]*profile.Location),
		functions: make(map[evictKey]*profile.Function),
	}
}

// Record logs one victim-selection pass outcome for the given context.
func (r *EvictionRecorder) Record(ctx uint, stackGuardReprieve bool) {
	if !Enabled || r == nil {
		return
	}
	key := evictKey{ctx: ctx, stackGuard: stackGuardReprieve}
	loc, ok := r.locations[key]
	if !ok {
		r.nextID++
		fn := &profile.Function{
			ID:   r.nextID,
			Name: evictLabel(key),
		}
		r.nextID++
		loc = &profile.Location{
			ID:   r.nextID,
			Line: []profile.Line{{Function: fn}},
		}
		r.functions[key] = fn
		r.locations[key] = loc
		r.prof.Function = append(r.prof.Function, fn)
		r.prof.Location = append(r.prof.Location, loc)
	}
	r.prof.Sample = append(r.prof.Sample, &profile.Sample{
		Location: []*profile.Location{loc},
		Value:    []int64{1},
	})
}

func evictLabel(k evictKey) string {
	if k.stackGuard {
		return "reprieve(stack-guard)"
	}
	return "evict"
}

// Write emits the accumulated profile in pprof's gzip-compressed wire
// format.
func (r *EvictionRecorder) Write(w io.Writer) error {
	if r == nil {
		return nil
	}
	return r.prof.Write(w)
}
