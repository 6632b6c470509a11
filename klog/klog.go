// Package klog provides the compile-time-gated counters and
// diagnostic dump used by the pmap/TLB core, in the style of
// biscuit's stats package: while Enabled is false, a counter
// increment is a single branch with no atomic write.
package klog

import (
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Enabled gates every counter increment and the stats dump below. It
// is a var rather than a const so that a debug build can flip it;
// every Inc call, including the one in the TLB install path, checks
// it before touching the counter.
var Enabled = false

// Counter is an atomically-updated diagnostic counter.
type Counter int64

// Inc increments the counter when diagnostics are enabled.
func (c *Counter) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Counters is the fixed set of diagnostic counters the pmap/TLB core
// maintains. Each field mirrors a counter named in spec.md (tlbflush,
// context steals, PV allocation failures, ...).
type Counters struct {
	TLBInstalls  Counter
	TLBFlushes   Counter
	TLBFlushAll  Counter
	CtxSteals    Counter
	PVAllocFails Counter
	KernGrowths  Counter
}

var printer = message.NewPrinter(language.English)

// Dump renders the counters as a locale-formatted, human-readable
// report, the way biscuit's Stats2String renders a struct of
// Counter_t/Cycles_t fields. Returns "" when diagnostics are disabled.
func (c *Counters) Dump() string {
	if !Enabled {
		return ""
	}
	return printer.Sprintf(
		"tlb installs=%d flushes=%d flush-all=%d ctx-steals=%d pv-alloc-fails=%d kern-growths=%d\n",
		c.TLBInstalls.Load(), c.TLBFlushes.Load(), c.TLBFlushAll.Load(),
		c.CtxSteals.Load(), c.PVAllocFails.Load(), c.KernGrowths.Load(),
	)
}
