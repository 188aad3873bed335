package dataplane

import "sync/atomic"

// Counters are the per-core packet counters the agent exposes through
// its /status endpoint (read by `chainagent status`) and its shutdown
// summary log; they are not registered as Prometheus metrics. All fields are updated with atomic ops from the core's own
// goroutine and read from anywhere, so no lock is needed.
type Counters struct {
	Received     uint64
	Transmitted  uint64
	Dropped      uint64
	Aborted      uint64
	Passed       uint64
	Tailcalled   uint64
	Upcalled     uint64
	HeadroomDrop uint64 // malformed/missing upcall metadata
}

func (c *Counters) addReceived(n uint64)    { atomic.AddUint64(&c.Received, n) }
func (c *Counters) addTransmitted(n uint64) { atomic.AddUint64(&c.Transmitted, n) }
func (c *Counters) incDropped()             { atomic.AddUint64(&c.Dropped, 1) }
func (c *Counters) incAborted()             { atomic.AddUint64(&c.Aborted, 1) }
func (c *Counters) incPassed()              { atomic.AddUint64(&c.Passed, 1) }
func (c *Counters) incTailcalled()          { atomic.AddUint64(&c.Tailcalled, 1) }
func (c *Counters) incUpcalled()            { atomic.AddUint64(&c.Upcalled, 1) }
func (c *Counters) incHeadroomDrop()        { atomic.AddUint64(&c.HeadroomDrop, 1) }

// Snapshot is a point-in-time copy safe to print or serialize.
type Snapshot struct {
	Received, Transmitted, Dropped, Aborted, Passed, Tailcalled, Upcalled, HeadroomDrop uint64
}

// Load takes a consistent-enough snapshot for reporting purposes; exact
// cross-field consistency isn't required since these are independent
// monotonic counters.
func (c *Counters) Load() Snapshot {
	return Snapshot{
		Received:     atomic.LoadUint64(&c.Received),
		Transmitted:  atomic.LoadUint64(&c.Transmitted),
		Dropped:      atomic.LoadUint64(&c.Dropped),
		Aborted:      atomic.LoadUint64(&c.Aborted),
		Passed:       atomic.LoadUint64(&c.Passed),
		Tailcalled:   atomic.LoadUint64(&c.Tailcalled),
		Upcalled:     atomic.LoadUint64(&c.Upcalled),
		HeadroomDrop: atomic.LoadUint64(&c.HeadroomDrop),
	}
}
