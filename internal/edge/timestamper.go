// Package edge measures the interval between successive rising edges on a
// digital input line.
package edge

import (
	"sync/atomic"
	"time"
)

// Timestamper turns a stream of rising-edge instants into a published period.
//
// Edge is called from the edge-event delivery context and must stay cheap: it
// performs a handful of atomic operations and never blocks or allocates. All
// fields are single-writer (the event context) multi-reader, so lock-free
// atomics are sufficient.
type Timestamper struct {
	lastEdgeNS atomic.Int64 // monotonic instant of the most recent edge; 0 = none yet
	periodUS   atomic.Int64
	edges      atomic.Uint64
}

func New() *Timestamper {
	return &Timestamper{}
}

// Edge records a rising edge observed at the given monotonic instant.
//
// The first edge only seeds the timestamp; every later edge publishes the
// delta to the previous one. A missed edge (noise, debounce) is absorbed as a
// longer period on the next valid edge, not corrected for multiplicity.
func (t *Timestamper) Edge(now time.Duration) {
	if last := t.lastEdgeNS.Load(); last != 0 {
		t.periodUS.Store(int64((now - time.Duration(last)) / time.Microsecond))
	}
	t.lastEdgeNS.Store(int64(now))
	t.edges.Add(1)
}

// PeriodMicros returns the most recent edge-to-edge interval in microseconds,
// or 0 before the first full interval completes.
func (t *Timestamper) PeriodMicros() int64 {
	return t.periodUS.Load()
}

// LastEdge returns the monotonic instant of the most recent edge, or 0 when
// no edge has been observed yet.
func (t *Timestamper) LastEdge() time.Duration {
	return time.Duration(t.lastEdgeNS.Load())
}

// Edges returns the number of rising edges observed since startup.
func (t *Timestamper) Edges() uint64 {
	return t.edges.Load()
}
