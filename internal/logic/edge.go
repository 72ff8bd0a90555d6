package logic

import (
	"sync/atomic"
	"time"
)

// Sink accepts completed samples without blocking.
// Offer reports whether the sample was accepted.
type Sink interface {
	Offer(s Sample) bool
}

// EdgeTimer turns echo edge transitions into samples.
//
// Edge must only be called from one goroutine (the edge event handler).
// It never blocks: a rising edge records its timestamp, a falling edge
// produces at most one sample and makes exactly one Offer to the sink.
//
// A rise only pairs with a fall from the same cycle. BeginCycle, called
// before each trigger pulse, orphans any rise still pending from an
// earlier one.
type EdgeTimer struct {
	sink Sink

	cycle atomic.Uint64

	// Single pending rise, owned by the edge handler goroutine.
	rise      time.Duration
	riseCycle uint64
	pending   bool

	samples  atomic.Uint64
	spurious atomic.Uint64
	rejected atomic.Uint64
}

// NewEdgeTimer creates an edge timer that offers samples to sink.
func NewEdgeTimer(sink Sink) *EdgeTimer {
	return &EdgeTimer{sink: sink}
}

// Edge handles one transition of the echo input at monotonic time ts.
func (e *EdgeTimer) Edge(rising bool, ts time.Duration) {
	if rising {
		// A second rise before a fall overwrites the first.
		e.rise = ts
		e.riseCycle = e.cycle.Load()
		e.pending = true
		return
	}

	pending := e.pending
	e.pending = false
	if !pending || e.riseCycle != e.cycle.Load() {
		e.spurious.Add(1)
		return
	}

	d := ts - e.rise
	if d <= 0 {
		e.spurious.Add(1)
		return
	}

	s := NewSample(d)
	s.Cycle = e.riseCycle
	e.samples.Add(1)
	if !e.sink.Offer(s) {
		e.rejected.Add(1)
	}
}

// BeginCycle starts a new measurement cycle and returns its number.
// Safe from any goroutine.
func (e *EdgeTimer) BeginCycle() uint64 {
	return e.cycle.Add(1)
}

// Cycle returns the current measurement cycle.
func (e *EdgeTimer) Cycle() uint64 {
	return e.cycle.Load()
}

// Counts returns a snapshot of the edge counters. Safe from any goroutine.
func (e *EdgeTimer) Counts() EdgeCounts {
	return EdgeCounts{
		Samples:  e.samples.Load(),
		Spurious: e.spurious.Load(),
		Rejected: e.rejected.Load(),
	}
}
