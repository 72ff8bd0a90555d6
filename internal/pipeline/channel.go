// Package pipeline runs the measurement loop: the trigger scheduler fires
// the sensor when armed, the edge timer (fed by the GPIO event goroutine)
// produces samples, and the display renderer consumes them and re-arms.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/range-sensor/internal/logic"
)

// ErrNoEcho is returned by Receive when no sample arrives within the bound.
var ErrNoEcho = errors.New("no echo within timeout")

// DefaultCapacity is the sample channel depth.
const DefaultCapacity = 5

// SampleChannel is a bounded FIFO from the edge handler to the renderer.
// Offer never blocks; when full the newest sample is dropped.
type SampleChannel struct {
	ch      chan logic.Sample
	dropped atomic.Uint64
}

// NewSampleChannel creates a channel holding up to capacity samples.
func NewSampleChannel(capacity int) (*SampleChannel, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("sample channel capacity %d: must be at least 1", capacity)
	}
	return &SampleChannel{ch: make(chan logic.Sample, capacity)}, nil
}

// Offer enqueues s if there is room. Safe to call from the edge handler.
func (c *SampleChannel) Offer(s logic.Sample) bool {
	select {
	case c.ch <- s:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Receive waits up to timeout for the oldest sample.
// Returns ErrNoEcho on timeout, or ctx.Err() if ctx is done first.
func (c *SampleChannel) Receive(ctx context.Context, timeout time.Duration) (logic.Sample, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-c.ch:
		return s, nil
	case <-timer.C:
		return logic.Sample{}, ErrNoEcho
	case <-ctx.Done():
		return logic.Sample{}, ctx.Err()
	}
}

// Len returns the number of queued samples.
func (c *SampleChannel) Len() int {
	return len(c.ch)
}

// Cap returns the channel capacity.
func (c *SampleChannel) Cap() int {
	return cap(c.ch)
}

// Dropped returns how many samples were discarded because the channel was full.
func (c *SampleChannel) Dropped() uint64 {
	return c.dropped.Load()
}
