package gpio

import (
	"sync"
	"time"
)

// FakeTrigger is a test double that records trigger pulses.
type FakeTrigger struct {
	mu sync.Mutex

	// pulses holds the width of every successful pulse, in order.
	pulses []time.Duration

	// closed tracks if Close was called.
	closed bool

	// PulseError, if set, will be returned by Pulse.
	PulseError error

	// OnPulse, if set, is called after each successful pulse with the
	// 1-based pulse number. Tests use it to inject echo edges.
	OnPulse func(n int)
}

// NewFakeTrigger creates a FakeTrigger.
func NewFakeTrigger() *FakeTrigger {
	return &FakeTrigger{}
}

// Pulse records the pulse width and runs the OnPulse hook.
func (f *FakeTrigger) Pulse(width time.Duration) error {
	f.mu.Lock()
	if f.PulseError != nil {
		err := f.PulseError
		f.mu.Unlock()
		return err
	}
	f.pulses = append(f.pulses, width)
	n := len(f.pulses)
	hook := f.OnPulse
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Pulses returns a copy of the recorded pulse widths.
func (f *FakeTrigger) Pulses() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.pulses...)
}

// Count returns the number of recorded pulses.
func (f *FakeTrigger) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pulses)
}

// SetPulseError sets the error returned by Pulse.
func (f *FakeTrigger) SetPulseError(err error) {
	f.mu.Lock()
	f.PulseError = err
	f.mu.Unlock()
}

// Close marks the trigger as closed.
func (f *FakeTrigger) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeTrigger) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded pulses.
func (f *FakeTrigger) Reset() {
	f.mu.Lock()
	f.pulses = nil
	f.closed = false
	f.PulseError = nil
	f.mu.Unlock()
}

// FakeEcho generates echo edges with synthetic monotonic timestamps.
type FakeEcho struct {
	mu      sync.Mutex
	handler EdgeHandler
	now     time.Duration
}

// NewFakeEcho creates a FakeEcho that delivers edges to handler.
func NewFakeEcho(handler EdgeHandler) *FakeEcho {
	return &FakeEcho{handler: handler}
}

// Echo emits a rising edge after delay and a falling edge width later.
// The synthetic clock advances accordingly.
func (f *FakeEcho) Echo(delay, width time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += delay
	f.handler(true, f.now)
	f.now += width
	f.handler(false, f.now)
}

// Edge emits a single edge after delay.
func (f *FakeEcho) Edge(rising bool, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += delay
	f.handler(rising, f.now)
}

// Now returns the synthetic monotonic clock.
func (f *FakeEcho) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}
