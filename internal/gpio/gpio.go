// Package gpio provides the sensor's trigger output and echo edge input
// with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Trigger drives the sensor's trigger input.
type Trigger interface {
	// Pulse drives the trigger line high for width, then low.
	// The wait is a busy-wait: scheduler sleeps are far too coarse.
	Pulse(width time.Duration) error

	// Close releases GPIO resources.
	Close() error
}

// EdgeHandler receives echo line transitions. ts is a monotonic timestamp
// with microsecond or better resolution. Handlers run on the event
// goroutine and must not block.
type EdgeHandler func(rising bool, ts time.Duration)

// Pin definitions (BCM numbering)
const (
	DefaultChip       = "gpiochip0"
	DefaultPinTrigger = 23
	DefaultPinEcho    = 24
)

// BusyWait spins on the monotonic clock until d has elapsed.
func BusyWait(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
