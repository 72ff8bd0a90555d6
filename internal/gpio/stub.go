//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(chipName string, pinTrigger, pinEcho int) (*RealPins, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Watch is not implemented on non-Linux platforms.
func (r *RealPins) Watch(onEdge EdgeHandler) error {
	return errors.New("gpio: not supported")
}

// Pulse is not implemented on non-Linux platforms.
func (r *RealPins) Pulse(width time.Duration) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealPins) Close() error {
	return nil
}
