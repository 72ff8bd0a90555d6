//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealPins drives the trigger line and watches the echo line on actual
// hardware using the Linux GPIO character device.
type RealPins struct {
	chip    *gpiocdev.Chip
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
	pinEcho int
}

// NewRealPins opens the chip and requests the trigger line as an output,
// driven low. The echo line is requested by Watch.
func NewRealPins(chipName string, pinTrigger, pinEcho int) (*RealPins, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	trigLine, err := chip.RequestLine(pinTrigger, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", pinTrigger, err)
	}

	return &RealPins{
		chip:    chip,
		trigger: trigLine,
		pinEcho: pinEcho,
	}, nil
}

// Watch requests the echo line as an input with pull-down reporting both
// edges to onEdge. Edge timestamps come from the kernel's monotonic clock,
// taken in interrupt context. Events are delivered on a single goroutine.
func (r *RealPins) Watch(onEdge EdgeHandler) error {
	if r.echo != nil {
		return fmt.Errorf("echo pin %d already watched", r.pinEcho)
	}
	handler := func(evt gpiocdev.LineEvent) {
		onEdge(evt.Type == gpiocdev.LineEventRisingEdge, evt.Timestamp)
	}
	echoLine, err := r.chip.RequestLine(r.pinEcho,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		return fmt.Errorf("request echo pin %d: %w", r.pinEcho, err)
	}
	r.echo = echoLine
	return nil
}

// Pulse drives the trigger high for width, then low.
func (r *RealPins) Pulse(width time.Duration) error {
	if err := r.trigger.SetValue(1); err != nil {
		return fmt.Errorf("set trigger high: %w", err)
	}
	BusyWait(width)
	if err := r.trigger.SetValue(0); err != nil {
		return fmt.Errorf("set trigger low: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures both lines to input with pull-down (matching Pi boot
// defaults) before closing so the sensor is left in a quiet state.
func (r *RealPins) Close() error {
	var errs []error

	if r.echo != nil {
		if err := r.echo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close echo pin: %w", err))
		}
	}
	if r.trigger != nil {
		if err := r.trigger.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure trigger pin: %w", err))
		}
		if err := r.trigger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trigger pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
