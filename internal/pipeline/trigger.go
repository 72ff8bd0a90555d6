package pipeline

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/range-sensor/internal/gpio"
)

// TriggerState is the scheduler's position in its cycle.
type TriggerState int32

const (
	StateWaitArm TriggerState = iota
	StatePulse
	StateRecover
)

func (s TriggerState) String() string {
	switch s {
	case StateWaitArm:
		return "WAIT_ARM"
	case StatePulse:
		return "PULSE"
	case StateRecover:
		return "RECOVER"
	}
	return "UNKNOWN"
}

// TriggerScheduler fires the sensor once per arm and then enforces the
// sensor's dead time before it may be armed again.
type TriggerScheduler struct {
	trigger    gpio.Trigger
	arm        *ArmSignal
	pulseWidth time.Duration
	recovery   time.Duration
	// beginCycle, if set, is called after the arm is taken and before the
	// pulse. The pipeline wires it to the edge timer.
	beginCycle func() uint64

	state       atomic.Int32
	pulses      atomic.Uint64
	pulseErrors atomic.Uint64
}

// NewTriggerScheduler creates a scheduler. It does not start it.
func NewTriggerScheduler(trigger gpio.Trigger, arm *ArmSignal, pulseWidth, recovery time.Duration) *TriggerScheduler {
	return &TriggerScheduler{
		trigger:    trigger,
		arm:        arm,
		pulseWidth: pulseWidth,
		recovery:   recovery,
	}
}

// Run loops WaitArm -> Pulse -> Recover until ctx is done.
func (t *TriggerScheduler) Run(ctx context.Context) error {
	failing := false
	for {
		t.state.Store(int32(StateWaitArm))
		if err := t.arm.Take(ctx); err != nil {
			return nil
		}

		t.state.Store(int32(StatePulse))
		if t.beginCycle != nil {
			t.beginCycle()
		}
		if err := t.trigger.Pulse(t.pulseWidth); err != nil {
			// No echo will follow; the renderer's timeout re-arms.
			t.pulseErrors.Add(1)
			if !failing {
				log.Printf("trigger: pulse failed: %v", err)
				failing = true
			}
		} else {
			t.pulses.Add(1)
			if failing {
				log.Printf("trigger: pulses recovered")
				failing = false
			}
		}

		t.state.Store(int32(StateRecover))
		if !sleep(ctx, t.recovery) {
			return nil
		}
	}
}

// State returns the current cycle state.
func (t *TriggerScheduler) State() TriggerState {
	return TriggerState(t.state.Load())
}

// Pulses returns the number of pulses emitted.
func (t *TriggerScheduler) Pulses() uint64 {
	return t.pulses.Load()
}

// PulseErrors returns the number of failed pulses.
func (t *TriggerScheduler) PulseErrors() uint64 {
	return t.pulseErrors.Load()
}

// sleep waits for d without spinning. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
