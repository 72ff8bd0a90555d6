package pipeline

import "context"

// ArmSignal is a binary semaphore meaning "the sensor is idle and may be
// triggered". Only the renderer gives it during steady state.
type ArmSignal struct {
	ch chan struct{}
}

// NewArmSignal creates the signal, optionally already armed.
func NewArmSignal(armed bool) *ArmSignal {
	a := &ArmSignal{ch: make(chan struct{}, 1)}
	if armed {
		a.ch <- struct{}{}
	}
	return a
}

// Take blocks until armed and disarms.
func (a *ArmSignal) Take(ctx context.Context) error {
	select {
	case <-a.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Give arms the signal. It never blocks; giving an armed signal is a no-op.
func (a *ArmSignal) Give() {
	select {
	case a.ch <- struct{}{}:
	default:
	}
}

// Armed reports whether the signal is currently armed.
func (a *ArmSignal) Armed() bool {
	return len(a.ch) == 1
}
