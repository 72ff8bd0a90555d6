package pipeline

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/range-sensor/internal/display"
	"github.com/sweeney/range-sensor/internal/logic"
)

// Observer is told about every completed cycle. Observe runs on the
// renderer goroutine before the sensor is re-armed and must not block.
type Observer interface {
	Observe(r logic.Reading)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r logic.Reading)

// Observe calls f(r).
func (f ObserverFunc) Observe(r logic.Reading) {
	f(r)
}

// Screen layout
const (
	headerText = "Distance:"
	headerY    = 0
	valueY     = 10
	barY       = 20
)

// DisplayRenderer drains the sample channel, draws each reading and
// re-arms the trigger scheduler.
type DisplayRenderer struct {
	samples   *SampleChannel
	arm       *ArmSignal
	disp      display.Display
	timeout   time.Duration
	pause     time.Duration
	observers []Observer
	now       func() time.Time

	// cycle, if set, reports the edge timer's current cycle. Samples from
	// a cycle the renderer already closed are late echoes and are dropped.
	cycle func() uint64
	done  uint64

	rendered      atomic.Uint64
	timeouts      atomic.Uint64
	stale         atomic.Uint64
	displayErrors atomic.Uint64
}

// NewDisplayRenderer creates a renderer. It does not start it.
func NewDisplayRenderer(samples *SampleChannel, arm *ArmSignal, disp display.Display, timeout, pause time.Duration, now func() time.Time, observers ...Observer) *DisplayRenderer {
	if now == nil {
		now = time.Now
	}
	return &DisplayRenderer{
		samples:   samples,
		arm:       arm,
		disp:      disp,
		timeout:   timeout,
		pause:     pause,
		observers: observers,
		now:       now,
	}
}

// Run consumes samples until ctx is done. Every cycle ends by giving the
// arm signal, whether a sample arrived or the wait timed out.
func (r *DisplayRenderer) Run(ctx context.Context) error {
	silent := false
	for {
		s, err := r.receive(ctx)
		switch {
		case err == nil:
			if silent {
				log.Printf("renderer: echo restored (%.2f cm)", s.CM)
				silent = false
			}
			r.rendered.Add(1)
			r.show(logic.Reading{Timestamp: r.now(), Sample: s, OK: true})
		case errors.Is(err, ErrNoEcho):
			if !silent {
				log.Printf("renderer: no echo within %v, re-arming", r.timeout)
				silent = true
			}
			if r.cycle != nil {
				r.done = r.cycle()
			}
			r.timeouts.Add(1)
			r.show(logic.Reading{Timestamp: r.now()})
		default:
			return nil
		}

		r.arm.Give()

		if !sleep(ctx, r.pause) {
			return nil
		}
	}
}

// receive waits up to the echo bound for a sample belonging to an open
// cycle, discarding late ones.
func (r *DisplayRenderer) receive(ctx context.Context) (logic.Sample, error) {
	deadline := time.Now().Add(r.timeout)
	for {
		s, err := r.samples.Receive(ctx, time.Until(deadline))
		if err != nil || r.cycle == nil {
			return s, err
		}
		if s.Cycle > r.done {
			r.done = s.Cycle
			return s, nil
		}
		if r.stale.Add(1) == 1 {
			log.Printf("renderer: discarded late echo from cycle %d (%.2f cm)", s.Cycle, s.CM)
		}
	}
}

func (r *DisplayRenderer) show(rd logic.Reading) {
	r.disp.ClearBuffer()
	r.disp.DrawText(0, headerY, 1, headerText)
	if rd.OK {
		r.disp.DrawText(0, valueY, 1, logic.FormatDistance(rd.Sample.CM))
		r.disp.DrawLine(0, barY, int16(logic.BarLength(rd.Sample.CM)), barY)
	} else {
		r.disp.DrawText(0, valueY, 1, logic.NoReadingText)
	}
	if err := r.disp.Present(); err != nil {
		if r.displayErrors.Add(1) == 1 {
			log.Printf("renderer: present failed: %v", err)
		}
	}

	for _, o := range r.observers {
		o.Observe(rd)
	}
}

// Rendered returns the number of samples rendered.
func (r *DisplayRenderer) Rendered() uint64 {
	return r.rendered.Load()
}

// Timeouts returns the number of missing-echo timeouts.
func (r *DisplayRenderer) Timeouts() uint64 {
	return r.timeouts.Load()
}

// Stale returns the number of late samples discarded.
func (r *DisplayRenderer) Stale() uint64 {
	return r.stale.Load()
}

// DisplayErrors returns the number of failed presents.
func (r *DisplayRenderer) DisplayErrors() uint64 {
	return r.displayErrors.Load()
}
