package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/range-sensor/internal/display"
	"github.com/sweeney/range-sensor/internal/gpio"
	"github.com/sweeney/range-sensor/internal/logic"
)

// Sensor timing. These are properties of the HC-SR04, not tunables.
const (
	PulseWidth  = 10 * time.Microsecond
	Recovery    = 60 * time.Millisecond
	EchoTimeout = 200 * time.Millisecond
	RenderPause = 10 * time.Millisecond
)

// Timing groups the loop intervals. Tests shorten them.
type Timing struct {
	PulseWidth  time.Duration
	Recovery    time.Duration
	EchoTimeout time.Duration
	RenderPause time.Duration
}

// DefaultTiming returns the sensor's fixed timing.
func DefaultTiming() Timing {
	return Timing{
		PulseWidth:  PulseWidth,
		Recovery:    Recovery,
		EchoTimeout: EchoTimeout,
		RenderPause: RenderPause,
	}
}

// Config holds the pipeline's collaborators.
type Config struct {
	Trigger   gpio.Trigger
	Display   display.Display
	Capacity  int    // sample channel depth; 0 = DefaultCapacity
	Timing    Timing // zero value = DefaultTiming()
	Observers []Observer
	Now       func() time.Time
}

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	Pulses        uint64
	PulseErrors   uint64
	Samples       uint64
	Spurious      uint64
	Dropped       uint64
	Rendered      uint64
	Timeouts      uint64
	Stale         uint64
	DisplayErrors uint64
	Queued        int
	Armed         bool
	TriggerState  TriggerState
}

// Pipeline owns the synchronization objects and both tasks.
type Pipeline struct {
	samples  *SampleChannel
	arm      *ArmSignal
	edges    *logic.EdgeTimer
	trigger  *TriggerScheduler
	renderer *DisplayRenderer
	disp     display.Display
}

// New builds the pipeline. Any error here is fatal: the loop must not start.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Trigger == nil {
		return nil, errors.New("pipeline: trigger is required")
	}
	if cfg.Display == nil {
		return nil, errors.New("pipeline: display is required")
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	if cfg.Timing.EchoTimeout <= 0 {
		return nil, fmt.Errorf("pipeline: echo timeout %v must be positive", cfg.Timing.EchoTimeout)
	}

	samples, err := NewSampleChannel(cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	// Armed at startup so the first cycle can fire.
	arm := NewArmSignal(true)

	// Each pulse opens a cycle on the edge timer; the renderer closes it.
	edges := logic.NewEdgeTimer(samples)
	trigger := NewTriggerScheduler(cfg.Trigger, arm, cfg.Timing.PulseWidth, cfg.Timing.Recovery)
	trigger.beginCycle = edges.BeginCycle
	renderer := NewDisplayRenderer(samples, arm, cfg.Display, cfg.Timing.EchoTimeout, cfg.Timing.RenderPause, cfg.Now, cfg.Observers...)
	renderer.cycle = edges.Cycle

	return &Pipeline{
		samples:  samples,
		arm:      arm,
		edges:    edges,
		trigger:  trigger,
		renderer: renderer,
		disp:     cfg.Display,
	}, nil
}

// Edge feeds one echo transition to the edge timer. It is a gpio.EdgeHandler
// and must only be called from the GPIO event goroutine.
func (p *Pipeline) Edge(rising bool, ts time.Duration) {
	p.edges.Edge(rising, ts)
}

// Run initializes the display, then runs the trigger scheduler and the
// renderer until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.disp.Initialize(); err != nil {
		return fmt.Errorf("initialize display: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.trigger.Run(ctx) })
	g.Go(func() error { return p.renderer.Run(ctx) })
	return g.Wait()
}

// Stats returns a snapshot of all counters. Safe from any goroutine.
func (p *Pipeline) Stats() Stats {
	ec := p.edges.Counts()
	return Stats{
		Pulses:        p.trigger.Pulses(),
		PulseErrors:   p.trigger.PulseErrors(),
		Samples:       ec.Samples,
		Spurious:      ec.Spurious,
		Dropped:       p.samples.Dropped(),
		Rendered:      p.renderer.Rendered(),
		Timeouts:      p.renderer.Timeouts(),
		Stale:         p.renderer.Stale(),
		DisplayErrors: p.renderer.DisplayErrors(),
		Queued:        p.samples.Len(),
		Armed:         p.arm.Armed(),
		TriggerState:  p.trigger.State(),
	}
}
