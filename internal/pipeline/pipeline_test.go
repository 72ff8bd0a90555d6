package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/range-sensor/internal/display"
	"github.com/sweeney/range-sensor/internal/gpio"
	"github.com/sweeney/range-sensor/internal/logic"
)

var fastTiming = Timing{
	PulseWidth:  PulseWidth,
	Recovery:    time.Millisecond,
	EchoTimeout: 50 * time.Millisecond,
	RenderPause: time.Millisecond,
}

type failingDisplay struct {
	*display.FakeDisplay
}

func (failingDisplay) Initialize() error {
	return errors.New("no panel on bus")
}

func TestNewValidation(t *testing.T) {
	trig := gpio.NewFakeTrigger()
	disp := display.NewFakeDisplay()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no trigger", Config{Display: disp}},
		{"no display", Config{Trigger: trig}},
		{"negative capacity", Config{Trigger: trig, Display: disp, Capacity: -1}},
		{"zero timeout", Config{Trigger: trig, Display: disp, Timing: Timing{Recovery: time.Millisecond}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	p, err := New(Config{Trigger: gpio.NewFakeTrigger(), Display: display.NewFakeDisplay()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.samples.Cap() != DefaultCapacity {
		t.Errorf("capacity: got %d, want %d", p.samples.Cap(), DefaultCapacity)
	}
	if p.renderer.timeout != EchoTimeout {
		t.Errorf("echo timeout: got %v, want %v", p.renderer.timeout, EchoTimeout)
	}
	if p.trigger.recovery != 60*time.Millisecond {
		t.Errorf("recovery: got %v, want 60ms", p.trigger.recovery)
	}
	st := p.Stats()
	if !st.Armed {
		t.Error("pipeline should start armed")
	}
	if st.TriggerState != StateWaitArm {
		t.Errorf("TriggerState: got %v", st.TriggerState)
	}
}

func TestRunInitFailureIsFatal(t *testing.T) {
	trig := gpio.NewFakeTrigger()
	p, err := New(Config{
		Trigger: trig,
		Display: failingDisplay{display.NewFakeDisplay()},
		Timing:  fastTiming,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail on display init")
	}
	if trig.Count() != 0 {
		t.Errorf("no pulse may be emitted after init failure, got %d", trig.Count())
	}
}

// Full closed loop: every pulse produces an echo; every pulse must find the
// previous cycle finished and the channel empty.
func TestPipelineSingleFlight(t *testing.T) {
	trig := gpio.NewFakeTrigger()
	disp := display.NewFakeDisplay()
	obs := &readingLog{}

	p, err := New(Config{
		Trigger:   trig,
		Display:   disp,
		Timing:    fastTiming,
		Observers: []Observer{obs},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	echo := gpio.NewFakeEcho(p.Edge)

	var mu sync.Mutex
	var violations []string
	trig.OnPulse = func(n int) {
		st := p.Stats()
		if st.Queued != 0 {
			mu.Lock()
			violations = append(violations, "sample pending at pulse")
			mu.Unlock()
		}
		if got := st.Rendered + st.Timeouts; got < uint64(n-1) {
			mu.Lock()
			violations = append(violations, "pulse before previous cycle released")
			mu.Unlock()
		}
		echo.Echo(500*time.Microsecond, 588*time.Microsecond)
	}

	stop := runTask(t, p.Run)
	waitFor(t, "ten readings", 5*time.Second, func() bool { return len(obs.all()) >= 10 })
	stop()

	mu.Lock()
	defer mu.Unlock()
	for _, v := range violations {
		t.Error(v)
	}

	st := p.Stats()
	if st.Spurious != 0 || st.Dropped != 0 {
		t.Errorf("unexpected losses: %+v", st)
	}
	if st.Samples != st.Pulses {
		t.Errorf("Samples %d != Pulses %d", st.Samples, st.Pulses)
	}
	for i, rd := range obs.all() {
		if !rd.OK {
			t.Errorf("reading %d: unexpected timeout", i)
			continue
		}
		if rd.Sample.Duration != 588*time.Microsecond {
			t.Errorf("reading %d: Duration %v, want 588us", i, rd.Sample.Duration)
		}
	}
}

// The sensor never answers: the renderer's bound keeps the loop alive.
func TestPipelineLivenessWithoutEcho(t *testing.T) {
	trig := gpio.NewFakeTrigger()
	disp := display.NewFakeDisplay()

	p, err := New(Config{Trigger: trig, Display: disp, Timing: fastTiming})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stop := runTask(t, p.Run)
	waitFor(t, "three pulses", 5*time.Second, func() bool { return trig.Count() >= 3 })
	stop()

	st := p.Stats()
	if st.Timeouts < 2 {
		t.Errorf("Timeouts: got %d, want >= 2", st.Timeouts)
	}
	frames := disp.Frames()
	if len(frames) == 0 {
		t.Fatal("expected frames")
	}
	if txt := frames[0].Texts; len(txt) != 2 || txt[1] != logic.NoReadingText {
		t.Errorf("texts: got %v", txt)
	}
}

// Spurious falls between cycles are ignored and the next cycle proceeds.
func TestPipelineSpuriousFall(t *testing.T) {
	trig := gpio.NewFakeTrigger()
	disp := display.NewFakeDisplay()
	obs := &readingLog{}

	p, err := New(Config{Trigger: trig, Display: disp, Timing: fastTiming, Observers: []Observer{obs}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	echo := gpio.NewFakeEcho(p.Edge)
	trig.OnPulse = func(n int) {
		if n == 1 {
			echo.Edge(false, time.Millisecond) // fall with no rise
			return
		}
		echo.Echo(time.Millisecond, time.Millisecond)
	}

	stop := runTask(t, p.Run)
	waitFor(t, "good reading", 5*time.Second, func() bool {
		for _, rd := range obs.all() {
			if rd.OK {
				return true
			}
		}
		return false
	})
	stop()

	st := p.Stats()
	if st.Spurious != 1 {
		t.Errorf("Spurious: got %d, want 1", st.Spurious)
	}
	rs := obs.all()
	if rs[0].OK {
		t.Error("first cycle should have timed out")
	}
}

// Cycle 1 loses its fall and cycle 2 loses its rise. The two halves must
// not be paired into one long echo.
func TestPipelineRiseDoesNotCarryAcrossCycles(t *testing.T) {
	trig := gpio.NewFakeTrigger()
	disp := display.NewFakeDisplay()
	obs := &readingLog{}

	p, err := New(Config{Trigger: trig, Display: disp, Timing: fastTiming, Observers: []Observer{obs}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	echo := gpio.NewFakeEcho(p.Edge)
	trig.OnPulse = func(n int) {
		switch n {
		case 1:
			echo.Edge(true, time.Millisecond)
		case 2:
			echo.Edge(false, 250*time.Millisecond)
		default:
			echo.Echo(time.Millisecond, time.Millisecond)
		}
	}

	stop := runTask(t, p.Run)
	waitFor(t, "three readings", 5*time.Second, func() bool { return len(obs.all()) >= 3 })
	stop()

	rs := obs.all()
	if rs[0].OK || rs[1].OK {
		t.Errorf("cycles 1 and 2 should time out, got %+v", rs[:2])
	}
	for i, rd := range rs {
		if rd.OK && rd.Sample.Duration != time.Millisecond {
			t.Errorf("reading %d: Duration %v (%.2f cm), want 1ms", i, rd.Sample.Duration, rd.Sample.CM)
		}
	}
	st := p.Stats()
	if st.Spurious != 1 {
		t.Errorf("Spurious: got %d, want 1", st.Spurious)
	}
	if st.Stale != 0 {
		t.Errorf("Stale: got %d, want 0", st.Stale)
	}
}

// Every pulse opens a new edge timer cycle and samples carry it.
func TestPipelineSamplesCarryCycle(t *testing.T) {
	trig := gpio.NewFakeTrigger()
	disp := display.NewFakeDisplay()
	obs := &readingLog{}

	p, err := New(Config{Trigger: trig, Display: disp, Timing: fastTiming, Observers: []Observer{obs}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	echo := gpio.NewFakeEcho(p.Edge)
	trig.OnPulse = func(int) { echo.Echo(time.Millisecond, time.Millisecond) }

	stop := runTask(t, p.Run)
	waitFor(t, "three readings", 5*time.Second, func() bool { return len(obs.all()) >= 3 })
	stop()

	for i, rd := range obs.all()[:3] {
		if want := uint64(i + 1); rd.Sample.Cycle != want {
			t.Errorf("reading %d: Cycle %d, want %d", i, rd.Sample.Cycle, want)
		}
	}
	if c := p.edges.Cycle(); c != uint64(trig.Count()) {
		t.Errorf("Cycle %d != pulses %d", c, trig.Count())
	}
}
