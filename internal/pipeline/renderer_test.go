package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweeney/range-sensor/internal/display"
	"github.com/sweeney/range-sensor/internal/logic"
)

type readingLog struct {
	mu       sync.Mutex
	readings []logic.Reading
}

func (l *readingLog) Observe(r logic.Reading) {
	l.mu.Lock()
	l.readings = append(l.readings, r)
	l.mu.Unlock()
}

func (l *readingLog) all() []logic.Reading {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logic.Reading(nil), l.readings...)
}

func newTestRenderer(t *testing.T, capacity int, timeout time.Duration) (*DisplayRenderer, *SampleChannel, *ArmSignal, *display.FakeDisplay, *readingLog) {
	t.Helper()
	samples, err := NewSampleChannel(capacity)
	if err != nil {
		t.Fatal(err)
	}
	arm := NewArmSignal(false)
	disp := display.NewFakeDisplay()
	obs := &readingLog{}
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewDisplayRenderer(samples, arm, disp, timeout, time.Millisecond, func() time.Time { return fixed }, obs)
	return r, samples, arm, disp, obs
}

func TestRendererDrawsSampleAndRearms(t *testing.T) {
	r, samples, arm, disp, obs := newTestRenderer(t, 5, time.Second)
	stop := runTask(t, r.Run)
	defer stop()

	samples.Offer(logic.NewSample(588 * time.Microsecond))
	waitFor(t, "frame", time.Second, func() bool { return len(disp.Frames()) == 1 })
	waitFor(t, "arm", time.Second, arm.Armed)

	f := disp.Frames()[0]
	wantTexts := []string{"Distance:", "Dist: 10.00 cm"}
	if len(f.Texts) != len(wantTexts) {
		t.Fatalf("texts: got %v, want %v", f.Texts, wantTexts)
	}
	for i := range wantTexts {
		if f.Texts[i] != wantTexts[i] {
			t.Errorf("text %d: got %q, want %q", i, f.Texts[i], wantTexts[i])
		}
	}
	if len(f.Lines) != 1 || f.Lines[0] != [4]int16{0, 20, 6, 20} {
		t.Errorf("bar: got %v, want [[0 20 6 20]]", f.Lines)
	}

	rs := obs.all()
	if len(rs) != 1 || !rs[0].OK || rs[0].Sample.Duration != 588*time.Microsecond {
		t.Errorf("unexpected observed readings: %+v", rs)
	}
	if r.Rendered() != 1 {
		t.Errorf("Rendered: got %d, want 1", r.Rendered())
	}
}

func TestRendererOperationOrder(t *testing.T) {
	r, samples, _, disp, _ := newTestRenderer(t, 5, time.Second)
	stop := runTask(t, r.Run)
	defer stop()

	samples.Offer(logic.NewSample(time.Millisecond))
	waitFor(t, "frame", time.Second, func() bool { return len(disp.Frames()) == 1 })

	ops := disp.Ops()
	want := []string{
		"clear",
		`text(0,0,1,"Distance:")`,
		`text(0,10,1,"Dist: 17.00 cm")`,
		"line(0,20,10,20)",
		"present",
	}
	if len(ops) < len(want) {
		t.Fatalf("ops: got %v", ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: got %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestRendererBarClamps(t *testing.T) {
	r, samples, _, disp, _ := newTestRenderer(t, 5, time.Second)
	stop := runTask(t, r.Run)
	defer stop()

	samples.Offer(logic.NewSample(38 * time.Millisecond)) // 646cm
	waitFor(t, "frame", time.Second, func() bool { return len(disp.Frames()) == 1 })

	f := disp.Frames()[0]
	if len(f.Lines) != 1 || f.Lines[0][2] != logic.MaxBarWidth {
		t.Errorf("bar: got %v, want end x=%d", f.Lines, logic.MaxBarWidth)
	}
}

// No echo within the bound: "no reading" is shown and the arm is released.
func TestRendererTimeoutRearms(t *testing.T) {
	r, _, arm, disp, obs := newTestRenderer(t, 5, 20*time.Millisecond)

	start := time.Now()
	stop := runTask(t, r.Run)
	defer stop()

	waitFor(t, "arm after timeout", time.Second, arm.Armed)
	if el := time.Since(start); el < 20*time.Millisecond {
		t.Errorf("armed after %v, before the bound", el)
	}

	waitFor(t, "frame", time.Second, func() bool { return len(disp.Frames()) >= 1 })
	f := disp.Frames()[0]
	if len(f.Texts) != 2 || f.Texts[1] != logic.NoReadingText {
		t.Errorf("texts: got %v, want no reading", f.Texts)
	}
	if len(f.Lines) != 0 {
		t.Errorf("expected no bar without a reading, got %v", f.Lines)
	}

	rs := obs.all()
	if len(rs) == 0 || rs[0].OK {
		t.Errorf("expected a not-OK reading, got %+v", rs)
	}
	if r.Timeouts() == 0 {
		t.Error("expected Timeouts > 0")
	}
}

func TestRendererPresentErrorStillRearms(t *testing.T) {
	r, samples, arm, disp, obs := newTestRenderer(t, 5, time.Second)
	disp.SetPresentError(errors.New("i2c nack"))
	stop := runTask(t, r.Run)
	defer stop()

	samples.Offer(logic.NewSample(time.Millisecond))
	waitFor(t, "arm", time.Second, arm.Armed)

	if r.DisplayErrors() != 1 {
		t.Errorf("DisplayErrors: got %d, want 1", r.DisplayErrors())
	}
	if len(obs.all()) != 1 {
		t.Errorf("observers should still see the reading, got %d", len(obs.all()))
	}
}

func TestRendererConsumesInOrder(t *testing.T) {
	r, samples, _, _, obs := newTestRenderer(t, 5, time.Second)
	for i := 1; i <= 3; i++ {
		samples.Offer(logic.NewSample(time.Duration(i) * time.Millisecond))
	}

	stop := runTask(t, r.Run)
	defer stop()
	waitFor(t, "three readings", time.Second, func() bool { return len(obs.all()) >= 3 })

	for i, rd := range obs.all()[:3] {
		want := time.Duration(i+1) * time.Millisecond
		if rd.Sample.Duration != want {
			t.Errorf("reading %d: got %v, want %v", i, rd.Sample.Duration, want)
		}
	}
}

// An echo that completes after its cycle timed out is discarded; the next
// cycle shows its own measurement.
func TestRendererDiscardsLateEcho(t *testing.T) {
	r, samples, _, disp, obs := newTestRenderer(t, 5, 100*time.Millisecond)
	var cycle atomic.Uint64
	cycle.Store(1)
	r.cycle = cycle.Load

	stop := runTask(t, r.Run)
	defer stop()
	waitFor(t, "cycle 1 timeout", time.Second, func() bool { return r.Timeouts() == 1 })

	late := logic.NewSample(time.Millisecond)
	late.Cycle = 1
	samples.Offer(late)

	cycle.Store(2)
	fresh := logic.NewSample(2 * time.Millisecond)
	fresh.Cycle = 2
	samples.Offer(fresh)

	waitFor(t, "cycle 2 reading", time.Second, func() bool { return r.Rendered() == 1 })

	if r.Stale() != 1 {
		t.Errorf("Stale: got %d, want 1", r.Stale())
	}
	rs := obs.all()
	if len(rs) != 2 || rs[0].OK || !rs[1].OK {
		t.Fatalf("readings: got %+v, want timeout then reading", rs)
	}
	if rs[1].Sample.Duration != 2*time.Millisecond {
		t.Errorf("cycle 2 rendered %v, want 2ms", rs[1].Sample.Duration)
	}
	if f := disp.Frames()[1]; f.Texts[1] != "Dist: 34.00 cm" {
		t.Errorf("display: got %v", f.Texts)
	}
}

// Without a cycle source every sample is rendered.
func TestRendererWithoutCycleSourceRendersAll(t *testing.T) {
	r, samples, _, _, obs := newTestRenderer(t, 5, time.Second)
	for _, c := range []uint64{3, 1, 1} {
		s := logic.NewSample(time.Millisecond)
		s.Cycle = c
		samples.Offer(s)
	}

	stop := runTask(t, r.Run)
	defer stop()
	waitFor(t, "three readings", time.Second, func() bool { return len(obs.all()) >= 3 })
	if r.Stale() != 0 {
		t.Errorf("Stale: got %d, want 0", r.Stale())
	}
}

func TestObserverFunc(t *testing.T) {
	var got logic.Reading
	var o Observer = ObserverFunc(func(r logic.Reading) { got = r })
	o.Observe(logic.Reading{OK: true})
	if !got.OK {
		t.Error("ObserverFunc did not forward the reading")
	}
}
