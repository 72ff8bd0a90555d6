package display

import (
	"fmt"
	"sync"
)

// FakeDisplay records drawing calls for test assertions.
// Safe for concurrent use: the renderer draws while tests inspect.
type FakeDisplay struct {
	mu sync.Mutex

	initialized bool
	ops         []string
	frames      []Frame
	current     Frame

	// PresentError, if set, will be returned by Present.
	PresentError error
}

// Frame is what was drawn between two ClearBuffer calls.
type Frame struct {
	Texts []string
	Lines [][4]int16
}

// NewFakeDisplay creates a FakeDisplay.
func NewFakeDisplay() *FakeDisplay {
	return &FakeDisplay{}
}

// Initialize marks the display as initialized.
func (f *FakeDisplay) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = true
	f.ops = append(f.ops, "init")
	return nil
}

// ClearBuffer starts a new frame.
func (f *FakeDisplay) ClearBuffer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = Frame{}
	f.ops = append(f.ops, "clear")
}

// DrawText records the text.
func (f *FakeDisplay) DrawText(x, y, scale int16, s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current.Texts = append(f.current.Texts, s)
	f.ops = append(f.ops, fmt.Sprintf("text(%d,%d,%d,%q)", x, y, scale, s))
}

// DrawLine records the line.
func (f *FakeDisplay) DrawLine(x0, y0, x1, y1 int16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current.Lines = append(f.current.Lines, [4]int16{x0, y0, x1, y1})
	f.ops = append(f.ops, fmt.Sprintf("line(%d,%d,%d,%d)", x0, y0, x1, y1))
}

// Present records the current frame, or returns PresentError.
func (f *FakeDisplay) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "present")
	if f.PresentError != nil {
		return f.PresentError
	}
	f.frames = append(f.frames, f.current)
	return nil
}

// SetPresentError sets the error returned by Present.
func (f *FakeDisplay) SetPresentError(err error) {
	f.mu.Lock()
	f.PresentError = err
	f.mu.Unlock()
}

// Frames returns a copy of the presented frames.
func (f *FakeDisplay) Frames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.frames...)
}

// Ops returns a copy of the recorded operations.
func (f *FakeDisplay) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// Initialized reports whether Initialize was called.
func (f *FakeDisplay) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}
