// Package logic contains the pure measurement logic for the range sensor.
// This package has NO external dependencies (no GPIO, MQTT, display or
// time.Sleep). Timestamps are always injected as monotonic offsets.
package logic

import (
	"fmt"
	"time"
)

// SpeedOfSoundFactor is the speed of sound in centimeters per microsecond.
// The echo covers the distance twice, so conversions divide by two.
const SpeedOfSoundFactor = 0.034

// Bar gauge geometry for a 128 pixel wide panel.
const (
	MaxBarWidth = 128
	BarScale    = 0.64 // pixels per centimeter; 200cm fills the bar
)

// NoReadingText is rendered when no echo arrives within the bound.
const NoReadingText = "No reading"

// Sample is one completed echo measurement. It is immutable once produced.
type Sample struct {
	Duration time.Duration // echo pulse width
	CM       float64       // estimated distance in centimeters
	Cycle    uint64        // measurement cycle of the rising edge
}

// Reading is the outcome of one measurement cycle as seen by the renderer.
type Reading struct {
	Timestamp time.Time
	Sample    Sample
	OK        bool // false = no echo within the bound
}

// EdgeCounts tracks edge timer outcomes since startup.
type EdgeCounts struct {
	Samples  uint64 // completed rise/fall pairs
	Spurious uint64 // falling edges without a rise in the same cycle
	Rejected uint64 // samples the sink refused (channel full)
}

// DistanceCM converts an echo pulse width into centimeters.
func DistanceCM(d time.Duration) float64 {
	us := float64(d) / float64(time.Microsecond)
	return us * SpeedOfSoundFactor / 2
}

// NewSample builds the sample for an echo pulse width.
func NewSample(d time.Duration) Sample {
	return Sample{Duration: d, CM: DistanceCM(d)}
}

// BarLength returns the gauge length in pixels, clamped to [0, MaxBarWidth].
func BarLength(cm float64) int {
	bar := int(cm * BarScale)
	if bar > MaxBarWidth {
		return MaxBarWidth
	}
	if bar < 0 {
		return 0
	}
	return bar
}

// FormatDistance returns the display text for a distance.
func FormatDistance(cm float64) string {
	return fmt.Sprintf("Dist: %.2f cm", cm)
}
