// Package mqtt publishes range readings and daemon lifecycle events.
package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/sweeney/range-sensor/internal/logic"
)

// Topic is the MQTT topic for range readings.
const Topic = "sensors/range/distance"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sensors/range/system"

// ErrClosed is returned by publishers after Close.
var ErrClosed = errors.New("mqtt: publisher closed")

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends one cycle outcome to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r logic.Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Range RangePayload `json:"range"`
}

// RangePayload contains one cycle outcome.
type RangePayload struct {
	Timestamp  string   `json:"timestamp"`
	OK         bool     `json:"ok"`
	DistanceCM *float64 `json:"distance_cm,omitempty"`
	EchoUs     *int64   `json:"echo_us,omitempty"`
}

// FormatPayload creates the JSON payload for a reading. A cycle without an
// echo is published with ok=false and no distance.
func FormatPayload(r logic.Reading) ([]byte, error) {
	p := RangePayload{
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		OK:        r.OK,
	}
	if r.OK {
		cm := math.Round(r.Sample.CM*100) / 100
		us := r.Sample.Duration.Microseconds()
		p.DistanceCM = &cm
		p.EchoUs = &us
	}
	return json.Marshal(Payload{Range: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
