package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/range-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	LastGood      *ReadingJSON `json:"last_good,omitempty"`
	Trigger       string       `json:"trigger"`
	Armed         bool         `json:"armed"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the JSON representation of one cycle outcome.
type ReadingJSON struct {
	Timestamp  string   `json:"timestamp"`
	OK         bool     `json:"ok"`
	DistanceCM *float64 `json:"distance_cm,omitempty"`
	EchoUs     *int64   `json:"echo_us,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	Pulses        uint64 `json:"pulses"`
	PulseErrors   uint64 `json:"pulse_errors"`
	Samples       uint64 `json:"samples"`
	Spurious      uint64 `json:"spurious_edges"`
	Dropped       uint64 `json:"dropped"`
	Rendered      uint64 `json:"rendered"`
	Timeouts      uint64 `json:"timeouts"`
	Stale         uint64 `json:"stale"`
	DisplayErrors uint64 `json:"display_errors"`
	Queued        int    `json:"queued"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip        string `json:"chip"`
	PinTrigger  int    `json:"pin_trigger"`
	PinEcho     int    `json:"pin_echo"`
	Display     string `json:"display"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
}

// FormatReading converts a reading for JSON output. Distances are rounded
// to two decimals, matching the display.
func FormatReading(r logic.Reading) *ReadingJSON {
	rj := &ReadingJSON{
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		OK:        r.OK,
	}
	if r.OK {
		cm := math.Round(r.Sample.CM*100) / 100
		us := r.Sample.Duration.Microseconds()
		rj.DistanceCM = &cm
		rj.EchoUs = &us
	}
	return rj
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Stats
	inner := StatusInner{
		Trigger:       st.TriggerState.String(),
		Armed:         st.Armed,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Pulses:        st.Pulses,
			PulseErrors:   st.PulseErrors,
			Samples:       st.Samples,
			Spurious:      st.Spurious,
			Dropped:       st.Dropped,
			Rendered:      st.Rendered,
			Timeouts:      st.Timeouts,
			Stale:         st.Stale,
			DisplayErrors: st.DisplayErrors,
			Queued:        st.Queued,
		},
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			PinTrigger:  snap.Config.PinTrigger,
			PinEcho:     snap.Config.PinEcho,
			Display:     snap.Config.Display,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			HeartbeatMs: snap.Config.HeartbeatMs,
		},
	}
	if snap.HaveReading {
		inner.Reading = FormatReading(snap.Last)
	}
	if snap.LastGood.OK {
		inner.LastGood = FormatReading(snap.LastGood)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
