// Package metrics exposes the range pipeline as Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/range-sensor/internal/logic"
	"github.com/sweeney/range-sensor/internal/pipeline"
)

// Metrics holds the collectors on a private registry so tests can build
// more than one.
type Metrics struct {
	registry *prometheus.Registry

	pulses        prometheus.Counter
	pulseErrors   prometheus.Counter
	samples       prometheus.Counter
	dropped       prometheus.Counter
	spurious      prometheus.Counter
	timeouts      prometheus.Counter
	stale         prometheus.Counter
	displayErrors prometheus.Counter
	distance      prometheus.Gauge
	echoDuration  prometheus.Histogram
	armed         prometheus.Gauge

	mu   sync.Mutex
	last pipeline.Stats
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pulses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_pulses_total",
			Help: "Trigger pulses emitted.",
		}),
		pulseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_pulse_errors_total",
			Help: "Trigger pulses that failed on the GPIO line.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_samples_total",
			Help: "Echo pulses measured by the edge timer.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_samples_dropped_total",
			Help: "Samples rejected because the channel was full.",
		}),
		spurious: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_spurious_edges_total",
			Help: "Falling edges without a matching rise, or zero-width pulses.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_echo_timeouts_total",
			Help: "Cycles that ended without an echo.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_stale_samples_total",
			Help: "Late echoes discarded after their cycle had closed.",
		}),
		displayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "range_display_errors_total",
			Help: "Frames that failed to reach the panel.",
		}),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "range_distance_cm",
			Help: "Most recent measured distance in centimetres.",
		}),
		echoDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "range_echo_duration_seconds",
			Help: "Measured echo pulse widths.",
			// 100us (1.7cm) to ~25ms (425cm)
			Buckets: prometheus.ExponentialBuckets(100e-6, 2, 9),
		}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "range_armed",
			Help: "1 when the next measurement is permitted.",
		}),
	}

	m.registry.MustRegister(
		m.pulses,
		m.pulseErrors,
		m.samples,
		m.dropped,
		m.spurious,
		m.timeouts,
		m.stale,
		m.displayErrors,
		m.distance,
		m.echoDuration,
		m.armed,
	)
	return m
}

// Observe records a rendered reading. It is a pipeline observer.
func (m *Metrics) Observe(r logic.Reading) {
	if m == nil || !r.OK {
		return
	}
	m.distance.Set(r.Sample.CM)
	m.echoDuration.Observe(r.Sample.Duration.Seconds())
}

// Update folds the pipeline counters into the Prometheus counters.
// Counters only move forward, so only the delta since the previous call
// is added.
func (m *Metrics) Update(s pipeline.Stats) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pulses.Add(delta(s.Pulses, m.last.Pulses))
	m.pulseErrors.Add(delta(s.PulseErrors, m.last.PulseErrors))
	m.samples.Add(delta(s.Samples, m.last.Samples))
	m.dropped.Add(delta(s.Dropped, m.last.Dropped))
	m.spurious.Add(delta(s.Spurious, m.last.Spurious))
	m.timeouts.Add(delta(s.Timeouts, m.last.Timeouts))
	m.stale.Add(delta(s.Stale, m.last.Stale))
	m.displayErrors.Add(delta(s.DisplayErrors, m.last.DisplayErrors))
	if s.Armed {
		m.armed.Set(1)
	} else {
		m.armed.Set(0)
	}
	m.last = s
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func delta(now, prev uint64) float64 {
	if now < prev {
		return 0
	}
	return float64(now - prev)
}
