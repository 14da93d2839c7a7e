// Package metrics exposes Prometheus collectors for the call gateway.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crm"

type Collectors struct {
	callsStarted   *prometheus.CounterVec
	callsFinished  *prometheus.CounterVec
	callDuration   prometheus.Histogram
	activeCalls    prometheus.Gauge
	signaling      *prometheus.CounterVec
	presenceWrites *prometheus.CounterVec
	reaped         *prometheus.CounterVec
}

var (
	collectorsOnce sync.Once
	collectorsInst *Collectors
)

// Default returns the process-wide collectors registered with the default registry.
func Default() *Collectors {
	collectorsOnce.Do(func() {
		collectorsInst = newCollectors(promauto.With(prometheus.DefaultRegisterer))
	})
	return collectorsInst
}

// New registers a fresh set of collectors with reg; used by tests.
func New(reg prometheus.Registerer) *Collectors {
	return newCollectors(promauto.With(reg))
}

func newCollectors(f promauto.Factory) *Collectors {
	return &Collectors{
		callsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "started_total",
			Help:      "Outgoing calls initiated, labeled by call type",
		}, []string{"call_type"}),
		callsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "finished_total",
			Help:      "Calls that reached a terminal status, labeled by status and end reason",
		}, []string{"status", "reason"}),
		callDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "duration_seconds",
			Help:      "Duration of ended calls",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		activeCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "engines_in_call",
			Help:      "Negotiation engines currently holding a call",
		}),
		signaling: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "messages_total",
			Help:      "Signaling messages, labeled by kind, direction and result",
		}, []string{"kind", "direction", "result"}),
		presenceWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "writes_total",
			Help:      "Presence upserts, labeled by status and result",
		}, []string{"status", "result"}),
		reaped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "reaped_total",
			Help:      "Rows moved by the periodic sweep, labeled by kind",
		}, []string{"kind"}),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (c *Collectors) CallStarted(callType string) {
	if c == nil {
		return
	}
	c.callsStarted.WithLabelValues(callType).Inc()
	c.activeCalls.Inc()
}

func (c *Collectors) CallAnswered() {
	if c == nil {
		return
	}
	c.activeCalls.Inc()
}

// CallFinished records the terminal status of a call held by an engine.
func (c *Collectors) CallFinished(status, reason string, duration time.Duration) {
	if c == nil {
		return
	}
	c.callsFinished.WithLabelValues(status, reason).Inc()
	c.activeCalls.Dec()
	if duration > 0 {
		c.callDuration.Observe(duration.Seconds())
	}
}

func (c *Collectors) SignalingMessage(kind, direction string, ok bool) {
	if c == nil {
		return
	}
	c.signaling.WithLabelValues(kind, direction, result(ok)).Inc()
}

func (c *Collectors) PresenceWrite(status string, ok bool) {
	if c == nil {
		return
	}
	c.presenceWrites.WithLabelValues(status, result(ok)).Inc()
}

func (c *Collectors) Reaped(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.reaped.WithLabelValues(kind).Add(float64(n))
}
