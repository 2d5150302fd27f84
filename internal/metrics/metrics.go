// Package metrics defines the Prometheus collectors for the scheduling
// core. A Metrics value is explicitly constructed and injected; nothing
// registers against the global default registry, so tests can build as
// many instances as they need.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the core's collectors. A nil *Metrics is valid and all
// methods become no-ops, so wiring metrics stays optional.
type Metrics struct {
	executions *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	duration   prometheus.Histogram
	queueDepth prometheus.Gauge
	active     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "briefwire",
			Name:      "executions_total",
			Help:      "Task executions by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "briefwire",
			Name:      "deliveries_total",
			Help:      "Destination deliveries by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "briefwire",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "briefwire",
			Name:      "queue_depth",
			Help:      "Due tasks waiting for a worker.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "briefwire",
			Name:      "active_tasks",
			Help:      "Tasks currently registered and active.",
		}),
	}
	reg.MustRegister(m.executions, m.deliveries, m.duration, m.queueDepth, m.active)
	return m
}

// RecordExecution counts one finished execution.
func (m *Metrics) RecordExecution(success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(outcome(success)).Inc()
	m.duration.Observe(d.Seconds())
}

// RecordDelivery counts one destination delivery.
func (m *Metrics) RecordDelivery(kind string, success bool) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, outcome(success)).Inc()
}

// SetQueueDepth publishes the worker queue backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetActiveTasks publishes the active task count.
func (m *Metrics) SetActiveTasks(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
