package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// Metrics groups all Prometheus instruments used across the pipeline.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	AlertsSent      *prometheus.CounterVec
	AlertsFailed    *prometheus.CounterVec
	AlertsThrottled prometheus.Counter
	EmergencySends  prometheus.Counter
	DigestFlushes   *prometheus.CounterVec
	SendLatency     *prometheus.HistogramVec

	QueueDepthCritical prometheus.Gauge
	QueueDepthHigh     prometheus.Gauge
	QueueDepthNormal   prometheus.Gauge
	QueueDepthLow      prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_sent_total",
			Help: "Total number of successfully delivered alert emails, by delivery path.",
		}, []string{"path"}),

		AlertsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_failed_total",
			Help: "Total number of permanently failed alert deliveries, by delivery path.",
		}, []string{"path"}),

		AlertsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_throttled_total",
			Help: "Total number of duplicate alerts suppressed by the throttle guard.",
		}),

		EmergencySends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emergency_sends_total",
			Help: "Total number of emergency fallback send attempts.",
		}),

		DigestFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_flushes_total",
			Help: "Total number of digest flushes, by schedule and outcome.",
		}, []string{"schedule", "outcome"}),

		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alert_send_seconds",
			Help:    "End-to-end processing latency from dequeue to transport ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),

		QueueDepthCritical: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_critical",
			Help: "Current number of items in the critical-severity queue.",
		}),
		QueueDepthHigh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_high",
			Help: "Current number of items in the high-severity queue.",
		}),
		QueueDepthNormal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_normal",
			Help: "Current number of items in the normal-severity queue.",
		}),
		QueueDepthLow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_low",
			Help: "Current number of items in the low-severity queue.",
		}),
	}

	reg.MustRegister(
		m.AlertsSent,
		m.AlertsFailed,
		m.AlertsThrottled,
		m.EmergencySends,
		m.DigestFlushes,
		m.SendLatency,
		m.QueueDepthCritical,
		m.QueueDepthHigh,
		m.QueueDepthNormal,
		m.QueueDepthLow,
	)

	return m
}

// WorkerHooks returns the metric callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the worker package stays
// metrics-agnostic.
func (m *Metrics) WorkerHooks() (
	onSent func(domain.DeliveryPath, time.Duration),
	onFailed func(domain.DeliveryPath),
) {
	onSent = func(path domain.DeliveryPath, latency time.Duration) {
		m.AlertsSent.WithLabelValues(string(path)).Inc()
		m.SendLatency.WithLabelValues(string(path)).Observe(latency.Seconds())
	}
	onFailed = func(path domain.DeliveryPath) {
		m.AlertsFailed.WithLabelValues(string(path)).Inc()
	}
	return
}

// ThrottleHook returns the callback handed to the throttle guard.
func (m *Metrics) ThrottleHook() func() {
	return func() { m.AlertsThrottled.Inc() }
}

// EmergencyHook returns the callback handed to the emergency fallback.
func (m *Metrics) EmergencyHook() func() {
	return func() { m.EmergencySends.Inc() }
}

// DigestHook returns the callback handed to the digest accumulator.
func (m *Metrics) DigestHook() func(schedule, outcome string) {
	return func(schedule, outcome string) {
		m.DigestFlushes.WithLabelValues(schedule, outcome).Inc()
	}
}
