package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "stormguard_"

// Metrics groups the collectors the alert pipeline updates. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pollTicks         prometheus.Counter
	fetchFailures     prometheus.Counter
	alertsMatched     *prometheus.CounterVec
	sequences         *prometheus.CounterVec
	notifyFailures    *prometheus.CounterVec
	pendingSequences  prometheus.Gauge
	assistantRequests *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "poll_ticks_total",
			Help: "Total alert poll ticks",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "alert_fetch_failures_total",
			Help: "Alert feed requests that failed or returned a non-success status",
		}),
		alertsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "alerts_matched_total",
			Help: "Alerts that matched an entity's tracked event types",
		}, []string{"event"}),
		sequences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "shutdown_sequences_total",
			Help: "Shutdown sequence transitions by outcome",
		}, []string{"outcome"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "notification_failures_total",
			Help: "Notifications that could not be delivered",
		}, []string{"kind"}),
		pendingSequences: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "pending_sequences",
			Help: "Shutdown sequences currently pending",
		}),
		assistantRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "assistant_requests_total",
			Help: "Assistant requests by action and result",
		}, []string{"action", "result"}),
	}

	reg.MustRegister(
		m.pollTicks,
		m.fetchFailures,
		m.alertsMatched,
		m.sequences,
		m.notifyFailures,
		m.pendingSequences,
		m.assistantRequests,
	)
	return m
}

func (m *Metrics) PollTick() {
	if m == nil {
		return
	}
	m.pollTicks.Inc()
}

func (m *Metrics) FetchFailed() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

func (m *Metrics) AlertMatched(event string) {
	if m == nil {
		return
	}
	m.alertsMatched.WithLabelValues(event).Inc()
}

// Sequence records a sequence outcome: started, debounced, aborted, cancelled or completed
func (m *Metrics) Sequence(outcome string) {
	if m == nil {
		return
	}
	m.sequences.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotifyFailed(kind string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingSequences.Set(float64(n))
}

func (m *Metrics) AssistantRequest(action, result string) {
	if m == nil {
		return
	}
	m.assistantRequests.WithLabelValues(action, result).Inc()
}
