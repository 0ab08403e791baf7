// Package metrics exposes the gateway's Prometheus instrumentation.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mcpgateway"

// Metrics holds every collector registered by the gateway.
type Metrics struct {
	toolCalls       *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	healthChecks    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	connectAttempts *prometheus.CounterVec
	classifications *prometheus.CounterVec
	serverStatus    *prometheus.GaugeVec
	toolsIndexed    *prometheus.GaugeVec
	queueDropped    prometheus.Counter
}

// New registers the collectors with reg. Use prometheus.NewRegistry() in
// tests to avoid duplicate registration against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool calls routed by the gateway by server, strategy and outcome",
			},
			[]string{"server", "strategy", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "End-to-end duration of routed tool calls",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"server"},
		),
		healthChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_checks_total",
				Help:      "Health probes by server and result (healthy, warning, failure)",
			},
			[]string{"server", "result"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_status_transitions_total",
				Help:      "Server status transitions",
			},
			[]string{"from", "to"},
		),
		connectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Connection attempts by server and result",
			},
			[]string{"server", "result"},
		),
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Tool classification calls by result",
			},
			[]string{"result"},
		),
		serverStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "servers",
				Help:      "Registered servers by status",
			},
			[]string{"status"},
		),
		toolsIndexed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tools",
				Help:      "Tools in the catalog by server",
			},
			[]string{"server"},
		),
		queueDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classification_queue_dropped_total",
				Help:      "Tools not enqueued for classification because the queue was full",
			},
		),
	}
}

// RecordToolCall records one routed call. outcome is the error code, or
// "ok" / "tool_error".
func (m *Metrics) RecordToolCall(server, strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(server, strategy, outcome).Inc()
	m.callDuration.WithLabelValues(server).Observe(d.Seconds())
}

// RecordHealthCheck records a probe result.
func (m *Metrics) RecordHealthCheck(server, result string) {
	if m == nil {
		return
	}
	m.healthChecks.WithLabelValues(server, result).Inc()
}

// RecordTransition records a status change and moves the status gauge.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	if from != "" {
		m.serverStatus.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.serverStatus.WithLabelValues(to).Inc()
	}
}

// RecordConnectAttempt records one transport open attempt.
func (m *Metrics) RecordConnectAttempt(server, result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(server, result).Inc()
}

// RecordClassification records a classifier call result.
func (m *Metrics) RecordClassification(result string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(result).Inc()
}

// RecordQueueDropped counts a tool dropped by a full classification queue.
func (m *Metrics) RecordQueueDropped() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}

// SetServerTools sets the tool count gauge for a server. A negative count
// deletes the series.
func (m *Metrics) SetServerTools(server string, count int) {
	if m == nil {
		return
	}
	if count < 0 {
		m.toolsIndexed.DeleteLabelValues(server)
		return
	}
	m.toolsIndexed.WithLabelValues(server).Set(float64(count))
}
