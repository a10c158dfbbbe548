package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Marketplace records lifecycle and HTTP metrics. A nil *Marketplace is a no-op.
type Marketplace struct {
	transitions *prometheus.CounterVec
	commission  prometheus.Counter
	requests    *prometheus.HistogramVec
	events      *prometheus.CounterVec
}

// New registers the marketplace metrics on the provided registerer
func New(reg prometheus.Registerer) *Marketplace {
	if reg == nil {
		return nil
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_job_transitions_total",
		Help: "Job lifecycle operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	commission := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_commission_debited_total",
		Help: "Sum of commission debited from buyers.",
	})
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_events_processed_total",
		Help: "Job events handled by the worker by type and outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(transitions, commission, requests, events)
	return &Marketplace{
		transitions: transitions,
		commission:  commission,
		requests:    requests,
		events:      events,
	}
}

// ObserveTransition counts an engine operation; outcome is "ok" or an error kind
func (m *Marketplace) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
}

// AddCommission adds a debited commission amount
func (m *Marketplace) AddCommission(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.commission.Add(amount)
}

// ObserveRequest records an HTTP request latency
func (m *Marketplace) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, normalizeLabel(route), status).Observe(d.Seconds())
}

// ObserveEvent counts a worker-handled event
func (m *Marketplace) ObserveEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
