// Package metrics registers the prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Approval step outcomes.
const (
	OutcomeApproved  = "approved"
	OutcomeForbidden = "forbidden"
	OutcomeConflict  = "conflict"
	OutcomeNoop      = "noop"
	OutcomeSubmitted = "submitted"
)

type Metrics struct {
	HTTPDuration     *prometheus.HistogramVec
	ApprovalSteps    *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "allocation",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		ApprovalSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allocation",
			Name:      "approval_steps_total",
			Help:      "Approval workflow operations by outcome.",
		}, []string{"outcome"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allocation",
			Name:      "dispatch_total",
			Help:      "Partner submissions by status.",
		}, []string{"status"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "allocation",
			Name:      "dispatch_duration_seconds",
			Help:      "Partner submission latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(m.HTTPDuration, m.ApprovalSteps, m.Dispatches, m.DispatchDuration)
	return m
}

// ObserveApproval counts one workflow outcome. Nil receivers are ignored.
func (m *Metrics) ObserveApproval(outcome string) {
	if m == nil {
		return
	}
	m.ApprovalSteps.WithLabelValues(outcome).Inc()
}

// ObserveDispatch counts one partner submission.
func (m *Metrics) ObserveDispatch(status string, seconds float64) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(status).Inc()
	m.DispatchDuration.Observe(seconds)
}
