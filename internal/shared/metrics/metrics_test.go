package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveApproval(OutcomeApproved)
	m.ObserveApproval(OutcomeApproved)
	m.ObserveDispatch("SENT", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ApprovalSteps.WithLabelValues(OutcomeApproved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("SENT")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveApproval(OutcomeNoop)
	m.ObserveDispatch("FAILED", 1)
}
