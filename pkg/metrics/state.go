package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initStateMetrics initializes state store metrics.
func (m *Manager) initStateMetrics(cfg Config) {
	m.stateOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_operations_total",
			Help: "Total number of state store operations",
		},
		[]string{"op"},
	)

	m.stateOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "state_operation_duration_seconds",
			Help:    "State store operation duration in seconds",
			Buckets: cfg.StateDurationBuckets,
		},
		[]string{"op"},
	)

	m.stateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_failures_total",
			Help: "Total number of state operations that survived the retry budget",
		},
		[]string{"op"},
	)

	m.registry.MustRegister(m.stateOps)
	m.registry.MustRegister(m.stateOpDuration)
	m.registry.MustRegister(m.stateFailures)
}

// RecordStateOp records a completed state store operation.
func (m *Manager) RecordStateOp(op string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.stateOps.WithLabelValues(op).Inc()
	m.stateOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordStateFailure records a state operation that exhausted its retry
// budget.
func (m *Manager) RecordStateFailure(op string) {
	if !m.enabled {
		return
	}
	m.stateFailures.WithLabelValues(op).Inc()
}
