package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initTaskMetrics initializes task lifecycle metrics.
func (m *Manager) initTaskMetrics(cfg Config) {
	m.taskCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_created_total",
			Help: "Total number of tasks created by priority",
		},
		[]string{"priority"},
	)

	m.taskTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_transitions_total",
			Help: "Total number of task status transitions",
		},
		[]string{"from", "to"},
	)

	m.taskCompletion = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_completion_seconds",
			Help:    "Task lifetime from creation to a terminal status",
			Buckets: cfg.TaskCompletionBuckets,
		},
		[]string{"status"},
	)

	m.registry.MustRegister(m.taskCreated)
	m.registry.MustRegister(m.taskTransitions)
	m.registry.MustRegister(m.taskCompletion)
}

// RecordTaskCreated records a task entering the registry.
func (m *Manager) RecordTaskCreated(priority string) {
	if !m.enabled {
		return
	}
	m.taskCreated.WithLabelValues(priority).Inc()
}

// RecordTaskTransition records a status transition.
func (m *Manager) RecordTaskTransition(from, to string) {
	if !m.enabled {
		return
	}
	m.taskTransitions.WithLabelValues(from, to).Inc()
}

// RecordTaskTerminal records a task reaching a terminal status and its
// lifetime since creation.
func (m *Manager) RecordTaskTerminal(status string, lifetime time.Duration) {
	if !m.enabled {
		return
	}
	m.taskCompletion.WithLabelValues(status).Observe(lifetime.Seconds())
}
