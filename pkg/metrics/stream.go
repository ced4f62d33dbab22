package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initStreamMetrics initializes stream gateway metrics.
func (m *Manager) initStreamMetrics(cfg Config) {
	m.streamPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_publishes_total",
			Help: "Total number of messages published by stream",
		},
		[]string{"stream"},
	)

	m.streamPublishDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_publish_duration_seconds",
			Help:    "Publish duration in seconds",
			Buckets: cfg.PublishDurationBuckets,
		},
		[]string{"stream"},
	)

	m.streamReadMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_read_messages_total",
			Help: "Total number of messages returned by plain reads",
		},
		[]string{"stream"},
	)

	m.streamGroupMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_group_read_messages_total",
			Help: "Total number of messages delivered to group consumers",
		},
		[]string{"stream", "group"},
	)

	m.streamAcks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_acks_total",
			Help: "Total number of acknowledgements by outcome",
		},
		[]string{"stream", "group", "acked"},
	)

	m.streamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_backend_failures_total",
			Help: "Total number of backend failures that survived the retry budget",
		},
		[]string{"op"},
	)

	m.registry.MustRegister(m.streamPublishes)
	m.registry.MustRegister(m.streamPublishDur)
	m.registry.MustRegister(m.streamReadMessages)
	m.registry.MustRegister(m.streamGroupMessages)
	m.registry.MustRegister(m.streamAcks)
	m.registry.MustRegister(m.streamFailures)
}

// RecordPublish records one appended message and its round-trip duration.
func (m *Manager) RecordPublish(stream string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.streamPublishes.WithLabelValues(stream).Inc()
	m.streamPublishDur.WithLabelValues(stream).Observe(duration.Seconds())
}

// RecordRead records the number of messages a plain read returned.
func (m *Manager) RecordRead(stream string, messages int) {
	if !m.enabled {
		return
	}
	m.streamReadMessages.WithLabelValues(stream).Add(float64(messages))
}

// RecordGroupRead records the number of messages a group read delivered.
func (m *Manager) RecordGroupRead(stream, group string, messages int) {
	if !m.enabled {
		return
	}
	m.streamGroupMessages.WithLabelValues(stream, group).Add(float64(messages))
}

// RecordAck records an acknowledgement attempt and whether it removed a
// pending entry.
func (m *Manager) RecordAck(stream, group string, acked bool) {
	if !m.enabled {
		return
	}
	m.streamAcks.WithLabelValues(stream, group, strconv.FormatBool(acked)).Inc()
}

// RecordBackendFailure records an operation that exhausted its retry budget.
func (m *Manager) RecordBackendFailure(op string) {
	if !m.enabled {
		return
	}
	m.streamFailures.WithLabelValues(op).Inc()
}
