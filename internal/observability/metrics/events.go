package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EventBusMetrics tracks session event delivery.
type EventBusMetrics struct {
	Published *prometheus.CounterVec
	Dropped   prometheus.Counter
	Failed    *prometheus.CounterVec
}

// NewEventBusMetrics creates and registers the event bus collectors.
func NewEventBusMetrics(registry prometheus.Registerer) (*EventBusMetrics, error) {
	m := &EventBusMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Session events accepted by the bus, by type",
		}, []string{"type"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Session events dropped because the queue was full",
		}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumer_errors_total",
			Help:      "Consumer failures by consumer name",
		}, []string{"consumer"}),
	}

	if err := register(registry, m.Published, m.Dropped, m.Failed); err != nil {
		return nil, fmt.Errorf("failed to register event bus metrics: %w", err)
	}
	return m, nil
}

// RecordPublished counts an accepted event.
func (m *EventBusMetrics) RecordPublished(eventType string) {
	m.Published.WithLabelValues(eventType).Inc()
}

// RecordDropped counts an event dropped on a full queue.
func (m *EventBusMetrics) RecordDropped() {
	m.Dropped.Inc()
}

// RecordConsumerError counts a failed delivery to consumer.
func (m *EventBusMetrics) RecordConsumerError(consumer string) {
	m.Failed.WithLabelValues(consumer).Inc()
}
