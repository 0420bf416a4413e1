// Package events delivers session transitions from the detector to
// consumers such as the MQTT publisher and the session history store.
package events

import "github.com/tphakala/voxrec/internal/recorder"

// EventConsumer processes session events off the audio thread.
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent handles one event. Errors are logged and counted.
	ProcessEvent(event recorder.Event) error
}

// Metrics receives bus counters.
type Metrics interface {
	RecordPublished(eventType string)
	RecordDropped()
	RecordConsumerError(consumer string)
}

// EventBusStats holds delivery counters.
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
