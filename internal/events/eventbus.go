package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

// DefaultBufferSize is the queue length used when Config.BufferSize is zero.
const DefaultBufferSize = 256

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Metrics    Metrics
}

// EventBus queues events without blocking the publisher and delivers them to
// every consumer on a single worker, so consumers see events in publish order.
type EventBus struct {
	eventChan chan recorder.Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	consumers []EventConsumer
	metrics   Metrics

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	errored   atomic.Uint64

	logger logger.Logger
}

// New creates an event bus and starts its worker.
func New(config Config) *EventBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		eventChan: make(chan recorder.Event, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   config.Metrics,
		logger:    logger.Global().Module("events"),
	}

	eb.running.Store(true)
	eb.wg.Go(eb.worker)

	eb.logger.Debug("event bus started", logger.Int("buffer_size", config.BufferSize))
	return eb
}

// RegisterConsumer adds a new event consumer
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) error {
	if eb == nil {
		return fmt.Errorf("event bus not initialized")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, existing := range eb.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}

	eb.consumers = append(eb.consumers, consumer)
	eb.logger.Info("registered event consumer", logger.String("consumer", consumer.Name()))
	return nil
}

// TryPublish queues event without blocking. It returns false if the bus is
// stopped or the queue is full.
func (eb *EventBus) TryPublish(event recorder.Event) bool {
	if eb == nil || !eb.running.Load() {
		return false
	}

	select {
	case eb.eventChan <- event:
		eb.received.Add(1)
		if eb.metrics != nil {
			eb.metrics.RecordPublished(string(event.Type))
		}
		return true
	default:
		eb.dropped.Add(1)
		if eb.metrics != nil {
			eb.metrics.RecordDropped()
		}
		return false
	}
}

// Handler returns a detector event handler that publishes into the bus.
func (eb *EventBus) Handler() recorder.EventHandler {
	return func(ev recorder.Event) {
		eb.TryPublish(ev)
	}
}

func (eb *EventBus) worker() {
	for {
		select {
		case <-eb.ctx.Done():
			eb.drain()
			return
		case event := <-eb.eventChan:
			eb.processEvent(event)
		}
	}
}

// drain delivers whatever is still queued at shutdown.
func (eb *EventBus) drain() {
	for {
		select {
		case event := <-eb.eventChan:
			eb.processEvent(event)
		default:
			return
		}
	}
}

// processEvent sends the event to all registered consumers
func (eb *EventBus) processEvent(event recorder.Event) {
	eb.mu.Lock()
	consumers := append([]EventConsumer(nil), eb.consumers...)
	eb.mu.Unlock()

	for _, consumer := range consumers {
		eb.deliver(consumer, event)
	}
}

func (eb *EventBus) deliver(consumer EventConsumer, event recorder.Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.recordConsumerError(consumer)
			eb.logger.Error("consumer panicked",
				logger.String("consumer", consumer.Name()),
				logger.Any("panic", r),
				logger.String("event", string(event.Type)))
		}
	}()

	if err := consumer.ProcessEvent(event); err != nil {
		eb.recordConsumerError(consumer)
		eb.logger.Error("consumer error",
			logger.String("consumer", consumer.Name()),
			logger.Error(err),
			logger.String("event", string(event.Type)),
			logger.String("session_id", event.SessionID))
		return
	}
	eb.processed.Add(1)
}

func (eb *EventBus) recordConsumerError(consumer EventConsumer) {
	eb.errored.Add(1)
	if eb.metrics != nil {
		eb.metrics.RecordConsumerError(consumer.Name())
	}
}

// Shutdown stops accepting events, delivers the queued ones and waits for
// the worker up to timeout.
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	if eb == nil || !eb.running.Swap(false) {
		return nil
	}

	eb.cancel()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Debug("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		eb.logger.Warn("event bus shutdown timeout exceeded")
		return fmt.Errorf("event bus shutdown timeout exceeded")
	}
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	if eb == nil {
		return EventBusStats{}
	}

	return EventBusStats{
		EventsReceived:  eb.received.Load(),
		EventsProcessed: eb.processed.Load(),
		EventsDropped:   eb.dropped.Load(),
		ConsumerErrors:  eb.errored.Load(),
	}
}
