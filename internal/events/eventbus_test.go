package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/voxrec/internal/recorder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collectingConsumer struct {
	name   string
	mu     sync.Mutex
	events []recorder.Event
	err    error
	panics bool
}

func (c *collectingConsumer) Name() string { return c.name }

func (c *collectingConsumer) ProcessEvent(ev recorder.Event) error {
	if c.panics {
		panic("boom")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *collectingConsumer) received() []recorder.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recorder.Event(nil), c.events...)
}

func TestDeliveryInOrder(t *testing.T) {
	t.Parallel()

	bus := New(Config{})
	consumer := &collectingConsumer{name: "collector"}
	require.NoError(t, bus.RegisterConsumer(consumer))

	types := []recorder.EventType{recorder.EventArmed, recorder.EventRecording, recorder.EventIdle}
	for _, typ := range types {
		require.True(t, bus.TryPublish(recorder.Event{Type: typ, SessionID: "s1"}))
	}
	require.NoError(t, bus.Shutdown(time.Second))

	got := consumer.received()
	require.Len(t, got, 3)
	for i, typ := range types {
		assert.Equal(t, typ, got[i].Type)
	}

	stats := bus.GetStats()
	assert.Equal(t, uint64(3), stats.EventsReceived)
	assert.Equal(t, uint64(3), stats.EventsProcessed)
}

func TestDuplicateConsumerRejected(t *testing.T) {
	t.Parallel()

	bus := New(Config{})
	defer bus.Shutdown(time.Second)

	require.NoError(t, bus.RegisterConsumer(&collectingConsumer{name: "mqtt"}))
	require.Error(t, bus.RegisterConsumer(&collectingConsumer{name: "mqtt"}))
}

func TestConsumerFailuresIsolated(t *testing.T) {
	t.Parallel()

	bus := New(Config{})
	failing := &collectingConsumer{name: "failing", err: errors.New("broker down")}
	panicking := &collectingConsumer{name: "panicking", panics: true}
	healthy := &collectingConsumer{name: "healthy"}
	for _, c := range []EventConsumer{failing, panicking, healthy} {
		require.NoError(t, bus.RegisterConsumer(c))
	}

	bus.TryPublish(recorder.Event{Type: recorder.EventArmed})
	require.NoError(t, bus.Shutdown(time.Second))

	assert.Len(t, healthy.received(), 1)
	assert.Equal(t, uint64(2), bus.GetStats().ConsumerErrors)
}

func TestPublishAfterShutdown(t *testing.T) {
	t.Parallel()

	bus := New(Config{})
	require.NoError(t, bus.Shutdown(time.Second))
	require.NoError(t, bus.Shutdown(time.Second), "second shutdown is a no-op")

	assert.False(t, bus.TryPublish(recorder.Event{Type: recorder.EventIdle}))
}

// blockingConsumer holds the worker until released.
type blockingConsumer struct {
	release chan struct{}
}

func (b *blockingConsumer) Name() string { return "blocking" }

func (b *blockingConsumer) ProcessEvent(recorder.Event) error {
	<-b.release
	return nil
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	bus := New(Config{BufferSize: 2})
	consumer := &blockingConsumer{release: make(chan struct{})}
	require.NoError(t, bus.RegisterConsumer(consumer))

	accepted := 0
	for range 10 {
		if bus.TryPublish(recorder.Event{Type: recorder.EventArmed}) {
			accepted++
		}
	}
	// The worker may hold one event while two more wait in the queue.
	assert.LessOrEqual(t, accepted, 3)
	assert.Equal(t, uint64(10-accepted), bus.GetStats().EventsDropped)

	close(consumer.release)
	require.NoError(t, bus.Shutdown(time.Second))
}
