package mqtt

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voxrec/internal/errors"
	"github.com/tphakala/voxrec/internal/observability/metrics"
)

func newTestClient(t *testing.T, broker string) Client {
	t.Helper()

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Broker = broker
	return NewClient(cfg, m)
}

func TestConnectRejectsInvalidBroker(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "::not a url")
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, c.IsConnected())
}

func TestPublishWithoutConnection(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "tcp://127.0.0.1:1883")
	err := c.Publish(context.Background(), "voxrec/session", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))

	// Disconnect before Connect is a no-op.
	c.Disconnect()
}
