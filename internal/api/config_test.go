package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voxrec/internal/conf"
)

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{Debug: true}
	settings.WebServer.Listen = "127.0.0.1:9090"

	cfg := ConfigFromSettings(settings)
	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.True(t, cfg.Debug)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", ConfigFromSettings(nil).Listen)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Listen = "8080"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ShutdownTimeout = 0
	require.Error(t, cfg.Validate())
}
