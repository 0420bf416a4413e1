package serve

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voxrec/internal/conf"
	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

func TestRecordingConfig(t *testing.T) {
	t.Parallel()

	cfg := RecordingConfig(conf.RecordingSettings{
		Device:         "USB Mic",
		SampleRate:     48000,
		BitDepth:       16,
		Channels:       1,
		Output:         "/tmp/out.wav",
		StartThreshold: 5,
		StopThreshold:  2,
		StopTimeout:    10 * time.Second,
	})

	assert.Equal(t, "48000-16-1", cfg.Format())
	assert.Equal(t, "USB Mic", cfg.DeviceName)
	assert.Equal(t, "/tmp/out.wav", cfg.OutputPath)
	assert.InDelta(t, 5.0, cfg.StartThreshold, 1e-9)
	assert.InDelta(t, 2.0, cfg.StopThreshold, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.StopTimeout)

	_, err := recorder.NewConfigStore(cfg)
	require.NoError(t, err)
}

func TestMQTTConfig(t *testing.T) {
	t.Parallel()

	cfg := mqttConfig(conf.MQTTSettings{
		Broker:   "tcp://broker:1883",
		Topic:    "studio/voxrec",
		ClientID: "rec-1",
		Username: "user",
		Password: "secret",
		Retain:   true,
	})

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "studio/voxrec", cfg.Topic)
	assert.Equal(t, "rec-1", cfg.ClientID)
	assert.True(t, cfg.Retain)
	assert.Positive(t, cfg.PublishTimeout)
}

func TestRotateOnSignal(t *testing.T) {
	t.Parallel()

	var rotations atomic.Int32
	rotate := func() error {
		if rotations.Add(1) == 2 {
			return errors.New("disk full")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rotateOnSignal(ctx, sig, rotate, logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, time.UTC))
	}()

	sig <- syscall.SIGHUP
	sig <- syscall.SIGHUP // a failed rotation keeps the loop running
	sig <- syscall.SIGHUP
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rotation loop did not stop")
	}
	assert.Equal(t, int32(3), rotations.Load())
}
