package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Recorder.SetState("recording")
	m.Recorder.ObserveLevel(12.5)
	m.Recorder.RecordBufferWritten(480)
	m.Recorder.RecordBufferWritten(480)
	m.Recorder.RecordWriteFailure()
	m.Recorder.RecordSession("auto-stop", true, 3*time.Second)
	m.Capture.RecordStreamStart(nil)
	m.Capture.RecordStreamStart(errors.New("busy"))
	m.EventBus.RecordDropped()

	assert.InDelta(t, 1, testutil.ToFloat64(m.Recorder.State.WithLabelValues("recording")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Recorder.State.WithLabelValues("idle")), 0)
	assert.InDelta(t, 12.5, testutil.ToFloat64(m.Recorder.SoundLevel), 0)
	assert.InDelta(t, 960, testutil.ToFloat64(m.Recorder.FramesWritten), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Recorder.Sessions.WithLabelValues("auto-stop", "true")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Capture.StreamActive), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Capture.StreamStarts.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventBus.Dropped), 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Recorder.ObserveLevel(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "voxrec_recorder_sound_level_percent 4")
	assert.Contains(t, string(body), "go_goroutines")
}

// Each registry is independent, so two instances never collide.
func TestNewMetricsTwice(t *testing.T) {
	t.Parallel()

	_, err := NewMetrics()
	require.NoError(t, err)
	_, err = NewMetrics()
	require.NoError(t, err)
}
