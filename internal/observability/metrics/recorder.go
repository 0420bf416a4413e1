package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// recorderStates are the values of the state label on voxrec_recorder_state.
var recorderStates = []string{"idle", "armed", "recording"}

// RecorderMetrics tracks the detection state machine. Every method is
// called from the audio callback and only touches atomics.
type RecorderMetrics struct {
	State          *prometheus.GaugeVec
	SoundLevel     prometheus.Gauge
	SoundLevelHist prometheus.Histogram
	BuffersWritten prometheus.Counter
	FramesWritten  prometheus.Counter
	WriteFailures  prometheus.Counter
	CreateFailures prometheus.Counter
	Sessions       *prometheus.CounterVec
	SessionSeconds prometheus.Histogram
}

// NewRecorderMetrics creates and registers the recorder collectors.
func NewRecorderMetrics(registry prometheus.Registerer) (*RecorderMetrics, error) {
	m := &RecorderMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recorder_state",
			Help:      "Current detection state (1 for the active state)",
		}, []string{"state"}),
		SoundLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recorder_sound_level_percent",
			Help:      "Loudness of the most recent buffer as a percentage",
		}),
		SoundLevelHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recorder_sound_level_distribution_percent",
			Help:      "Distribution of buffer loudness",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 40, 70, 100},
		}),
		BuffersWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_buffers_written_total",
			Help:      "Buffers appended to output files",
		}),
		FramesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_frames_written_total",
			Help:      "Sample frames appended to output files",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_write_failures_total",
			Help:      "Buffers dropped because the append failed",
		}),
		CreateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_create_failures_total",
			Help:      "Failed attempts to create an output file",
		}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_sessions_total",
			Help:      "Finished sessions by stop reason and whether audio was recorded",
		}, []string{"reason", "recorded"}),
		SessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recorder_session_duration_seconds",
			Help:      "Length of recorded sessions",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	if err := register(registry,
		m.State, m.SoundLevel, m.SoundLevelHist, m.BuffersWritten, m.FramesWritten,
		m.WriteFailures, m.CreateFailures, m.Sessions, m.SessionSeconds,
	); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

// SetState marks state as the active one.
func (m *RecorderMetrics) SetState(state string) {
	for _, s := range recorderStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}

// ObserveLevel records the loudness of one buffer.
func (m *RecorderMetrics) ObserveLevel(level float64) {
	m.SoundLevel.Set(level)
	m.SoundLevelHist.Observe(level)
}

// RecordBufferWritten counts one appended buffer.
func (m *RecorderMetrics) RecordBufferWritten(frames int) {
	m.BuffersWritten.Inc()
	m.FramesWritten.Add(float64(frames))
}

// RecordWriteFailure counts one dropped buffer.
func (m *RecorderMetrics) RecordWriteFailure() {
	m.WriteFailures.Inc()
}

// RecordCreateFailure counts one failed output file creation.
func (m *RecorderMetrics) RecordCreateFailure() {
	m.CreateFailures.Inc()
}

// RecordSession counts a finished session.
func (m *RecorderMetrics) RecordSession(reason string, recorded bool, duration time.Duration) {
	m.Sessions.WithLabelValues(reason, strconv.FormatBool(recorded)).Inc()
	if recorded {
		m.SessionSeconds.Observe(duration.Seconds())
	}
}
