package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics tracks the capture stream.
type CaptureMetrics struct {
	StreamActive    prometheus.Gauge
	StreamStarts    *prometheus.CounterVec
	DeviceFallbacks prometheus.Counter
	Callbacks       prometheus.Counter
	DecodeErrors    prometheus.Counter
}

// NewCaptureMetrics creates and registers the capture collectors.
func NewCaptureMetrics(registry prometheus.Registerer) (*CaptureMetrics, error) {
	m := &CaptureMetrics{
		StreamActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_stream_active",
			Help:      "1 while a capture stream is open",
		}),
		StreamStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_stream_starts_total",
			Help:      "Stream start attempts by result",
		}, []string{"result"}),
		DeviceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_device_fallbacks_total",
			Help:      "Starts that used the default device because the configured name was not found",
		}),
		Callbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_callbacks_total",
			Help:      "Audio buffers delivered by the device",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_decode_errors_total",
			Help:      "Device buffers that could not be decoded",
		}),
	}

	if err := register(registry,
		m.StreamActive, m.StreamStarts, m.DeviceFallbacks, m.Callbacks, m.DecodeErrors,
	); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

// RecordStreamStart counts a start attempt; success also marks the stream active.
func (m *CaptureMetrics) RecordStreamStart(err error) {
	if err != nil {
		m.StreamStarts.WithLabelValues("error").Inc()
		return
	}
	m.StreamStarts.WithLabelValues("success").Inc()
	m.StreamActive.Set(1)
}

// RecordStreamStop marks the stream inactive.
func (m *CaptureMetrics) RecordStreamStop() {
	m.StreamActive.Set(0)
}

// RecordDeviceFallback counts a fallback to the default device.
func (m *CaptureMetrics) RecordDeviceFallback() {
	m.DeviceFallbacks.Inc()
}

// RecordCallback counts one delivered buffer.
func (m *CaptureMetrics) RecordCallback() {
	m.Callbacks.Inc()
}

// RecordDecodeError counts one undecodable buffer.
func (m *CaptureMetrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}
