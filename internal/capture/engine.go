package capture

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/voxrec/internal/errors"
	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

// Metrics receives capture counters.
type Metrics interface {
	RecordStreamStart(err error)
	RecordStreamStop()
	RecordDeviceFallback()
	RecordCallback()
	RecordDecodeError()
}

type noopMetrics struct{}

func (noopMetrics) RecordStreamStart(error) {}
func (noopMetrics) RecordStreamStop()       {}
func (noopMetrics) RecordDeviceFallback()   {}
func (noopMetrics) RecordCallback()         {}
func (noopMetrics) RecordDecodeError()      {}

// Engine opens the capture stream for each session and halts it when the
// session ends.
type Engine struct {
	detector *recorder.Detector
	backend  Backend
	metrics  Metrics
	log      logger.Logger

	decodeLogLimiter *rate.Limiter

	// mu guards the stream handle. The audio callback never takes it.
	mu            sync.Mutex
	stream        Stream
	streamSession string

	bgMu   sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineMetrics sets the metrics sink.
func WithEngineMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEngineLogger overrides the module logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates an engine driving detector from backend.
func NewEngine(detector *recorder.Detector, backend Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		detector:         detector,
		backend:          backend,
		metrics:          noopMetrics{},
		log:              GetLogger(),
		decodeLogLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	detector.OnIdle(e.onSessionIdle)
	return e
}

// Detector returns the detector fed by this engine.
func (e *Engine) Detector() *recorder.Detector {
	return e.detector
}

// Start arms a new session and opens the stream in the background. State
// conflicts are returned; stream failures are logged and abort the session.
func (e *Engine) Start(ctx context.Context) (string, error) {
	sessionID, err := e.detector.Start()
	if err != nil {
		return "", err
	}

	if !e.goTracked(func() { e.openStream(ctx, sessionID) }) {
		err := errors.Newf("capture engine closed").
			Component(componentName).
			Category(errors.CategoryState).
			Build()
		e.detector.Abort(sessionID, err)
		return "", err
	}
	return sessionID, nil
}

// Stop halts the stream and ends the session. It returns the detector's
// conflict error when no session is active.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeStreamLocked()
	return e.detector.Stop()
}

// Devices lists the capture devices.
func (e *Engine) Devices() ([]DeviceInfo, error) {
	return e.backend.Devices()
}

// Close ends any session, waits for background work and releases the backend.
func (e *Engine) Close() error {
	e.bgMu.Lock()
	e.closed = true
	e.bgMu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	e.closeStreamLocked()
	if e.detector.State() != recorder.StateIdle {
		if err := e.detector.Stop(); err != nil {
			e.log.Warn("failed to stop session on close", logger.Error(err))
		}
	}
	e.mu.Unlock()

	return e.backend.Close()
}

func (e *Engine) goTracked(fn func()) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()

	if e.closed {
		return false
	}
	e.wg.Go(fn)
	return true
}

// onSessionIdle runs on the detector's goroutine, possibly the audio
// callback, so the stream is released elsewhere.
func (e *Engine) onSessionIdle(summary recorder.SessionSummary) {
	e.goTracked(func() { e.release(summary.ID) })
}

func (e *Engine) release(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamSession == sessionID {
		e.closeStreamLocked()
	}
}

func (e *Engine) closeStreamLocked() {
	if e.stream == nil {
		return
	}
	if err := e.stream.Close(); err != nil {
		e.log.Warn("failed to close capture stream",
			logger.Error(err),
			logger.String("session_id", e.streamSession))
	}
	e.stream = nil
	e.streamSession = ""
	e.metrics.RecordStreamStop()
	e.log.Debug("capture stream closed")
}

func (e *Engine) openStream(ctx context.Context, sessionID string) {
	if err := ctx.Err(); err != nil {
		e.abort(sessionID, err)
		return
	}

	cfg := e.detector.Store().Snapshot()
	streamCfg := StreamConfig{
		SampleRate: uint32(math.Round(cfg.SampleRate)),
		Channels:   uint32(cfg.Channels),
	}
	streamCfg.DeviceID = e.resolveDevice(cfg.DeviceName)

	sink := &streamSink{engine: e}
	stream, err := e.backend.Open(streamCfg, sink.onData)
	if err != nil {
		e.metrics.RecordStreamStart(err)
		e.abort(sessionID, err)
		return
	}
	sink.format = stream.Format()
	sink.channels = stream.Channels()
	if sink.channels <= 0 {
		sink.channels = cfg.Channels
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Stop or auto-stop may have won the race while the device was opening.
	if e.detector.SessionID() != sessionID {
		_ = stream.Close()
		e.log.Debug("discarding stream for finished session", logger.String("session_id", sessionID))
		return
	}

	// The release for a previous auto-stopped session may still be queued.
	// It keys on that session's ID and would miss a replaced handle.
	e.closeStreamLocked()

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		e.metrics.RecordStreamStart(err)
		e.abortLocked(sessionID, err)
		return
	}

	e.stream = stream
	e.streamSession = sessionID
	e.metrics.RecordStreamStart(nil)
	e.log.Info("capture stream started",
		logger.String("session_id", sessionID),
		logger.String("device", deviceLabel(streamCfg.DeviceID)),
		logger.String("sample_format", sink.format.String()),
		logger.Int("sample_rate", int(streamCfg.SampleRate)),
		logger.Int("channels", sink.channels))
}

// resolveDevice maps the configured device name to a backend ID. An unknown
// or unset name selects the default device.
func (e *Engine) resolveDevice(name string) string {
	if name == "" {
		e.log.Debug("no capture device configured, using default")
		return ""
	}

	devices, err := e.backend.Devices()
	if err != nil {
		e.log.Warn("device enumeration failed, using default device",
			logger.Error(err),
			logger.String("device", name))
		e.metrics.RecordDeviceFallback()
		return ""
	}

	device, ok := ResolveDevice(devices, name)
	if !ok {
		e.log.Warn("capture device not found, using default device",
			logger.String("device", name),
			logger.Int("available_devices", len(devices)))
		e.metrics.RecordDeviceFallback()
		return ""
	}
	return device.ID
}

func (e *Engine) abort(sessionID string, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abortLocked(sessionID, cause)
}

func (e *Engine) abortLocked(sessionID string, cause error) {
	err := errors.New(cause).
		Component(componentName).
		Category(errors.CategoryAudioSource).
		Priority(errors.PriorityHigh).
		Context("operation", "open_stream").
		Context("session_id", sessionID).
		Build()

	e.log.Error("failed to start capture stream",
		logger.Error(err),
		logger.String("session_id", sessionID))
	e.detector.Abort(sessionID, err)
}

func deviceLabel(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

// streamSink decodes device buffers for one stream. format and channels are
// set before the stream starts; scratch is touched only by the callback.
type streamSink struct {
	engine   *Engine
	format   SampleFormat
	channels int
	scratch  []float32
}

func (s *streamSink) onData(data []byte, _ uint32) {
	e := s.engine
	e.metrics.RecordCallback()

	samples, err := Decode(data, s.format, s.scratch)
	if err != nil {
		e.metrics.RecordDecodeError()
		if e.decodeLogLimiter.Allow() {
			e.log.Warn("dropping undecodable buffer",
				logger.Error(err),
				logger.Int("bytes", len(data)))
		}
		return
	}
	s.scratch = samples

	e.detector.HandleBuffer(recorder.Buffer{Data: samples, Channels: s.channels})
}
