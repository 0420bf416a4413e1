package recorder

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/voxrec/internal/errors"
	"github.com/tphakala/voxrec/internal/logger"
)

// Metrics receives detector measurements. Implementations must not block.
type Metrics interface {
	SetState(state string)
	ObserveLevel(level float64)
	RecordBufferWritten(frames int)
	RecordWriteFailure()
	RecordCreateFailure()
	RecordSession(reason string, recorded bool, duration time.Duration)
}

// EventHandler is called after a transition, outside the detector lock.
type EventHandler func(Event)

// Detector is the detection state machine. A single mutex serializes
// Start, Stop, Abort and the per-buffer HandleBuffer calls from the audio
// callback.
type Detector struct {
	store     *ConfigStore
	newWriter WriterFactory
	now       func() time.Time
	log       logger.Logger
	metrics   Metrics

	// Failures repeat on every buffer; these keep the log readable.
	writeLogLimiter  *rate.Limiter
	createLogLimiter *rate.Limiter

	mu        sync.Mutex
	state     State
	session   Session
	writer    Writer
	lastLevel float64
	handlers  []EventHandler
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithWriterFactory replaces WAVWriterFactory.
func WithWriterFactory(f WriterFactory) Option {
	return func(d *Detector) { d.newWriter = f }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(d *Detector) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithLogger replaces the package logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// NewDetector returns an Idle detector reading settings from store.
func NewDetector(store *ConfigStore, opts ...Option) *Detector {
	d := &Detector{
		store:            store,
		newWriter:        WAVWriterFactory,
		now:              time.Now,
		log:              GetLogger(),
		metrics:          noopMetrics{},
		writeLogLimiter:  rate.NewLimiter(rate.Every(5*time.Second), 1),
		createLogLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.metrics.SetState(StateIdle.String())
	return d
}

// Subscribe registers h for every subsequent transition.
func (d *Detector) Subscribe(h EventHandler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// OnIdle registers h for transitions into Idle.
func (d *Detector) OnIdle(h func(SessionSummary)) {
	d.Subscribe(func(ev Event) {
		if ev.Type == EventIdle && ev.Summary != nil {
			h(*ev.Summary)
		}
	})
}

// Start arms a new session. It fails with ErrStateConflict unless Idle.
func (d *Detector) Start() (string, error) {
	d.mu.Lock()
	if d.state != StateIdle {
		state := d.state
		d.mu.Unlock()
		return "", stateConflict("start", "already recording", state)
	}

	now := d.now()
	d.session = Session{
		ID:                   uuid.NewString(),
		ArmedAt:              now,
		LastAboveThresholdAt: now,
	}
	d.setStateLocked(StateArmed)
	ev := d.eventLocked(EventArmed, now, d.store.Snapshot())
	handlers := d.handlersLocked()
	d.mu.Unlock()

	d.log.Info("session armed, awaiting sound", logger.String("session_id", ev.SessionID))
	dispatch(handlers, ev)
	return ev.SessionID, nil
}

// Stop ends the current session, closing the output file if one is open.
// It fails with ErrStateConflict when Idle.
func (d *Detector) Stop() error {
	d.mu.Lock()
	if d.state == StateIdle {
		d.mu.Unlock()
		return stateConflict("stop", "not recording", StateIdle)
	}

	ev := d.finishLocked(ReasonStop, d.now(), "")
	handlers := d.handlersLocked()
	d.mu.Unlock()

	dispatch(handlers, ev)
	return nil
}

// Abort returns sessionID to Idle after its stream failed to start. It is a
// no-op, returning false, if sessionID is no longer the current session.
func (d *Detector) Abort(sessionID string, cause error) bool {
	d.mu.Lock()
	if d.state == StateIdle || d.session.ID != sessionID {
		d.mu.Unlock()
		return false
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	ev := d.finishLocked(ReasonAbort, d.now(), msg)
	handlers := d.handlersLocked()
	d.mu.Unlock()

	dispatch(handlers, ev)
	return true
}

// HandleBuffer processes one captured buffer. It is called from the audio
// callback and never returns an error; failures are logged.
func (d *Detector) HandleBuffer(buf Buffer) {
	level := MeasureLevel(buf)
	d.metrics.ObserveLevel(level)

	d.mu.Lock()
	d.lastLevel = level
	if d.state == StateIdle {
		d.mu.Unlock()
		return
	}

	now := d.now()
	d.session.CurrentLevel = level
	cfg := d.store.Snapshot()
	var events []Event

	if d.state == StateArmed && level > cfg.StartThreshold {
		if ev, ok := d.beginRecordingLocked(cfg, now, level); ok {
			events = append(events, ev)
		}
	}

	if d.state == StateRecording {
		d.writeLocked(buf)

		if level > cfg.StopThreshold {
			d.session.LastAboveThresholdAt = now
		}
		if now.Sub(d.session.LastAboveThresholdAt) > cfg.StopTimeout {
			d.log.Info("silence timeout reached, stopping",
				logger.String("session_id", d.session.ID),
				logger.Duration("stop_timeout", cfg.StopTimeout))
			events = append(events, d.finishLocked(ReasonAutoStop, now, ""))
		}
	}

	var handlers []EventHandler
	if len(events) > 0 {
		handlers = d.handlersLocked()
	}
	d.mu.Unlock()

	for _, ev := range events {
		dispatch(handlers, ev)
	}
}

// beginRecordingLocked opens the output with cfg frozen for the session. On
// failure the session stays Armed; the next buffer above threshold tries again.
func (d *Detector) beginRecordingLocked(cfg RecordingConfig, now time.Time, level float64) (Event, bool) {
	w, err := d.newWriter(cfg)
	if err != nil {
		d.metrics.RecordCreateFailure()
		if d.createLogLimiter.Allow() {
			enhanced := errors.New(err).
				Component(componentName).
				Category(errors.CategoryFileIO).
				Context("operation", "create_output").
				Context("path", cfg.OutputPath).
				Build()
			d.log.Error("failed to create output file, session remains armed",
				logger.Error(enhanced),
				logger.String("session_id", d.session.ID),
				pathField(cfg.OutputPath))
		}
		return Event{}, false
	}

	d.writer = w
	d.session.Config = cfg
	d.session.RecordingStart = now
	d.session.LastAboveThresholdAt = now
	d.setStateLocked(StateRecording)

	d.log.Info("sound detected, recording started",
		logger.String("session_id", d.session.ID),
		logger.Float64("level", level),
		pathField(cfg.OutputPath),
		logger.String("format", cfg.Format()))

	return d.eventLocked(EventRecording, now, cfg), true
}

func (d *Detector) writeLocked(buf Buffer) {
	if err := d.writer.Append(buf); err != nil {
		d.session.WriteFailures++
		d.metrics.RecordWriteFailure()
		if d.writeLogLimiter.Allow() {
			d.log.Warn("dropped buffer after write failure",
				logger.Error(err),
				logger.String("session_id", d.session.ID),
				logger.Uint64("write_failures", d.session.WriteFailures))
		}
		return
	}
	d.session.BuffersWritten++
	d.session.FramesWritten += uint64(buf.Frames())
	d.metrics.RecordBufferWritten(buf.Frames())
}

// finishLocked closes the writer, resets the session and returns the idle event.
func (d *Detector) finishLocked(reason StopReason, now time.Time, cause string) Event {
	s := d.session
	summary := &SessionSummary{
		ID:             s.ID,
		Reason:         reason,
		Recorded:       d.writer != nil,
		Config:         s.Config,
		ArmedAt:        s.ArmedAt,
		RecordingStart: s.RecordingStart,
		EndedAt:        now,
		FramesWritten:  s.FramesWritten,
		BuffersWritten: s.BuffersWritten,
		WriteFailures:  s.WriteFailures,
		Cause:          cause,
	}
	if !summary.Recorded {
		summary.Config = d.store.Snapshot()
	} else {
		summary.Duration = now.Sub(s.RecordingStart)
	}

	if d.writer != nil {
		if err := d.writer.Close(); err != nil {
			d.log.Error("failed to finalize output file",
				logger.Error(err),
				logger.String("session_id", s.ID),
				pathField(s.Config.OutputPath))
		}
		d.writer = nil
	}

	d.session = Session{}
	d.setStateLocked(StateIdle)
	d.metrics.RecordSession(string(reason), summary.Recorded, summary.Duration)

	fields := []logger.Field{
		logger.String("session_id", s.ID),
		logger.String("reason", string(reason)),
		logger.Uint64("frames", s.FramesWritten),
		logger.Duration("duration", summary.Duration),
	}
	if cause != "" {
		fields = append(fields, logger.String("cause", cause))
	}
	d.log.Info("session ended", fields...)

	ev := d.eventLocked(EventIdle, now, summary.Config)
	ev.SessionID = s.ID
	ev.Summary = summary
	return ev
}

func (d *Detector) setStateLocked(s State) {
	d.state = s
	d.metrics.SetState(s.String())
}

func (d *Detector) eventLocked(t EventType, now time.Time, cfg RecordingConfig) Event {
	return Event{
		Type:      t,
		SessionID: d.session.ID,
		Time:      now,
		Level:     d.lastLevel,
		Config:    cfg,
	}
}

func (d *Detector) handlersLocked() []EventHandler {
	if len(d.handlers) == 0 {
		return nil
	}
	return append([]EventHandler(nil), d.handlers...)
}

func dispatch(handlers []EventHandler, ev Event) {
	for _, h := range handlers {
		h(ev)
	}
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SessionID returns the current session ID, or "" when Idle.
func (d *Detector) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.ID
}

// Session returns a copy of the current session.
func (d *Detector) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Status reports state, level and the effective configuration: the frozen
// session config while Recording, otherwise the store's current values.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Status{
		State:     d.state,
		SessionID: d.session.ID,
		Level:     d.lastLevel,
	}
	if d.state == StateRecording {
		st.Config = d.session.Config
		st.Duration = int(d.now().Sub(d.session.RecordingStart) / time.Second)
	} else {
		st.Config = d.store.Snapshot()
	}
	return st
}

// WhileIdle runs fn while holding the state lock, provided no session is
// active. It is used for settings that may only change between sessions.
func (d *Detector) WhileIdle(operation string, fn func(*ConfigStore) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateIdle {
		return stateConflict(operation, "cannot change settings while a session is active", d.state)
	}
	return fn(d.store)
}

// Store returns the config store the detector reads from.
func (d *Detector) Store() *ConfigStore {
	return d.store
}

type noopMetrics struct{}

func (noopMetrics) SetState(string)                           {}
func (noopMetrics) ObserveLevel(float64)                      {}
func (noopMetrics) RecordBufferWritten(int)                   {}
func (noopMetrics) RecordWriteFailure()                       {}
func (noopMetrics) RecordCreateFailure()                      {}
func (noopMetrics) RecordSession(string, bool, time.Duration) {}
