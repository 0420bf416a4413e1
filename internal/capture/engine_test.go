package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	vxerrors "github.com/tphakala/voxrec/internal/errors"
	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStream struct {
	mu       sync.Mutex
	onData   DataFunc
	format   SampleFormat
	channels int
	startErr error
	started  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) Format() SampleFormat { return s.format }
func (s *fakeStream) Channels() int        { return s.channels }

// push delivers data like a device callback. Nothing is delivered before
// Start or after Close.
func (s *fakeStream) push(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return false
	}
	s.onData(data, uint32(len(data)/s.format.BytesPerSample()/s.channels))
	return true
}

func (s *fakeStream) state() (started, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.closed
}

type fakeBackend struct {
	mu         sync.Mutex
	devices    []DeviceInfo
	devicesErr error
	openErr    error
	startErr   error
	format     SampleFormat
	gate       chan struct{}
	configs    []StreamConfig
	streams    []*fakeStream
	closed     bool
}

func (b *fakeBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices, b.devicesErr
}

func (b *fakeBackend) Open(cfg StreamConfig, onData DataFunc) (Stream, error) {
	if b.gate != nil {
		<-b.gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, cfg)
	if b.openErr != nil {
		return nil, b.openErr
	}
	format := b.format
	if format == FormatUnknown {
		format = FormatF32
	}
	s := &fakeStream{onData: onData, format: format, channels: int(cfg.Channels), startErr: b.startErr}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) stream(i int) *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.streams) {
		return nil
	}
	return b.streams[i]
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.configs)
}

// countingWriter counts appended frames.
type countingWriter struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (w *countingWriter) Append(buf recorder.Buffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames += buf.Frames()
	return nil
}

func (w *countingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type engineFixture struct {
	engine   *Engine
	detector *recorder.Detector
	backend  *fakeBackend
	clock    *fakeClock
	writer   *countingWriter
}

func newEngineFixture(t *testing.T, backend *fakeBackend, mutate func(*recorder.RecordingConfig)) *engineFixture {
	t.Helper()

	cfg := recorder.DefaultConfig()
	cfg.SampleRate = 48000
	cfg.Channels = 1
	cfg.OutputPath = "unused.wav"
	cfg.StopTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := recorder.NewConfigStore(cfg)
	require.NoError(t, err)

	f := &engineFixture{
		backend: backend,
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		writer:  &countingWriter{},
	}
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, time.UTC)
	f.detector = recorder.NewDetector(store,
		recorder.WithClock(f.clock.Now),
		recorder.WithLogger(log),
		recorder.WithWriterFactory(func(recorder.RecordingConfig) (recorder.Writer, error) {
			return f.writer, nil
		}))
	f.engine = NewEngine(f.detector, backend, WithEngineLogger(log))
	return f
}

func (f *engineFixture) awaitStream(t *testing.T) *fakeStream {
	t.Helper()
	require.Eventually(t, func() bool {
		s := f.backend.stream(0)
		if s == nil {
			return false
		}
		started, _ := s.state()
		return started
	}, time.Second, time.Millisecond)
	return f.backend.stream(0)
}

func f32Bytes(value float32, samples int) []byte {
	out := make([]byte, samples*4)
	for i := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(value))
	}
	return out
}

func TestEngineStartOpensStreamWithSnapshotFormat(t *testing.T) {
	backend := &fakeBackend{}
	f := newEngineFixture(t, backend, nil)

	id, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, recorder.StateArmed, f.detector.State())

	stream := f.awaitStream(t)
	assert.Equal(t, StreamConfig{DeviceID: "", SampleRate: 48000, Channels: 1}, backend.configs[0])

	require.True(t, stream.push(f32Bytes(0.5, 480)))
	assert.Equal(t, recorder.StateRecording, f.detector.State())

	require.NoError(t, f.engine.Stop())
	assert.Equal(t, recorder.StateIdle, f.detector.State())
	_, closed := stream.state()
	assert.True(t, closed)
	assert.True(t, f.writer.closed)
	assert.Equal(t, 480, f.writer.frames)

	require.NoError(t, f.engine.Close())
	assert.True(t, backend.closed)
}

func TestEngineStartConflict(t *testing.T) {
	f := newEngineFixture(t, &fakeBackend{}, nil)
	defer f.engine.Close()

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)

	_, err = f.engine.Start(context.Background())
	require.ErrorIs(t, err, recorder.ErrStateConflict)
}

func TestEngineStopWhenIdle(t *testing.T) {
	f := newEngineFixture(t, &fakeBackend{}, nil)
	defer f.engine.Close()

	require.ErrorIs(t, f.engine.Stop(), recorder.ErrStateConflict)
}

func TestEngineOpenFailureAbortsSession(t *testing.T) {
	f := newEngineFixture(t, &fakeBackend{openErr: errors.New("device busy")}, nil)
	defer f.engine.Close()

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err, "stream errors are not reported to the caller")

	require.Eventually(t, func() bool {
		return f.detector.State() == recorder.StateIdle
	}, time.Second, time.Millisecond)

	// A fresh session can be started afterwards.
	_, err = f.engine.Start(context.Background())
	require.NoError(t, err)
}

func TestEngineStreamStartFailureAbortsSession(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("no permission")}
	f := newEngineFixture(t, backend, nil)
	defer f.engine.Close()

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.detector.State() == recorder.StateIdle
	}, time.Second, time.Millisecond)
	_, closed := backend.stream(0).state()
	assert.True(t, closed)
}

func TestEngineCancelledContextAbortsSession(t *testing.T) {
	backend := &fakeBackend{}
	f := newEngineFixture(t, backend, nil)
	defer f.engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Start(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.detector.State() == recorder.StateIdle
	}, time.Second, time.Millisecond)
	assert.Zero(t, backend.openCount())
}

func TestEngineDeviceResolution(t *testing.T) {
	devices := []DeviceInfo{
		{Index: 0, Name: "Built-in Microphone", ID: "hw:0,0", IsDefault: true},
		{Index: 1, Name: "USB Audio", ID: "hw:1,0"},
	}

	tests := []struct {
		name       string
		device     string
		devicesErr error
		wantID     string
	}{
		{"exact name", "USB Audio", nil, "hw:1,0"},
		{"unknown name falls back", "Missing Mic", nil, ""},
		{"unset uses default", "", nil, ""},
		{"enumeration error falls back", "USB Audio", errors.New("alsa"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{devices: devices, devicesErr: tt.devicesErr}
			f := newEngineFixture(t, backend, func(c *recorder.RecordingConfig) {
				c.DeviceName = tt.device
			})
			defer f.engine.Close()

			_, err := f.engine.Start(context.Background())
			require.NoError(t, err)
			f.awaitStream(t)

			assert.Equal(t, tt.wantID, backend.configs[0].DeviceID)
			assert.Equal(t, recorder.StateArmed, f.detector.State(), "fallback is not fatal")
		})
	}
}

func TestEngineAutoStopReleasesStream(t *testing.T) {
	backend := &fakeBackend{}
	f := newEngineFixture(t, backend, nil)
	defer f.engine.Close()

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	stream := f.awaitStream(t)

	require.True(t, stream.push(f32Bytes(0.5, 480)))
	require.Equal(t, recorder.StateRecording, f.detector.State())

	f.clock.Advance(2100 * time.Millisecond)
	require.True(t, stream.push(f32Bytes(0.001, 480)))
	assert.Equal(t, recorder.StateIdle, f.detector.State())

	require.Eventually(t, func() bool {
		_, closed := stream.state()
		return closed
	}, time.Second, time.Millisecond)
	assert.False(t, stream.push(f32Bytes(0.5, 480)))
	assert.True(t, f.writer.closed)
}

func TestEngineStopDuringSlowOpen(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	f := newEngineFixture(t, backend, nil)

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.engine.Stop())
	close(backend.gate)

	require.Eventually(t, func() bool {
		s := backend.stream(0)
		if s == nil {
			return false
		}
		_, closed := s.state()
		return closed
	}, time.Second, time.Millisecond)

	started, _ := backend.stream(0).state()
	assert.False(t, started, "stream of a finished session is never started")
	assert.Equal(t, recorder.StateIdle, f.detector.State())
	require.NoError(t, f.engine.Close())
}

func TestEngineCloseStopsActiveSession(t *testing.T) {
	backend := &fakeBackend{}
	f := newEngineFixture(t, backend, nil)

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	stream := f.awaitStream(t)

	require.NoError(t, f.engine.Close())
	assert.Equal(t, recorder.StateIdle, f.detector.State())
	_, closed := stream.state()
	assert.True(t, closed)

	_, err = f.engine.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, recorder.StateIdle, f.detector.State())
}

func TestEngineDecodesNonFloatStreams(t *testing.T) {
	backend := &fakeBackend{format: FormatS16}
	f := newEngineFixture(t, backend, nil)
	defer f.engine.Close()

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	stream := f.awaitStream(t)

	data := make([]byte, 2*100)
	for i := range 100 {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(16384)))
	}
	require.True(t, stream.push(data))

	status := f.detector.Status()
	assert.Equal(t, recorder.StateRecording, status.State)
	assert.InDelta(t, 50.0, status.Level, 0.001)
}

func TestEngineOpenReplacesUnreleasedStream(t *testing.T) {
	backend := &fakeBackend{}
	f := newEngineFixture(t, backend, nil)
	defer f.engine.Close()

	// Handle of an auto-stopped session whose release has not run yet.
	sink := &streamSink{engine: f.engine, format: FormatF32, channels: 1}
	stale, err := backend.Open(StreamConfig{SampleRate: 48000, Channels: 1}, sink.onData)
	require.NoError(t, err)
	require.NoError(t, stale.Start())
	f.engine.mu.Lock()
	f.engine.stream = stale
	f.engine.streamSession = "finished-session"
	f.engine.mu.Unlock()

	id, err := f.detector.Start()
	require.NoError(t, err)
	f.engine.openStream(context.Background(), id)

	_, closed := backend.stream(0).state()
	assert.True(t, closed, "replaced stream is closed")
	assert.False(t, backend.stream(0).push(f32Bytes(0.5, 480)))

	fresh := backend.stream(1)
	require.NotNil(t, fresh)
	require.True(t, fresh.push(f32Bytes(0.5, 480)))
	assert.Equal(t, 480, f.writer.frames)
}

func TestEngineRestartAfterAutoStopUsesSingleStream(t *testing.T) {
	backend := &fakeBackend{}
	f := newEngineFixture(t, backend, nil)
	defer f.engine.Close()

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	first := f.awaitStream(t)

	require.True(t, first.push(f32Bytes(0.5, 480)))
	f.clock.Advance(2100 * time.Millisecond)
	require.True(t, first.push(f32Bytes(0.001, 480)))
	require.Equal(t, recorder.StateIdle, f.detector.State())

	// Restart without waiting for the auto-stop release.
	_, err = f.engine.Start(context.Background())
	require.NoError(t, err)

	var second *fakeStream
	require.Eventually(t, func() bool {
		second = backend.stream(1)
		if second == nil {
			return false
		}
		started, _ := second.state()
		return started
	}, time.Second, time.Millisecond)

	_, closed := first.state()
	assert.True(t, closed, "first session's stream is released")

	before := f.writer.frames
	assert.False(t, first.push(f32Bytes(0.5, 480)))
	require.True(t, second.push(f32Bytes(0.5, 480)))
	assert.Equal(t, before+480, f.writer.frames, "each buffer is written once")
}

type recordingReporter struct {
	mu       sync.Mutex
	reported []*vxerrors.EnhancedError
}

func (r *recordingReporter) ReportError(ee *vxerrors.EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, ee)
}

func (r *recordingReporter) IsEnabled() bool { return true }

func (r *recordingReporter) find(component string) *vxerrors.EnhancedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ee := range r.reported {
		if ee.Component == component {
			return ee
		}
	}
	return nil
}

func TestEngineOpenFailureReportsHighPriority(t *testing.T) {
	// Replaces the global reporter.
	reporter := &recordingReporter{}
	vxerrors.SetTelemetryReporter(reporter)
	t.Cleanup(func() { vxerrors.SetTelemetryReporter(nil) })

	openErr := errors.New("device busy")
	f := newEngineFixture(t, &fakeBackend{openErr: openErr}, nil)
	defer f.engine.Close()

	var (
		mu    sync.Mutex
		cause string
	)
	f.detector.OnIdle(func(s recorder.SessionSummary) {
		mu.Lock()
		cause = s.Cause
		mu.Unlock()
	})

	_, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.detector.State() == recorder.StateIdle
	}, time.Second, time.Millisecond)

	ee := reporter.find(componentName)
	require.NotNil(t, ee)
	assert.Equal(t, vxerrors.CategoryAudioSource, ee.Category)
	assert.Equal(t, vxerrors.PriorityHigh, ee.Priority)
	assert.ErrorIs(t, ee, openErr)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "device busy", cause)
}
