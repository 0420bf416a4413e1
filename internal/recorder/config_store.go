package recorder

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// RecordingConfig is a snapshot of the recording settings. Values are copied
// out of the ConfigStore, so holders never observe later changes.
type RecordingConfig struct {
	SampleRate     float64       `json:"sampleRate" validate:"gt=0"`
	BitDepth       int           `json:"bitDepth" validate:"gt=0"`
	Channels       int           `json:"channels" validate:"gte=1"`
	OutputPath     string        `json:"outputPath" validate:"required"`
	StartThreshold float64       `json:"startThreshold"` // percent
	StopThreshold  float64       `json:"stopThreshold"`  // percent
	StopTimeout    time.Duration `json:"stopTimeout" validate:"gte=0"`
	DeviceName     string        `json:"deviceName"` // empty selects the default input
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() RecordingConfig {
	return RecordingConfig{
		SampleRate:     96000,
		BitDepth:       24,
		Channels:       2,
		OutputPath:     "capture.wav",
		StartThreshold: 3.0,
		StopThreshold:  1.0,
		StopTimeout:    60 * time.Second,
	}
}

// StopTimeoutSeconds returns the silence timeout in seconds.
func (c RecordingConfig) StopTimeoutSeconds() float64 {
	return c.StopTimeout.Seconds()
}

// Format renders the stream format as rate-bits-channels, e.g. 48000-24-2.
func (c RecordingConfig) Format() string {
	return strconv.FormatFloat(c.SampleRate, 'f', -1, 64) + "-" +
		strconv.Itoa(c.BitDepth) + "-" + strconv.Itoa(c.Channels)
}

// ParseFormat parses the rate-bits-channels wire form. It requires exactly
// three runs of ASCII digits; signs and whitespace are rejected.
func ParseFormat(format string) (rate, bits, channels int, err error) {
	parts := strings.Split(format, "-")
	if len(parts) != 3 {
		return 0, 0, 0, invalidArgument("parse_format", "format %q must be rate-bits-channels", format)
	}

	values := make([]int, 3)
	for i, part := range parts {
		if !isDigits(part) {
			return 0, 0, 0, invalidArgument("parse_format", "format %q: %q is not an integer", format, part)
		}
		v, convErr := strconv.Atoi(part)
		if convErr != nil {
			return 0, 0, 0, invalidArgument("parse_format", "format %q: %q is not an integer", format, part)
		}
		values[i] = v
	}

	return values[0], values[1], values[2], nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ThresholdUpdate carries optional threshold changes. Nil fields are left
// unchanged.
type ThresholdUpdate struct {
	Start     *float64
	Stop      *float64
	TimeoutMs *float64
}

// ConfigStore is the concurrency-safe owner of the RecordingConfig. It is
// read from the audio callback on every buffer and written by control
// requests.
type ConfigStore struct {
	mu       sync.RWMutex
	cfg      RecordingConfig
	validate *validator.Validate
}

// NewConfigStore returns a store seeded with initial, which must be valid.
func NewConfigStore(initial RecordingConfig) (*ConfigStore, error) {
	s := &ConfigStore{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if err := s.validate.Struct(initial); err != nil {
		return nil, invalidArgument("new_config_store", "initial config: %v", err)
	}
	s.cfg = initial
	return s, nil
}

// Snapshot returns a copy of the current configuration.
func (s *ConfigStore) Snapshot() RecordingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetDevice stores the capture device name used by the next session.
func (s *ConfigStore) SetDevice(name string) error {
	if err := s.validate.Var(name, "required"); err != nil {
		return invalidArgument("set_device", "device name is required")
	}

	s.mu.Lock()
	s.cfg.DeviceName = name
	s.mu.Unlock()

	GetLogger().Info("capture device changed", deviceField(name))
	return nil
}

// SetFormat updates sample rate, bit depth and channel count together.
func (s *ConfigStore) SetFormat(rate, bits, channels int) error {
	if rate <= 0 || bits <= 0 || channels <= 0 {
		return invalidArgument("set_format", "format values must be positive, got %d-%d-%d", rate, bits, channels)
	}

	s.mu.Lock()
	s.cfg.SampleRate = float64(rate)
	s.cfg.BitDepth = bits
	s.cfg.Channels = channels
	s.mu.Unlock()

	GetLogger().Debug("recording format changed", formatField(rate, bits, channels))
	return nil
}

// SetFormatString parses a rate-bits-channels string and applies it.
// Nothing changes when parsing fails.
func (s *ConfigStore) SetFormatString(format string) error {
	rate, bits, channels, err := ParseFormat(format)
	if err != nil {
		return err
	}
	return s.SetFormat(rate, bits, channels)
}

// SetOutputPath stores the output file path used by the next session.
func (s *ConfigStore) SetOutputPath(path string) error {
	if err := s.validate.Var(path, "required"); err != nil {
		return invalidArgument("set_output_path", "output path is required")
	}

	s.mu.Lock()
	s.cfg.OutputPath = path
	s.mu.Unlock()

	GetLogger().Info("output path changed", pathField(path))
	return nil
}

// SetThresholds replaces both thresholds and the stop timeout, given in
// milliseconds. Any combination is accepted, including stop above start.
// A negative timeout is stored as zero.
func (s *ConfigStore) SetThresholds(start, stop, timeoutMs float64) {
	s.SetThresholdFields(ThresholdUpdate{Start: &start, Stop: &stop, TimeoutMs: &timeoutMs})
}

// SetThresholdFields applies the fields present in u.
func (s *ConfigStore) SetThresholdFields(u ThresholdUpdate) {
	s.mu.Lock()
	if u.Start != nil {
		s.cfg.StartThreshold = *u.Start
	}
	if u.Stop != nil {
		s.cfg.StopThreshold = *u.Stop
	}
	if u.TimeoutMs != nil {
		s.cfg.StopTimeout = millisToDuration(*u.TimeoutMs)
	}
	cfg := s.cfg
	s.mu.Unlock()

	GetLogger().Debug("thresholds changed", thresholdFields(cfg)...)
}

func millisToDuration(ms float64) time.Duration {
	if ms <= 0 || math.IsNaN(ms) {
		return 0
	}
	if ms >= float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (c RecordingConfig) String() string {
	return fmt.Sprintf("%s %q device=%q start=%.2f stop=%.2f timeout=%s",
		c.Format(), c.OutputPath, c.DeviceName, c.StartThreshold, c.StopThreshold, c.StopTimeout)
}
