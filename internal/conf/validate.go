// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// supportedBitDepths lists the PCM sample sizes the WAV writer can produce.
var supportedBitDepths = []int{8, 16, 24, 32}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateLoggingSettings,
		validateWebServerSettings,
		validateRecordingSettings,
		validateTelemetrySettings,
		validateMQTTSettings,
		validateHistorySettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLoggingSettings(s *Settings) error {
	if s.Logging.DefaultLevel != "" && !slices.Contains(validLogLevels, s.Logging.DefaultLevel) {
		return fmt.Errorf("logging default_level must be one of %v, got %q", validLogLevels, s.Logging.DefaultLevel)
	}
	if fo := s.Logging.FileOutput; fo != nil && fo.Enabled && fo.Path == "" {
		return errors.New("logging file_output path is required when file output is enabled")
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	if s.WebServer.Listen == "" {
		return errors.New("webserver listen address is required")
	}
	if _, _, err := net.SplitHostPort(s.WebServer.Listen); err != nil {
		return fmt.Errorf("webserver listen address %q is invalid: %w", s.WebServer.Listen, err)
	}
	return nil
}

func validateRecordingSettings(s *Settings) error {
	r := s.Recording
	var errs []error

	if r.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("recording samplerate must be positive, got %d", r.SampleRate))
	}
	if !slices.Contains(supportedBitDepths, r.BitDepth) {
		errs = append(errs, fmt.Errorf("recording bitdepth must be one of %v, got %d", supportedBitDepths, r.BitDepth))
	}
	if r.Channels < 1 {
		errs = append(errs, fmt.Errorf("recording channels must be at least 1, got %d", r.Channels))
	}
	if r.Output == "" {
		errs = append(errs, errors.New("recording output path is required"))
	}
	if r.StopTimeout < 0 {
		errs = append(errs, fmt.Errorf("recording stoptimeout must not be negative, got %s", r.StopTimeout))
	}
	// stopthreshold above startthreshold is accepted as-is.

	return errors.Join(errs...)
}

func validateTelemetrySettings(s *Settings) error {
	if s.Telemetry.Enabled && s.Telemetry.Sentry.DSN == "" {
		return errors.New("telemetry sentry dsn is required when telemetry is enabled")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Topic == "" {
		return errors.New("mqtt topic is required when mqtt is enabled")
	}
	u, err := url.Parse(s.MQTT.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("mqtt broker %q must be a URL such as tcp://host:1883", s.MQTT.Broker)
	}
	return nil
}

func validateHistorySettings(s *Settings) error {
	if s.History.Enabled && s.History.Path == "" {
		return errors.New("history path is required when history is enabled")
	}
	return nil
}
