package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	// A file with no recognized keys leaves every default in place.
	settings, err := loadFrom(viper.New(), writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	r := settings.Recording
	assert.Equal(t, 96000, r.SampleRate)
	assert.Equal(t, 24, r.BitDepth)
	assert.Equal(t, 2, r.Channels)
	assert.Equal(t, "capture.wav", r.Output)
	assert.InDelta(t, 3.0, r.StartThreshold, 1e-9)
	assert.InDelta(t, 1.0, r.StopThreshold, 1e-9)
	assert.Equal(t, 60*time.Second, r.StopTimeout)
	assert.Empty(t, r.Device)
	assert.Equal(t, ":8080", settings.WebServer.Listen)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadOverridesFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
recording:
  device: "USB Audio CODEC"
  samplerate: 48000
  bitdepth: 16
  channels: 1
  output: /tmp/voxrec/take.wav
  startthreshold: 5.5
  stoptimeout: 2m
webserver:
  listen: 127.0.0.1:9000
`)

	settings, err := loadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "USB Audio CODEC", settings.Recording.Device)
	assert.Equal(t, 48000, settings.Recording.SampleRate)
	assert.Equal(t, 16, settings.Recording.BitDepth)
	assert.Equal(t, 1, settings.Recording.Channels)
	assert.InDelta(t, 5.5, settings.Recording.StartThreshold, 1e-9)
	assert.Equal(t, 2*time.Minute, settings.Recording.StopTimeout)
	assert.Equal(t, "127.0.0.1:9000", settings.WebServer.Listen)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
recording:
  bitdepth: 12
  channels: 0
`)

	_, err := loadFrom(viper.New(), path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Errors, 1)
	assert.Contains(t, ve.Errors[0], "bitdepth")
	assert.Contains(t, ve.Errors[0], "channels")
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		return &Settings{
			WebServer: WebServerSettings{Listen: ":8080"},
			Recording: RecordingSettings{SampleRate: 48000, BitDepth: 24, Channels: 2, Output: "capture.wav"},
			History:   HistorySettings{Enabled: true, Path: "voxrec.db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"stop above start accepted", func(s *Settings) {
			s.Recording.StartThreshold = 1
			s.Recording.StopThreshold = 10
		}, ""},
		{"bad listen", func(s *Settings) { s.WebServer.Listen = "8080" }, "listen"},
		{"empty output", func(s *Settings) { s.Recording.Output = "" }, "output"},
		{"negative timeout", func(s *Settings) { s.Recording.StopTimeout = -time.Second }, "stoptimeout"},
		{"mqtt without broker host", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Topic: "voxrec", Broker: "localhost"}
		}, "mqtt broker"},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "dsn"},
		{"history without path", func(s *Settings) { s.History.Path = "" }, "history"},
		{"bad log level", func(s *Settings) { s.Logging.DefaultLevel = "loud" }, "default_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	t.Parallel()

	settings, err := loadFrom(viper.New(), writeConfig(t, "recording:\n  samplerate: 44100\n"))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(out, settings))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	recording, ok := decoded["recording"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 44100, recording["samplerate"])
	assert.Equal(t, "1m0s", recording["stoptimeout"])

	reloaded, err := loadFrom(viper.New(), out)
	require.NoError(t, err)
	assert.Equal(t, settings.Recording, reloaded.Recording)
}
