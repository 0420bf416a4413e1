// conf/config.go
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/voxrec/internal/logger"
)

// EnvPrefix is prepended to environment overrides, e.g. VOXREC_RECORDING_DEVICE.
const EnvPrefix = "VOXREC"

// Settings contains all configuration options for voxrec.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	WebServer WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	Recording RecordingSettings    `mapstructure:"recording" yaml:"recording"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	MQTT      MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	History   HistorySettings      `mapstructure:"history" yaml:"history"`
}

// WebServerSettings configures the HTTP control plane.
type WebServerSettings struct {
	Listen string `mapstructure:"listen" yaml:"listen"` // host:port
}

// RecordingSettings seeds the recording configuration at process start.
// The control plane can change every value at runtime.
type RecordingSettings struct {
	Device         string        `mapstructure:"device" yaml:"device"` // empty selects the system default input
	SampleRate     int           `mapstructure:"samplerate" yaml:"samplerate"`
	BitDepth       int           `mapstructure:"bitdepth" yaml:"bitdepth"`
	Channels       int           `mapstructure:"channels" yaml:"channels"`
	Output         string        `mapstructure:"output" yaml:"output"`
	StartThreshold float64       `mapstructure:"startthreshold" yaml:"startthreshold"` // percent
	StopThreshold  float64       `mapstructure:"stopthreshold" yaml:"stopthreshold"`   // percent
	StopTimeout    time.Duration `mapstructure:"stoptimeout" yaml:"stoptimeout"`
}

// TelemetrySettings controls error reporting.
type TelemetrySettings struct {
	Enabled bool           `mapstructure:"enabled" yaml:"enabled"`
	Sentry  SentrySettings `mapstructure:"sentry" yaml:"sentry"`
}

// SentrySettings holds the Sentry client options.
type SentrySettings struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// MQTTSettings configures the session event publisher.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"` // e.g. tcp://localhost:1883
	Topic    string `mapstructure:"topic" yaml:"topic"`   // prefix, events go to <topic>/session
	ClientID string `mapstructure:"clientid" yaml:"clientid"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
}

// HistorySettings configures the SQLite session history.
type HistorySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into the global viper
// instance, validates the result and stores it as the current settings.
// An empty configFile searches the default config paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := loadFrom(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// loadFrom does the work of Load against any viper instance.
func loadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Info("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "windows" {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "voxrec"))
		} else {
			paths = append(paths, filepath.Join(homeDir, ".config", "voxrec"))
		}
	}

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/voxrec")
	}

	return paths
}

// Setting returns the current settings, loading them with defaults on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	settings, err := Load("")
	if err != nil {
		GetLogger().Error("failed to load settings", logger.Error(err))
		return nil
	}
	return settings
}

// SaveYAMLConfig writes settings to configPath. The file is written to a
// temporary sibling first and renamed into place.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
