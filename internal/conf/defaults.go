// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/voxrec.log")
	v.SetDefault("logging.file_output.level", "info")
	v.SetDefault("logging.file_output.max_size", 100)
	v.SetDefault("logging.file_output.max_age", 30)
	v.SetDefault("logging.file_output.max_rotated_files", 10)
	v.SetDefault("logging.file_output.compress", false)

	v.SetDefault("webserver.listen", ":8080")

	v.SetDefault("recording.device", "")
	v.SetDefault("recording.samplerate", 96000)
	v.SetDefault("recording.bitdepth", 24)
	v.SetDefault("recording.channels", 2)
	v.SetDefault("recording.output", "capture.wav")
	v.SetDefault("recording.startthreshold", 3.0)
	v.SetDefault("recording.stopthreshold", 1.0)
	v.SetDefault("recording.stoptimeout", 60*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sentry.dsn", "")
	v.SetDefault("telemetry.sentry.environment", "production")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "voxrec")
	v.SetDefault("mqtt.clientid", "voxrec")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "voxrec.db")
}
