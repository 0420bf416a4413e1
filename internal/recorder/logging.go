package recorder

import "github.com/tphakala/voxrec/internal/logger"

// GetLogger returns the recorder package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("recorder")
}

func deviceField(name string) logger.Field {
	if name == "" {
		return logger.String("device", "default")
	}
	return logger.String("device", name)
}

func pathField(path string) logger.Field {
	return logger.String("path", path)
}

func formatField(rate, bits, channels int) logger.Field {
	return logger.String("format", RecordingConfig{SampleRate: float64(rate), BitDepth: bits, Channels: channels}.Format())
}

func thresholdFields(cfg RecordingConfig) []logger.Field {
	return []logger.Field{
		logger.Float64("start_threshold", cfg.StartThreshold),
		logger.Float64("stop_threshold", cfg.StopThreshold),
		logger.Duration("stop_timeout", cfg.StopTimeout),
	}
}
