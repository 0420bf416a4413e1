package capture

import "github.com/tphakala/voxrec/internal/logger"

const componentName = "capture"

// GetLogger returns the capture package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentName)
}
