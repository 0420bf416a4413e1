// Package conf provides configuration management for voxrec.
package conf

import "github.com/tphakala/voxrec/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched from the global logger each time because the central logger
// is installed after configuration has been read.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
