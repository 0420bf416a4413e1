// Package observability wires the Prometheus registry and exposes it over HTTP.
package observability

import "github.com/tphakala/voxrec/internal/logger"

func getLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
