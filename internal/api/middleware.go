package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/voxrec/internal/logger"
)

// LoggingMiddleware creates a middleware function that logs API requests.
// Each request gets a correlation ID, returned in X-Request-ID and carried
// by the request context into handler logs and error responses.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()

			correlationID := generateCorrelationID()
			req := ctx.Request()
			ctx.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), correlationID)))
			ctx.Response().Header().Set(echo.HeaderXRequestID, correlationID)

			err := next(ctx)

			req = ctx.Request()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.String("query", req.URL.RawQuery),
				logger.Int("status", ctx.Response().Status),
				logger.String("ip", ctx.RealIP()),
				logger.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				fields = append(fields, logger.Error(err))
			}

			// Status polling is frequent; keep it out of the info log.
			level := logger.LogLevelInfo
			if req.URL.Path == "/status" || req.URL.Path == "/metrics" {
				level = logger.LogLevelDebug
			}
			c.log.WithContext(req.Context()).Log(level, "API request", fields...)
			return err
		}
	}
}

// requestCorrelationID returns the ID assigned by LoggingMiddleware, or ""
// when the handler runs without it.
func requestCorrelationID(ctx echo.Context) string {
	id, _ := ctx.Request().Context().Value(logger.TraceIDKey).(string)
	return id
}
