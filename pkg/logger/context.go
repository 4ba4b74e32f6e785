package logger

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const RequestIDKey = "X-Request-ID"

// FromContext retrieves the request-scoped logger placed in the echo
// context by Middleware. When the middleware did not run (tests, probe
// routes) it falls back to the global logger with whatever request ID
// is available.
func FromContext(c echo.Context) *zap.Logger {
	if lg, ok := c.Get("logger").(*zap.Logger); ok {
		return lg
	}

	requestID, ok := c.Get(RequestIDKey).(string)
	if !ok {
		requestID = c.Request().Header.Get(RequestIDKey)
		if requestID == "" {
			requestID = "unknown"
		}
	}

	return GetLogger().With(zap.String("request_id", requestID))
}
