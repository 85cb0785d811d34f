package utils

import (
	"time"

	"github.com/gin-gonic/gin"
)

const loggerContextKey = "logger"

// ContextLogger stores the request-scoped logger in the gin context so
// handlers can log with the request id attached.
func ContextLogger(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(loggerContextKey, logger)
		c.Next()
	}
}

// GetLogger returns the request-scoped logger, falling back to a no-op
// when middleware did not run (tests mostly).
func GetLogger(c *gin.Context) Logger {
	if v, exists := c.Get(loggerContextKey); exists {
		if logger, ok := v.(Logger); ok {
			return logger
		}
	}
	return noopLogger{}
}

// LoggerMiddleware logs one line per completed request.
func LoggerMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request completed",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"),
		)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
