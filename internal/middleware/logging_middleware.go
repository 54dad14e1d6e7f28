package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

// CorrelationHeader carries the request correlation id in and out
const CorrelationHeader = "X-Correlation-ID"

// LoggingConfig holds the configuration for logging middleware
type LoggingConfig struct {
	SkipPaths     []string
	LogHeaders    bool
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips probe and scrape endpoints
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths: []string{
			"/health",
			"/health/live",
			"/health/ready",
			"/metrics",
		},
		LogHeaders:    false,
		SlowThreshold: 5 * time.Second,
	}
}

var redactedHeaders = map[string]bool{
	"Authorization":                   true,
	"Cookie":                          true,
	"X-Api-Key":                       true,
	"X-Telegram-Bot-Api-Secret-Token": true,
}

// LoggingMiddleware assigns a correlation id to every request and logs one
// line per completed request at a level chosen by status
func LoggingMiddleware(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}
		c.Header(CorrelationHeader, correlationID)
		ctx := telemetry.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		fields := logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"query":       c.Request.URL.RawQuery,
			"status":      c.Writer.Status(),
			"size":        c.Writer.Size(),
			"duration_ms": float64(duration.Nanoseconds()) / 1e6,
			"remote_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if id, ok := c.Get(GatheringIDKey); ok {
			fields["gathering_id"] = id
		}
		if config.LogHeaders {
			headers := make(map[string]string, len(c.Request.Header))
			for name, values := range c.Request.Header {
				if redactedHeaders[name] {
					headers[name] = "[REDACTED]"
				} else if len(values) > 0 {
					headers[name] = values[0]
				}
			}
			fields["headers"] = headers
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		entry := telemetry.LogFromContext(c.Request.Context()).WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("HTTP request completed with server error")
		case c.Writer.Status() >= 400:
			entry.Warn("HTTP request completed with client error")
		case duration > config.SlowThreshold:
			entry.Warn("HTTP request completed (slow)")
		default:
			entry.Info("HTTP request completed")
		}
	}
}
