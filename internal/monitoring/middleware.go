package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware ties request metrics and health endpoints to a router
type MonitoringMiddleware struct {
	metrics *MetricsCollector
	health  *HealthChecker
	config  *MiddlewareConfig
}

// MiddlewareConfig configures the monitoring middleware
type MiddlewareConfig struct {
	MetricsPath string
	HealthPath  string
	// SkipPaths are not counted in request metrics
	SkipPaths []string
}

// DefaultMiddlewareConfig returns default configuration
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		MetricsPath: "/metrics",
		HealthPath:  "/health",
		SkipPaths:   []string{"/favicon.ico", "/robots.txt"},
	}
}

// NewMonitoringMiddleware creates a new monitoring middleware
func NewMonitoringMiddleware(config *MiddlewareConfig, metrics *MetricsCollector, health *HealthChecker) *MonitoringMiddleware {
	if config == nil {
		config = DefaultMiddlewareConfig()
	}
	return &MonitoringMiddleware{
		metrics: metrics,
		health:  health,
		config:  config,
	}
}

// GinMiddleware records one metric sample per request, labelled by the
// matched route so path parameters do not explode cardinality
func (mm *MonitoringMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if mm.metrics == nil || mm.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		mm.metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func (mm *MonitoringMiddleware) shouldSkipPath(path string) bool {
	if path == mm.config.MetricsPath {
		return true
	}
	for _, skip := range mm.config.SkipPaths {
		if path == skip {
			return true
		}
	}
	return false
}

// RegisterRoutes registers monitoring endpoints
func (mm *MonitoringMiddleware) RegisterRoutes(router gin.IRoutes) {
	if mm.metrics != nil {
		router.GET(mm.config.MetricsPath, mm.metrics.PrometheusHandler())
	}

	if mm.health != nil {
		router.GET(mm.config.HealthPath, mm.health.HealthHandler())
		router.GET(mm.config.HealthPath+"/live", mm.health.LivenessHandler())
		router.GET(mm.config.HealthPath+"/ready", mm.health.ReadinessHandler())
	}
}
