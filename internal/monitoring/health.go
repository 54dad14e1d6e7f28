package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"

	"github.com/ssimba1203/gather-map-clean/internal/cache"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	Latency     *int64       `json:"latency_ms,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	Details     interface{}  `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Service    string                     `json:"service"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	System     SystemInfo                 `json:"system"`
}

// SystemInfo represents system-level information
type SystemInfo struct {
	AllocatedBytes uint64 `json:"allocated_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGC          uint32 `json:"num_gc"`
	Goroutines     int    `json:"goroutines"`
	GoVersion      string `json:"go_version"`
}

// CheckFunc probes one component
type CheckFunc func(ctx context.Context) ComponentHealth

// HealthChecker runs registered component checks and caches the results
// for checkInterval
type HealthChecker struct {
	mu            sync.Mutex
	startTime     time.Time
	service       string
	version       string
	components    map[string]ComponentHealth
	checkFuncs    map[string]CheckFunc
	lastCheck     time.Time
	checkInterval time.Duration
	checkTimeout  time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		startTime:     time.Now(),
		service:       service,
		version:       version,
		components:    make(map[string]ComponentHealth),
		checkFuncs:    make(map[string]CheckFunc),
		checkInterval: 15 * time.Second,
		checkTimeout:  5 * time.Second,
	}
}

// SetCheckInterval changes how long results are reused
func (hc *HealthChecker) SetCheckInterval(d time.Duration) {
	hc.mu.Lock()
	hc.checkInterval = d
	hc.mu.Unlock()
}

func measured(status HealthStatus, message string, start time.Time, details interface{}) ComponentHealth {
	latency := time.Since(start).Milliseconds()
	return ComponentHealth{
		Status:      status,
		Message:     message,
		Latency:     &latency,
		LastChecked: time.Now(),
		Details:     details,
	}
}

// RegisterPingCheck registers a check that calls ping and reports degraded
// when it takes longer than slow
func (hc *HealthChecker) RegisterPingCheck(name string, ping func(ctx context.Context) error, slow time.Duration) {
	hc.RegisterCustomCheck(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := ping(ctx); err != nil {
			return measured(HealthStatusUnhealthy, fmt.Sprintf("%s check failed: %v", name, err), start, nil)
		}
		if slow > 0 && time.Since(start) > slow {
			return measured(HealthStatusDegraded, name+" is slow", start, nil)
		}
		return measured(HealthStatusHealthy, name+" is reachable", start, nil)
	})
}

// RegisterDatabaseCheck registers a database health check
func (hc *HealthChecker) RegisterDatabaseCheck(name string, db *sql.DB) {
	hc.RegisterCustomCheck(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := db.PingContext(ctx); err != nil {
			return measured(HealthStatusUnhealthy, fmt.Sprintf("Database connection failed: %v", err), start, nil)
		}

		stats := db.Stats()
		details := map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
			"wait_duration":    stats.WaitDuration.String(),
		}

		status := HealthStatusHealthy
		if time.Since(start) > time.Second {
			status = HealthStatusDegraded
		}
		return measured(status, "Database connection successful", start, details)
	})
}

// RegisterRedisCheck registers a Redis health check
func (hc *HealthChecker) RegisterRedisCheck(name string, redis *cache.RedisService) {
	hc.RegisterCustomCheck(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := redis.HealthCheck(ctx); err != nil {
			return measured(HealthStatusUnhealthy, fmt.Sprintf("Redis connection failed: %v", err), start, nil)
		}

		status := HealthStatusHealthy
		if time.Since(start) > 500*time.Millisecond {
			status = HealthStatusDegraded
		}
		return measured(status, "Redis connection successful", start, redis.GetStats(ctx))
	})
}

// RegisterTelegramBotCheck registers a Telegram bot health check
func (hc *HealthChecker) RegisterTelegramBotCheck(name string, botAPI *bot.Bot) {
	hc.RegisterCustomCheck(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		me, err := botAPI.GetMe(ctx)
		if err != nil {
			return measured(HealthStatusUnhealthy, fmt.Sprintf("Telegram API connection failed: %v", err), start, nil)
		}

		status := HealthStatusHealthy
		if time.Since(start) > 2*time.Second {
			status = HealthStatusDegraded
		}
		return measured(status, "Telegram bot connection successful", start, map[string]interface{}{
			"bot_username": me.Username,
			"bot_id":       me.ID,
		})
	})
}

// RegisterCustomCheck registers a custom health check function
func (hc *HealthChecker) RegisterCustomCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkFuncs[name] = check
	hc.lastCheck = time.Time{}
}

// RunChecks executes all registered health checks concurrently
func (hc *HealthChecker) RunChecks(ctx context.Context) {
	hc.mu.Lock()
	checks := make(map[string]CheckFunc, len(hc.checkFuncs))
	for name, fn := range hc.checkFuncs {
		checks[name] = fn
	}
	timeout := hc.checkTimeout
	hc.mu.Unlock()

	results := make(map[string]ComponentHealth, len(checks))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			res := fn(cctx)
			rmu.Lock()
			results[name] = res
			rmu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	hc.mu.Lock()
	hc.components = results
	hc.lastCheck = time.Now()
	hc.mu.Unlock()
}

// GetHealth returns the current health status, rerunning checks when the
// cached results are older than the check interval
func (hc *HealthChecker) GetHealth(ctx context.Context) HealthResponse {
	hc.mu.Lock()
	stale := time.Since(hc.lastCheck) > hc.checkInterval
	hc.mu.Unlock()
	if stale {
		hc.RunChecks(ctx)
	}

	hc.mu.Lock()
	components := make(map[string]ComponentHealth, len(hc.components))
	for name, c := range hc.components {
		components[name] = c
	}
	hc.mu.Unlock()

	overall := HealthStatusHealthy
	for _, component := range components {
		if component.Status == HealthStatusUnhealthy {
			overall = HealthStatusUnhealthy
			break
		}
		if component.Status == HealthStatusDegraded {
			overall = HealthStatusDegraded
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return HealthResponse{
		Status:     overall,
		Service:    hc.service,
		Version:    hc.version,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hc.startTime).Round(time.Second).String(),
		Components: components,
		System: SystemInfo{
			AllocatedBytes: mem.Alloc,
			SysBytes:       mem.Sys,
			NumGC:          mem.NumGC,
			Goroutines:     runtime.NumGoroutine(),
			GoVersion:      runtime.Version(),
		},
	}
}

// HealthHandler returns a Gin handler for health checks
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth(c.Request.Context())

		// degraded still serves traffic
		statusCode := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, health)
	}
}

// ReadinessHandler returns a simple readiness check
func (hc *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if hc.GetHealth(c.Request.Context()).Status == HealthStatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"message": "Service is unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"message": "Service is ready to accept traffic",
		})
	}
}

// LivenessHandler returns a simple liveness check
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"uptime":    time.Since(hc.startTime).Round(time.Second).String(),
			"timestamp": time.Now(),
		})
	}
}
