package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssimba1203/gather-map-clean/internal/services"
	"github.com/ssimba1203/gather-map-clean/internal/services/geocoding"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMetricsCollector_Records(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordSearch(services.SearchPlaces, geocoding.StatusOK, 20*time.Millisecond)
	mc.RecordSearch(services.SearchPlaces, geocoding.StatusOK, 30*time.Millisecond)
	mc.RecordSearch(services.SearchAddress, geocoding.StatusZeroResult, time.Millisecond)
	mc.RecordStaleDiscard()
	mc.RecordGatheringCreated()
	mc.RecordBotCommand("add", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(mc.searches.WithLabelValues(services.SearchPlaces, "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.searches.WithLabelValues(services.SearchAddress, "ZERO_RESULT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.staleDiscards))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.gatherings))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.botUpdates.WithLabelValues("add", "ok")))
}

func TestMetricsCollector_ActiveGatherings(t *testing.T) {
	mc := NewMetricsCollector()
	var n atomic.Int64
	n.Store(3)
	mc.RegisterActiveGatherings(func() int { return int(n.Load()) })

	families, err := mc.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "gathermap_active_gatherings" {
			found = true
			assert.Equal(t, 3.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestMonitoringMiddleware_RoutesAndMetrics(t *testing.T) {
	mc := NewMetricsCollector()
	hc := NewHealthChecker("gathermap", "test")
	mm := NewMonitoringMiddleware(nil, mc, hc)

	r := gin.New()
	r.Use(mm.GinMiddleware())
	mm.RegisterRoutes(r)
	r.DELETE("/api/gathering/friends/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/gathering/friends/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		mc.httpRequests.WithLabelValues(http.MethodDelete, "/api/gathering/friends/:id", "200")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "gathermap_http_requests_total"))
}

func TestHealthChecker_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		expected HealthStatus
		code     int
	}{
		{
			name:     "no checks",
			checks:   nil,
			expected: HealthStatusHealthy,
			code:     http.StatusOK,
		},
		{
			name: "degraded",
			checks: map[string]CheckFunc{
				"a": func(context.Context) ComponentHealth { return ComponentHealth{Status: HealthStatusHealthy} },
				"b": func(context.Context) ComponentHealth { return ComponentHealth{Status: HealthStatusDegraded} },
			},
			expected: HealthStatusDegraded,
			code:     http.StatusOK,
		},
		{
			name: "unhealthy wins",
			checks: map[string]CheckFunc{
				"a": func(context.Context) ComponentHealth { return ComponentHealth{Status: HealthStatusDegraded} },
				"b": func(context.Context) ComponentHealth { return ComponentHealth{Status: HealthStatusUnhealthy} },
			},
			expected: HealthStatusUnhealthy,
			code:     http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("gathermap", "test")
			for name, fn := range tt.checks {
				hc.RegisterCustomCheck(name, fn)
			}

			health := hc.GetHealth(context.Background())
			assert.Equal(t, tt.expected, health.Status)
			assert.Len(t, health.Components, len(tt.checks))

			r := gin.New()
			r.GET("/health", hc.HealthHandler())
			r.GET("/health/ready", hc.ReadinessHandler())

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, w.Code)

			var body HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expected, body.Status)
			assert.Equal(t, "gathermap", body.Service)

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestHealthChecker_PingCheck(t *testing.T) {
	hc := NewHealthChecker("gathermap", "test")
	hc.RegisterPingCheck("kakao", func(context.Context) error { return nil }, time.Second)
	hc.RegisterPingCheck("redis", func(context.Context) error { return errors.New("connection refused") }, time.Second)

	health := hc.GetHealth(context.Background())
	assert.Equal(t, HealthStatusHealthy, health.Components["kakao"].Status)
	assert.Equal(t, HealthStatusUnhealthy, health.Components["redis"].Status)
	assert.Contains(t, health.Components["redis"].Message, "connection refused")
	assert.NotNil(t, health.Components["redis"].Latency)
}

func TestHealthChecker_CachesResults(t *testing.T) {
	hc := NewHealthChecker("gathermap", "test")
	var calls atomic.Int32
	hc.RegisterCustomCheck("counted", func(context.Context) ComponentHealth {
		calls.Add(1)
		return ComponentHealth{Status: HealthStatusHealthy}
	})

	hc.GetHealth(context.Background())
	hc.GetHealth(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	hc.SetCheckInterval(0)
	time.Sleep(time.Millisecond)
	hc.GetHealth(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestLivenessHandler(t *testing.T) {
	hc := NewHealthChecker("gathermap", "test")
	r := gin.New()
	r.GET("/health/live", hc.LivenessHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}
