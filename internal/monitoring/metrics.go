package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssimba1203/gather-map-clean/internal/services"
	"github.com/ssimba1203/gather-map-clean/internal/services/geocoding"
)

const namespace = "gathermap"

// MetricsCollector owns the Prometheus collectors for the service
type MetricsCollector struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	staleDiscards  prometheus.Counter
	gatherings     prometheus.Counter
	botUpdates     *prometheus.CounterVec
}

var _ services.Metrics = (*MetricsCollector)(nil)

// NewMetricsCollector registers all collectors on a fresh registry together
// with the Go runtime and process collectors
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyword_searches_total",
			Help:      "Keyword searches by purpose and result status",
		}, []string{"purpose", "status"}),
		searchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keyword_search_duration_seconds",
			Help:      "Keyword search latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"purpose"}),
		staleDiscards: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_place_results_total",
			Help:      "Place search results dropped because the gathering changed meanwhile",
		}),
		gatherings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gatherings_created_total",
			Help:      "Gatherings created",
		}),
		botUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_commands_total",
			Help:      "Telegram bot commands by command and outcome",
		}, []string{"command", "outcome"}),
	}
}

// RegisterActiveGatherings exposes count as a gauge. Only backends able to
// count their entries cheaply (the in-memory store) register one.
func (mc *MetricsCollector) RegisterActiveGatherings(count func() int) {
	promauto.With(mc.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_gatherings",
		Help:      "Gatherings currently held by the store",
	}, func() float64 { return float64(count()) })
}

// Registry exposes the underlying registry for tests and extra collectors
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// RecordHTTPRequest records one completed HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	mc.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	mc.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSearch records one keyword search
func (mc *MetricsCollector) RecordSearch(purpose string, status geocoding.Status, duration time.Duration) {
	mc.searches.WithLabelValues(purpose, string(status)).Inc()
	mc.searchDuration.WithLabelValues(purpose).Observe(duration.Seconds())
}

// RecordStaleDiscard counts a dropped out-of-date place result
func (mc *MetricsCollector) RecordStaleDiscard() {
	mc.staleDiscards.Inc()
}

// RecordGatheringCreated counts a new gathering
func (mc *MetricsCollector) RecordGatheringCreated() {
	mc.gatherings.Inc()
}

// RecordBotCommand counts a handled Telegram command
func (mc *MetricsCollector) RecordBotCommand(command, outcome string) {
	mc.botUpdates.WithLabelValues(command, outcome).Inc()
}

// PrometheusHandler serves the registry in the Prometheus exposition format
func (mc *MetricsCollector) PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{}))
}
