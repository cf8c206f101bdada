package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the CMS
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	PermissionChecksTotal *prometheus.CounterVec
	PermissionCacheHits   prometheus.Counter
	PermissionCacheMisses prometheus.Counter

	// Content metrics
	ContentMutationsTotal *prometheus.CounterVec
	ContentVersionsTotal  prometheus.Counter
	PublishedContentGauge *prometheus.GaugeVec
	PublicCacheHitsTotal  *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campuscms_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campuscms_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campuscms_permission_checks_total",
				Help: "Total number of permission checks",
			},
			[]string{"permission", "allowed"},
		),
		PermissionCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campuscms_permission_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
		),
		PermissionCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campuscms_permission_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
		),
		ContentMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campuscms_content_mutations_total",
				Help: "Total number of content create/update/delete operations",
			},
			[]string{"content_type", "operation"},
		),
		ContentVersionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campuscms_content_versions_total",
				Help: "Total number of content version snapshots created",
			},
		),
		PublishedContentGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campuscms_published_content",
				Help: "Number of currently published content items",
			},
			[]string{"content_type"},
		),
		PublicCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campuscms_public_cache_requests_total",
				Help: "Public content cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campuscms_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campuscms_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCacheHits,
		m.PermissionCacheMisses,
		m.ContentMutationsTotal,
		m.ContentVersionsTotal,
		m.PublishedContentGauge,
		m.PublicCacheHitsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request count and duration per route
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
