package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alecgard/toolshelf/internal/apperr"
)

// Metrics holds all Prometheus metric collectors for the Toolshelf API.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Domain metrics.
	InvitesTotal         *prometheus.CounterVec
	OperationErrorsTotal *prometheus.CounterVec
	CatalogCacheTotal    *prometheus.CounterVec
	SessionsCleanedTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolshelf_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolshelf_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolshelf_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		HTTPActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolshelf_http_active_requests",
			Help: "Number of requests currently being served.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolshelf_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"limiter"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolshelf_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolshelf_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		InvitesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolshelf_invites_total",
			Help: "Invite attempts by outcome.",
		}, []string{"outcome"}),

		OperationErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolshelf_operation_errors_total",
			Help: "Errors returned by API operations, by error kind.",
		}, []string{"kind"}),

		CatalogCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolshelf_catalog_cache_requests_total",
			Help: "Catalog search cache lookups by result.",
		}, []string{"result"}),

		SessionsCleanedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolshelf_sessions_cleaned_total",
			Help: "Expired login sessions deleted by the background sweeper.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolshelf_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.HTTPActiveRequests,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.InvitesTotal,
		m.OperationErrorsTotal,
		m.CatalogCacheTotal,
		m.SessionsCleanedTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, pattern string, status, bytes int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(elapsed.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(bytes))
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(limiter string) {
	m.RateLimitRejectionsTotal.WithLabelValues(limiter).Inc()
}

// ObserveInvite records an invite outcome: "admitted" on success, otherwise
// the error kind.
func (m *Metrics) ObserveInvite(err error) {
	outcome := "admitted"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	m.InvitesTotal.WithLabelValues(outcome).Inc()
}

// IncOperationError counts an error returned to an API caller.
func (m *Metrics) IncOperationError(err error) {
	m.OperationErrorsTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
}

// ObserveCatalogCache counts a catalog cache lookup. Its signature matches
// catalog.WithCacheObserver.
func (m *Metrics) ObserveCatalogCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CatalogCacheTotal.WithLabelValues(result).Inc()
}

// AddSessionsCleaned adds n deleted sessions.
func (m *Metrics) AddSessionsCleaned(n int64) {
	m.SessionsCleanedTotal.Add(float64(n))
}
