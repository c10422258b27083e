package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds all Prometheus collectors for the trust engine API.
var Metrics = struct {
	VotesTotal       *prometheus.CounterVec
	VoteDuration     prometheus.Histogram
	RequestDuration  *prometheus.HistogramVec
	DBPoolActive     prometheus.GaugeFunc
	DBPoolIdle       prometheus.GaugeFunc
	RequestsInFlight prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
}{}

// InitMetrics registers all Prometheus metrics on reg. Call once at startup.
// pool may be nil when the embedded store is in use.
func InitMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) {
	Metrics.VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scm_votes_total",
			Help: "Total vote submissions, by signal tab and outcome.",
		},
		[]string{"tab", "outcome"},
	)

	Metrics.VoteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scm_vote_pipeline_duration_seconds",
			Help:    "Duration of one vote pipeline run, including persistence.",
			Buckets: prometheus.DefBuckets,
		},
	)

	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scm_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	Metrics.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scm_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	Metrics.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scm_cache_hits_total",
			Help: "Total Redis listing cache hits.",
		},
	)

	Metrics.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scm_cache_misses_total",
			Help: "Total Redis listing cache misses.",
		},
	)

	if pool != nil {
		Metrics.DBPoolActive = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "scm_db_connection_pool_active",
				Help: "Number of active database connections.",
			},
			func() float64 {
				return float64(pool.Stat().AcquiredConns())
			},
		)

		Metrics.DBPoolIdle = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "scm_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			},
			func() float64 {
				return float64(pool.Stat().IdleConns())
			},
		)

		reg.MustRegister(Metrics.DBPoolActive, Metrics.DBPoolIdle)
	}

	reg.MustRegister(
		Metrics.VotesTotal,
		Metrics.VoteDuration,
		Metrics.RequestDuration,
		Metrics.RequestsInFlight,
		Metrics.CacheHits,
		Metrics.CacheMisses,
	)
}

// recordVote counts one pipeline outcome. No-op before InitMetrics.
func recordVote(tab, outcome string, took time.Duration) {
	if Metrics.VotesTotal == nil {
		return
	}
	Metrics.VotesTotal.WithLabelValues(tab, outcome).Inc()
	Metrics.VoteDuration.Observe(took.Seconds())
}

// MetricsMiddleware records request duration and in-flight count for Prometheus.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() == "/metrics" || Metrics.RequestDuration == nil {
			return c.Next()
		}

		// Fiber returns slices backed by the fasthttp buffer, which handlers
		// may reuse. Copy before c.Next().
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := sanitizeEndpoint(path)

		Metrics.RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())

		Metrics.RequestDuration.WithLabelValues(endpoint, method, status).Observe(duration)
		Metrics.RequestsInFlight.Dec()

		return err
	}
}

// sanitizeEndpoint normalizes paths to avoid cardinality explosion.
func sanitizeEndpoint(path string) string {
	switch {
	case path == "/api/listings/resolve":
		return path
	case strings.HasPrefix(path, "/api/listings/"):
		rest := strings.TrimPrefix(path, "/api/listings/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/listings/:listingId" + rest[i:]
		}
		return "/api/listings/:listingId"
	case strings.HasPrefix(path, "/api/reporters/"):
		return "/api/reporters/:reporterId"
	default:
		return path
	}
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler(g prometheus.Gatherer) fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
