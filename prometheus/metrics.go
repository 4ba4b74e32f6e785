package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"crm-service/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Login counter
	LoginCounter prometheus.Counter

	// Auth error counters
	AuthErrorCounter *prometheus.CounterVec

	// Resource operation counter
	ResourceOperationCounter *prometheus.CounterVec

	// Cross-owner access attempts surfaced as not-found
	ScopeMissCounter *prometheus.CounterVec

	// HTTP request counter by endpoint and status
	HTTPRequestCounter *prometheus.CounterVec

	// Request duration
	RequestDuration *prometheus.HistogramVec

	// Database operation duration
	DBOperationDuration *prometheus.HistogramVec

	// Tokens issued since process start. A stateless token cannot be
	// counted back out on expiry, so this only ever grows.
	IssuedTokensGauge prometheus.Gauge

	// System info
	InfoGauge *prometheus.GaugeVec
)

const defaultPrefix = "crm"

func init() {
	buildMetrics(defaultPrefix)
}

// buildMetrics constructs every metric under the given name prefix.
func buildMetrics(prefix string) {
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_login_total",
			Help: "Total number of login attempts",
		},
	)

	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_credentials", "invalid_token", "db_error", ...
	)

	ResourceOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_resource_operations_total",
			Help: "Total number of CRM resource operations",
		},
		[]string{"resource", "operation"}, // resource: customer/deal/invoice, operation: create/get/list/update/delete
	)

	ScopeMissCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_scope_miss_total",
			Help: "Total number of data lookups that missed the owner scope",
		},
		[]string{"resource"},
	)

	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)

	IssuedTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_issued_tokens",
			Help: "Number of session tokens issued since process start",
		},
	)

	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_info",
			Help: "Information about the CRM service",
		},
		[]string{"version"},
	)
}

var registered bool

// InitMetrics applies the configured name prefix and registers all
// metrics with the default registry
func InitMetrics(cfg *config.Config) {
	if registered {
		return
	}
	registered = true

	if prefix := cfg.Metrics.Prefix; prefix != "" && prefix != defaultPrefix {
		buildMetrics(prefix)
	}

	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(ResourceOperationCounter)
	prometheus.MustRegister(ScopeMissCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)
	prometheus.MustRegister(IssuedTokensGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.WithLabelValues("1.0.0").Set(1)
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.WithLabelValues(errorType).Inc()
}

// RecordResourceOperation increments the operation counter for a resource
func RecordResourceOperation(resource, operation string) {
	ResourceOperationCounter.WithLabelValues(resource, operation).Inc()
}

// RecordScopeMiss increments the owner-scope miss counter for a resource
func RecordScopeMiss(resource string) {
	ScopeMissCounter.WithLabelValues(resource).Inc()
}

// TrackDBOperation returns a function that records the duration of a
// database operation when deferred: defer TrackDBOperation("query")(time.Now())
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// IncreaseIssuedTokens bumps the issued token gauge
func IncreaseIssuedTokens() {
	IssuedTokensGauge.Inc()
}

// MetricsMiddleware returns an Echo middleware recording request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method
			endpoint := c.Path()

			HTTPRequestCounter.WithLabelValues(endpoint, method, status).Inc()
			RequestDuration.WithLabelValues(endpoint, method, status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// GetPrometheusHandler returns an HTTP handler exposing the metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}
