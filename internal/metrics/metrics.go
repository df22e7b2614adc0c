// Package metrics provides Prometheus metrics for the CloudVault proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudvault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudvault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	proxyActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudvault_proxy_actions_total",
			Help: "Total storage proxy actions by action and status",
		},
		[]string{"action", "status"},
	)

	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudvault_storage_operation_duration_seconds",
			Help:    "Object store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudvault_storage_operations_total",
			Help: "Total object store operations",
		},
		[]string{"operation", "status"},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudvault_bytes_uploaded_total",
			Help: "Total bytes uploaded through the proxy",
		},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudvault_bytes_downloaded_total",
			Help: "Total bytes downloaded through the proxy",
		},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudvault_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	scopeChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudvault_scope_checks_total",
			Help: "Total path scope validations",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProxyAction records a storage proxy action.
func RecordProxyAction(action string, success bool) {
	proxyActionsTotal.WithLabelValues(action, statusLabel(success)).Inc()
}

// RecordStorageOperation records an object store operation.
func RecordStorageOperation(operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

// RecordUpload records bytes uploaded through the proxy.
func RecordUpload(bytes int64) {
	bytesUploaded.Add(float64(bytes))
}

// RecordDownload records bytes downloaded through the proxy.
func RecordDownload(bytes int64) {
	bytesDownloaded.Add(float64(bytes))
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordScopeCheck records a path scope validation result.
func RecordScopeCheck(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	scopeChecksTotal.WithLabelValues(result).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
