// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	LoginAttemptsTotal  *prometheus.CounterVec
	OAuthCallbacksTotal *prometheus.CounterVec
	LogAccessTotal      *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ta_login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"method", "result"},
		),
		OAuthCallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ta_oauth_callbacks_total",
				Help: "Total number of OAuth callbacks by provider",
			},
			[]string{"provider", "result"},
		),
		LogAccessTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ta_log_access_total",
				Help: "Total number of log list/read decisions",
			},
			[]string{"operation", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ta_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ta_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.OAuthCallbacksTotal,
		m.LogAccessTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Nop returns metrics registered with a throwaway registry.
func Nop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// Result turns an operation outcome into a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, common.ErrCSRFMismatch):
		return "csrf_mismatch"
	case errors.Is(err, common.ErrProviderProfileIncomplete):
		return "profile_incomplete"
	case errors.Is(err, common.ErrProviderExchangeFailed):
		return "provider_error"
	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrTokenMalformed):
		return "invalid_token"
	case errors.Is(err, common.ErrForbidden):
		return "forbidden"
	case errors.Is(err, common.ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, common.ErrorNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request counts and latencies. route maps a request
// to its route template so that path parameters do not explode label
// cardinality.
func (m *Metrics) HTTPMiddleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			name := route(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		})
	}
}
