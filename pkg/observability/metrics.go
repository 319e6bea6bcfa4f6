// Package observability exposes the service's Prometheus metrics. A small
// fixed set is registered at init: HTTP request counts and latency, and
// authentication/authorization outcomes.
package observability

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
			Name: "kredensia_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kredensia_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kredensia_auth_attempts_total",
			Help: "Login attempts by outcome (success, invalid_credentials, inactive, error)",
		},
		[]string{"outcome"},
	)

	authDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kredensia_authz_denied_total",
			Help: "Requests rejected by an authorization middleware stage",
		},
		[]string{"stage"},
	)

	revokedTokensActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kredensia_revoked_tokens_active",
			Help: "Tokens currently held in the in-memory revocation set",
		},
	)
)

// ObserveRequest records one completed HTTP request.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthAttempt records a login attempt outcome.
func RecordAuthAttempt(outcome string) {
	authAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordDenied records a request rejected by a middleware stage.
func RecordDenied(stage string) {
	authDeniedTotal.WithLabelValues(stage).Inc()
}

// SetRevokedTokens updates the revocation-set size gauge.
func SetRevokedTokens(n int) {
	revokedTokensActive.Set(float64(n))
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
