package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts API calls by method and result.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_requests_total",
			Help: "Total API calls by method and result",
		},
		[]string{"method", "result"}, // result: success | network | timeout | http_error | auth_expired | csrf_error
	)

	// requestDuration tracks successful call duration by method.
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apiclient_request_duration_seconds",
			Help:    "API call duration by method",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
		},
		[]string{"method"},
	)

	// csrfFetchesTotal counts anti-forgery token fetches by result.
	csrfFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_csrf_fetches_total",
			Help: "Anti-forgery token endpoint fetches by result",
		},
		[]string{"result"}, // result: success | failure
	)

	// authRefreshesTotal counts silent credential refreshes by result.
	authRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_auth_refreshes_total",
			Help: "Silent credential refresh attempts by result",
		},
		[]string{"result"}, // result: success | failure
	)
)

// recordRequest records an API call outcome.
func recordRequest(method, result string) {
	requestsTotal.WithLabelValues(method, result).Inc()
}

// observeRequestDuration records a successful call's duration.
func observeRequestDuration(method string, durationSeconds float64) {
	requestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// recordCSRFFetch records an anti-forgery token fetch.
func recordCSRFFetch(result string) {
	csrfFetchesTotal.WithLabelValues(result).Inc()
}

// recordAuthRefresh records a silent credential refresh attempt.
func recordAuthRefresh(result string) {
	authRefreshesTotal.WithLabelValues(result).Inc()
}
