// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// HTTPRequests counts finished requests by route pattern, method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jokebox_http_requests_total",
		Help: "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jokebox_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// JokesGenerated counts calls to the text generator by outcome.
	JokesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jokebox_jokes_generated_total",
		Help: "Joke generation attempts by outcome",
	}, []string{"outcome"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jokebox_generation_duration_seconds",
		Help:    "Time spent waiting for the text generator",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})

	JokesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jokebox_pending_jokes_expired_total",
		Help: "Pending jokes marked failed after exceeding the pending timeout",
	})

	SessionsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jokebox_sessions_pruned_total",
		Help: "Expired session records deleted",
	})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jokebox_feed_subscribers",
		Help: "Currently connected change feed subscribers",
	})

	FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jokebox_feed_subscribers_dropped_total",
		Help: "Change feed subscribers disconnected for falling behind",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
