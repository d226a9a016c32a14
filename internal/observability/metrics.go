package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialnet_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// SignupsTotal counts account registrations by outcome.
	SignupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialnet_signups_total",
		Help: "Total number of signup attempts by outcome",
	}, []string{"outcome"})

	// LikesTotal counts like and unlike operations by action and outcome.
	LikesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialnet_likes_total",
		Help: "Total number of like and unlike operations",
	}, []string{"action", "outcome"})

	// EnrichmentRequests counts calls to third-party enrichment providers.
	EnrichmentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialnet_enrichment_requests_total",
		Help: "Total number of enrichment provider calls by provider and outcome",
	}, []string{"provider", "outcome"})

	// NotificationsDropped counts realtime messages dropped because a client was too slow.
	NotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialnet_notifications_dropped_total",
		Help: "Total number of realtime notifications dropped due to backpressure",
	}, []string{"reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// Outcome maps an error to a metric label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
