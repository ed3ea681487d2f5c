// Package observability registers the service's Prometheus metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravaaddon",
		Subsystem: "enricher",
		Name:      "jobs_processed_total",
		Help:      "Enrichment jobs processed, partitioned by outcome.",
	}, []string{"outcome"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravaaddon",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Tiered cache lookups, partitioned by namespace and resolving tier.",
	}, []string{"namespace", "tier"})

	tokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravaaddon",
		Subsystem: "credentials",
		Name:      "token_refreshes_total",
		Help:      "OAuth token refresh attempts, partitioned by result.",
	}, []string{"result"})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stravaaddon",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Jobs currently waiting in the work queue.",
	})
)

func init() {
	prometheus.MustRegister(jobsProcessed, cacheLookups, tokenRefreshes, queueDepth)
}

// Job outcomes.
const (
	OutcomeEnriched = "enriched"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// RecordJob counts one finished enrichment job.
func RecordJob(outcome string) {
	jobsProcessed.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts one cache resolution at the given tier
// ("memory", "disk" or "fetch").
func RecordCacheLookup(namespace, tier string) {
	cacheLookups.WithLabelValues(namespace, tier).Inc()
}

// RecordTokenRefresh counts one refresh attempt ("ok" or "error").
func RecordTokenRefresh(result string) {
	tokenRefreshes.WithLabelValues(result).Inc()
}

// SetQueueDepth updates the pending-work gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
