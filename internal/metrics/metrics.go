// Package metrics provides Prometheus metrics for the signup collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchRequestsTotal counts CRM search calls by outcome.
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signups",
			Name:      "search_requests_total",
			Help:      "Total number of CRM search requests",
		},
		[]string{"outcome"},
	)

	// RateLimitRetriesTotal counts 429 responses that were retried.
	RateLimitRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signups",
			Name:      "rate_limit_retries_total",
			Help:      "Total number of rate-limited search requests that were retried",
		},
	)

	// CollectDuration measures a full collection run.
	CollectDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signups",
			Name:      "collect_duration_seconds",
			Help:      "Duration of collection runs in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// RecordsCollected tracks the size of the last completed run.
	RecordsCollected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signups",
			Name:      "records_collected",
			Help:      "Number of unique contacts returned by the last collection run",
		},
	)

	// CacheLookupsTotal counts snapshot cache lookups by result.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signups",
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by result",
		},
		[]string{"result"},
	)

	// ArchiveBatchesTotal counts archive writes by status.
	ArchiveBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signups",
			Name:      "archive_batches_total",
			Help:      "Archive batch writes by status",
		},
		[]string{"status"},
	)
)

// RecordSearch records one search request.
func RecordSearch(outcome string) {
	SearchRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordCollect records a finished collection run.
func RecordCollect(status string, records int, seconds float64) {
	CollectDuration.WithLabelValues(status).Observe(seconds)
	if status == "ok" || status == "partial" {
		RecordsCollected.Set(float64(records))
	}
}

func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

func RecordArchiveBatch(status string) {
	ArchiveBatchesTotal.WithLabelValues(status).Inc()
}
