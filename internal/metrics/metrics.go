package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quotaledger"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Background job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of jobs processed",
		},
		[]string{"type", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job execution time distribution",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"type"},
	)

	JobRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Total number of job retry attempts",
		},
		[]string{"type"},
	)
)

// Quota metrics. Labels carry metric names and tiers only, never user ids.
var (
	QuotaEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_evaluations_total",
			Help:      "Total number of quota evaluations by outcome",
		},
		[]string{"metric", "result"}, // "allowed" or "denied"
	)

	UsageIncrementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_increments_total",
			Help:      "Total number of usage increments recorded",
		},
		[]string{"metric"},
	)

	UsageUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_units_total",
			Help:      "Total usage units added to counters",
		},
		[]string{"metric"},
	)

	BillingCycleResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_cycle_resets_total",
			Help:      "Total number of billing cycles rolled forward",
		},
		[]string{"mode"}, // "forced" or "expired"
	)

	TierChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_changes_total",
			Help:      "Total number of audited subscription tier changes",
		},
		[]string{"event_type"},
	)

	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_lookups_total",
			Help:      "Tier catalog cache lookups by outcome",
		},
		[]string{"result"}, // "hit", "miss" or "error"
	)
)

// QuotaEvaluated records the outcome of one quota evaluation.
func QuotaEvaluated(metric string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	QuotaEvaluationsTotal.WithLabelValues(metric, result).Inc()
}

// UsageRecorded records one increment of amount units.
func UsageRecorded(metric string, amount int64) {
	UsageIncrementsTotal.WithLabelValues(metric).Inc()
	UsageUnitsTotal.WithLabelValues(metric).Add(float64(amount))
}
