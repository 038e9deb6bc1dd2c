package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcome labels for sqlpilot_resolutions_total.
const (
	OutcomeCacheHit          = "cache_hit"
	OutcomeSuccess           = "success"
	OutcomeIrrelevant        = "irrelevant"
	OutcomeClarification     = "clarification"
	OutcomePersistentFailure = "persistent_failure"
	OutcomeServiceError      = "service_error"
)

// Rejection reasons for sqlpilot_auth_failures_total.
const (
	AuthFailureMissingKey = "missing_key"
	AuthFailureInvalidKey = "invalid_key"
)

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_resolutions_total",
			Help: "Total number of completed question resolutions by outcome.",
		},
		[]string{"outcome"},
	)
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_classifications_total",
			Help: "Total number of question classifications by label.",
		},
		[]string{"label"},
	)
	generationAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlpilot_generation_attempts_total",
			Help: "Total number of SQL generation attempts, including correction rounds.",
		},
	)
	resolutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlpilot_resolution_duration_seconds",
			Help:    "End-to-end resolution latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlpilot_cache_hits_total",
			Help: "Total number of response cache hits.",
		},
	)
	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlpilot_cache_misses_total",
			Help: "Total number of response cache misses.",
		},
	)
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_auth_failures_total",
			Help: "Total number of rejected requests by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		resolutionsTotal,
		classificationsTotal,
		generationAttemptsTotal,
		resolutionDurationSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		authFailuresTotal,
	)
}

func ObserveResolution(outcome string, elapsed time.Duration) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
	resolutionDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveClassification(label string) {
	classificationsTotal.WithLabelValues(label).Inc()
}

func ObserveGenerationAttempt() {
	generationAttemptsTotal.Inc()
}

func ObserveCacheLookup(hit bool) {
	if hit {
		cacheHitsTotal.Inc()
	} else {
		cacheMissesTotal.Inc()
	}
}

func ObserveAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}
