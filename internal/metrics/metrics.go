// Package metrics exposes Prometheus collectors for the ledger service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttemptsTotal     *prometheus.CounterVec
	fetchFailuresTotal     *prometheus.CounterVec
	rateLimitDelaySeconds  *prometheus.HistogramVec
	articlesValidatedTotal *prometheus.CounterVec
	extractionsTotal       *prometheus.CounterVec
	mergesTotal            *prometheus.CounterVec
	batchDurationSeconds   prometheus.Histogram

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_fetch_attempts_total",
				Help: "Total fetch attempts, labeled by domain.",
			},
			[]string{"domain"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_fetch_failures_total",
				Help: "Terminal fetch failures, labeled by domain and kind.",
			},
			[]string{"domain", "kind"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_rate_limit_delay_seconds",
				Help:    "Delay introduced by the per-domain rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		)

		articlesValidatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_articles_validated_total",
				Help: "Validator outcomes, labeled by result (stored or reject reason).",
			},
			[]string{"result"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_extractions_total",
				Help: "Extraction outcomes, labeled by result.",
			},
			[]string{"result"},
		)

		mergesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_merges_total",
				Help: "Merge decisions, labeled by decision (created, attached, noop, failed).",
			},
			[]string{"decision"},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_batch_duration_seconds",
				Help:    "Wall time of one processing batch.",
				Buckets: []float64{1, 5, 15, 60, 300, 900},
			},
		)
	})
}

// ObserveFetchAttempt counts one fetch attempt against a domain.
func ObserveFetchAttempt(domain string) {
	if fetchAttemptsTotal != nil {
		fetchAttemptsTotal.WithLabelValues(domain).Inc()
	}
}

// ObserveFetchFailure counts a terminal fetch failure.
func ObserveFetchFailure(domain, kind string) {
	if fetchFailuresTotal != nil {
		fetchFailuresTotal.WithLabelValues(domain, kind).Inc()
	}
}

// ObserveRateLimitDelay records time spent waiting on the domain limiter.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
	}
}

// ObserveValidation counts a validator outcome.
func ObserveValidation(result string) {
	if articlesValidatedTotal != nil {
		articlesValidatedTotal.WithLabelValues(result).Inc()
	}
}

// ObserveExtraction counts an extraction outcome.
func ObserveExtraction(result string) {
	if extractionsTotal != nil {
		extractionsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveMerge counts a merge decision.
func ObserveMerge(decision string) {
	if mergesTotal != nil {
		mergesTotal.WithLabelValues(decision).Inc()
	}
}

// ObserveBatchDuration records how long one batch took.
func ObserveBatchDuration(d time.Duration) {
	if batchDurationSeconds != nil {
		batchDurationSeconds.Observe(d.Seconds())
	}
}
