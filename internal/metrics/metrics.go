package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dns_sentry"

var (
	// QueriesObserved counts QNAMEs extracted off the wire by the capture
	// adapter, whether or not they go on to be classified.
	QueriesObserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_observed_total",
		Help:      "DNS query names extracted from captured packets.",
	})

	// PacketsDropped counts capture-side packets discarded before a QNAME
	// could be extracted.
	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Captured packets discarded before QNAME extraction.",
	}, []string{"reason"})

	// CacheLookups counts cache Find() calls by hit/miss outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Classification cache lookups by outcome.",
	}, []string{"outcome"})

	// CacheOpDuration records latency of the atomic cache maintenance
	// scripts (make_room eviction, cleanup_expired TTL sweep).
	CacheOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cache_op_duration_seconds",
		Help:      "Latency of cache maintenance operations in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"op"})

	// CacheEntries is a gauge for the current LRU-indexed entry count.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Current number of LRU-indexed cache entries.",
	})

	// PendingReports is a gauge for the current pending-report set size.
	PendingReports = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_reports",
		Help:      "Current size of the pending-report domain set.",
	})

	// WorkerQueueDepth tracks the worker pool's task queue length, sampled
	// on each Submit.
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_queue_depth",
		Help:      "Worker pool task queue depth, sampled on each submit.",
	})

	// JobsProcessed counts worker-pool task completions.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Worker pool task completions.",
	}, []string{"status"})

	// ClassifierCalls counts raw classifier HTTP calls.
	ClassifierCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifier_calls_total",
		Help:      "Raw classifier HTTP call counts.",
	}, []string{"endpoint", "status"})

	// ClassifierDuration records classifier POST latency.
	ClassifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "classifier_duration_seconds",
		Help:      "Classifier HTTP call latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"endpoint"})

	// ReportRetries counts report attempts beyond the first.
	ReportRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_retries_total",
		Help:      "Report attempts beyond the first, by endpoint.",
	}, []string{"endpoint"})

	// ReportFailures counts reports that exhausted all retries.
	ReportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_failures_total",
		Help:      "Reports that exhausted all retries without success.",
	}, []string{"endpoint"})

	// StatsFlushDuration records full stats-loop flush duration.
	StatsFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stats_flush_duration_seconds",
		Help:      "Full stats-loop flush duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})
)
