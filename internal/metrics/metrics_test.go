package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sentrydns/classifierd/internal/metrics"
)

// TestMetricCollectorsNonNil verifies all package-level metric variables are
// non-nil and pass Prometheus linting rules.
func TestMetricCollectorsNonNil(t *testing.T) {
	tests := []struct {
		name string
		c    prometheus.Collector
	}{
		{"QueriesObserved", metrics.QueriesObserved},
		{"PacketsDropped", metrics.PacketsDropped},
		{"CacheLookups", metrics.CacheLookups},
		{"CacheOpDuration", metrics.CacheOpDuration},
		{"CacheEntries", metrics.CacheEntries},
		{"PendingReports", metrics.PendingReports},
		{"WorkerQueueDepth", metrics.WorkerQueueDepth},
		{"JobsProcessed", metrics.JobsProcessed},
		{"ClassifierCalls", metrics.ClassifierCalls},
		{"ClassifierDuration", metrics.ClassifierDuration},
		{"ReportRetries", metrics.ReportRetries},
		{"ReportFailures", metrics.ReportFailures},
		{"StatsFlushDuration", metrics.StatsFlushDuration},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.c == nil {
				t.Fatal("collector is nil")
			}
			lintErrs, err := testutil.CollectAndLint(tc.c)
			if err != nil {
				t.Errorf("CollectAndLint gather error: %v", err)
			}
			if len(lintErrs) > 0 {
				t.Errorf("prometheus lint errors: %v", lintErrs)
			}
		})
	}
}

// TestMetricNamesAndHelp verifies all expected metrics are registered under
// the dns_sentry_ namespace and have non-empty help strings. Uses Describe()
// rather than Gather() so Vec metrics with no observations are checked too.
func TestMetricNamesAndHelp(t *testing.T) {
	cases := []struct {
		name string
		c    prometheus.Collector
	}{
		{"dns_sentry_queries_observed_total", metrics.QueriesObserved},
		{"dns_sentry_packets_dropped_total", metrics.PacketsDropped},
		{"dns_sentry_cache_lookups_total", metrics.CacheLookups},
		{"dns_sentry_cache_op_duration_seconds", metrics.CacheOpDuration},
		{"dns_sentry_cache_entries", metrics.CacheEntries},
		{"dns_sentry_pending_reports", metrics.PendingReports},
		{"dns_sentry_worker_queue_depth", metrics.WorkerQueueDepth},
		{"dns_sentry_jobs_processed_total", metrics.JobsProcessed},
		{"dns_sentry_classifier_calls_total", metrics.ClassifierCalls},
		{"dns_sentry_classifier_duration_seconds", metrics.ClassifierDuration},
		{"dns_sentry_report_retries_total", metrics.ReportRetries},
		{"dns_sentry_report_failures_total", metrics.ReportFailures},
		{"dns_sentry_stats_flush_duration_seconds", metrics.StatsFlushDuration},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 32)
			go func() {
				tc.c.Describe(ch)
				close(ch)
			}()

			found := false
			for d := range ch {
				s := d.String()
				if strings.Contains(s, tc.name) {
					found = true
					if strings.Contains(s, `help: ""`) {
						t.Errorf("descriptor for %s has an empty help string", tc.name)
					}
					if !strings.HasPrefix(tc.name, "dns_sentry_") {
						t.Errorf("metric name %s does not have dns_sentry_ prefix", tc.name)
					}
				}
			}
			if !found {
				t.Errorf("no descriptor containing %q returned by Describe()", tc.name)
			}
		})
	}
}
