// Package reporter implements the upstream-submission half of the
// ingest/report pipeline: serializing domain batches to JSON, posting
// them, applying returned verdicts back to the cache, and periodically
// flushing per-domain query-count statistics (spec.md §4.3).
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentrydns/classifierd/internal/cache"
	"github.com/sentrydns/classifierd/internal/classifier"
	"github.com/sentrydns/classifierd/internal/domain"
	"github.com/sentrydns/classifierd/internal/metrics"
)

// Clock abstracts time.Now/time.Sleep so tests can run the retry loop
// without waiting on a real clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Reporter owns a cache store and a classifier transport; it never calls
// back into the ingest loop (spec.md §9 breaks the ingest/cache/reporter
// cycle by keeping the reporter a pure data-in, data-out collaborator).
type Reporter struct {
	store      cache.Store
	classifier *classifier.Client
	clock      Clock
	log        zerolog.Logger
}

// New constructs a Reporter. clock may be nil to use the real wall clock.
func New(store cache.Store, c *classifier.Client, log zerolog.Logger, clock Clock) *Reporter {
	if clock == nil {
		clock = realClock{}
	}
	return &Reporter{store: store, classifier: c, clock: clock, log: log.With().Str("component", "reporter").Logger()}
}

type domainsRequest struct {
	Domains   []string `json:"domains"`
	Timestamp int64    `json:"timestamp"`
}

type domainsResponse struct {
	Permitted []string `json:"permitted"`
	Dropped   []string `json:"dropped"`
}

// ReportDomains posts domains to the classifier and applies the verdicts
// in the response back onto the cache. Returns true on overall success.
// On failure, no cache mutation occurs at all (spec.md §4.3 step 6).
func (r *Reporter) ReportDomains(ctx context.Context, domains []string) (bool, error) {
	if len(domains) == 0 {
		return true, nil
	}

	req := domainsRequest{Domains: domains, Timestamp: r.clock.Now().Unix()}
	start := time.Now()
	body, ok, err := r.classifier.Post(ctx, "/domains", req)
	metrics.ClassifierDuration.WithLabelValues("domains").Observe(time.Since(start).Seconds())
	if err != nil || !ok {
		metrics.ClassifierCalls.WithLabelValues("domains", "failure").Inc()
		return false, err
	}
	metrics.ClassifierCalls.WithLabelValues("domains", "success").Inc()

	// Bump FAKE -> PEND before parsing the response, intentionally: if the
	// body fails to parse below, entries are left PEND rather than rolled
	// back (spec.md §9, first open question — documented, not a bug).
	for _, d := range domains {
		entry, found, err := r.store.Find(ctx, d)
		if err != nil || !found || entry.Status != domain.StatusFake {
			continue
		}
		if err := r.store.Update(ctx, d, domain.StatusPend, entry.Action); err != nil {
			r.log.Warn().Err(err).Str("domain", d).Msg("failed to bump FAKE to PEND")
		}
	}

	var resp domainsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		r.log.Warn().Err(err).Msg("classifier response body did not parse; verdicts left PEND")
		return true, nil
	}

	for _, d := range resp.Permitted {
		if err := r.store.InsertOrUpdate(ctx, d, domain.StatusFull, domain.ActionPermit); err != nil {
			r.log.Warn().Err(err).Str("domain", d).Msg("failed to apply permitted verdict")
		}
	}
	for _, d := range resp.Dropped {
		if err := r.store.InsertOrUpdate(ctx, d, domain.StatusFull, domain.ActionDrop); err != nil {
			r.log.Warn().Err(err).Str("domain", d).Msg("failed to apply dropped verdict")
		}
	}
	return true, nil
}

// TryReportDomains snapshots the pending set, filters to domains still
// present in the cache, and attempts ReportDomains up to maxRetries times
// with retryDelay between attempts (spec.md §4.3).
func (r *Reporter) TryReportDomains(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	pending, err := r.store.PendingDomains(ctx)
	if err != nil {
		return fmt.Errorf("list pending domains: %w", err)
	}

	var filtered []string
	for _, d := range pending {
		if _, found, err := r.store.Find(ctx, d); err == nil && found {
			filtered = append(filtered, d)
		}
	}

	if len(filtered) == 0 {
		return r.store.ClearPending(ctx)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			metrics.ReportRetries.WithLabelValues("domains").Inc()
			r.clock.Sleep(retryDelay)
		}
		ok, err := r.ReportDomains(ctx, filtered)
		if err != nil {
			r.log.Warn().Err(err).Int("attempt", attempt+1).Msg("report_domains attempt failed")
			continue
		}
		if ok {
			return r.store.ClearPending(ctx)
		}
	}

	metrics.ReportFailures.WithLabelValues("domains").Inc()
	r.log.Warn().Int("count", len(filtered)).Msg("report_domains exhausted retries; pending set left intact")
	return nil
}

type statEntry struct {
	Domain  string `json:"domain"`
	Action  string `json:"action"`
	Queries uint32 `json:"queries"`
}

type statsRequest struct {
	Stats     []statEntry `json:"stats"`
	Timestamp int64       `json:"timestamp"`
}

// ReportStats flushes per-domain query counts to the classifier and
// resets them on success. Failures are logged; there is no retry
// (spec.md §4.3).
func (r *Reporter) ReportStats(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.StatsFlushDuration.Observe(time.Since(start).Seconds()) }()

	meta, err := r.store.AllDomainMeta(ctx)
	if err != nil {
		return fmt.Errorf("list domain meta: %w", err)
	}

	var stats []statEntry
	var names []string
	for name, m := range meta {
		if m.QueryCount == 0 {
			continue
		}
		stats = append(stats, statEntry{Domain: name, Action: m.Action.String(), Queries: m.QueryCount})
		names = append(names, name)
	}
	if len(stats) == 0 {
		return nil
	}

	req := statsRequest{Stats: stats, Timestamp: r.clock.Now().Unix()}
	_, ok, err := r.classifier.Post(ctx, "/stats", req)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("stats", "error").Inc()
		r.log.Warn().Err(err).Msg("report_stats failed")
		return nil
	}
	if !ok {
		metrics.ClassifierCalls.WithLabelValues("stats", "failure").Inc()
		r.log.Warn().Msg("report_stats returned non-2xx")
		return nil
	}
	metrics.ClassifierCalls.WithLabelValues("stats", "success").Inc()

	for _, name := range names {
		if err := r.store.ResetQueryCount(ctx, name); err != nil {
			r.log.Warn().Err(err).Str("domain", name).Msg("failed to reset query count")
		}
	}
	return nil
}
