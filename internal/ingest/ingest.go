// Package ingest implements the ingest loop: the consumer side of the
// ingress queue that updates the cache, fans work out to the worker
// pool, and triggers the reporter at threshold (spec.md §4.4).
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentrydns/classifierd/internal/cache"
	"github.com/sentrydns/classifierd/internal/domain"
	"github.com/sentrydns/classifierd/internal/metrics"
	"github.com/sentrydns/classifierd/internal/queue"
	"github.com/sentrydns/classifierd/internal/reporter"
	"github.com/sentrydns/classifierd/internal/workerpool"
)

const (
	// ReportThreshold is the pending-set size that triggers a report
	// cycle (spec.md §4.4, "kReportThreshold").
	ReportThreshold = 5
	// MaxRetryCount bounds try_report_domains attempts per trigger.
	MaxRetryCount = 3
	// RetryDelay is the pause between retry attempts.
	RetryDelay = 5 * time.Second
	// drainDelay is how long the loop waits for in-flight worker tasks
	// to complete after the shutdown signal, before the final flush.
	drainDelay = 300 * time.Millisecond
)

// Loop consumes domains from the ingress queue, updates the cache via the
// worker pool, and drives threshold-triggered reporting. Cache access
// within a single iteration is serialized by mu, matching spec.md §4.4's
// "no two cache mutations run concurrently" within the ingest subsystem.
type Loop struct {
	q        *queue.Queue
	store    cache.Store
	pool     *workerpool.Pool
	reporter *reporter.Reporter
	log      zerolog.Logger
	mu       sync.Mutex
}

// New constructs a Loop.
func New(q *queue.Queue, store cache.Store, pool *workerpool.Pool, r *reporter.Reporter, log zerolog.Logger) *Loop {
	return &Loop{q: q, store: store, pool: pool, reporter: r, log: log.With().Str("component", "ingest").Logger()}
}

// Run blocks consuming from the ingress queue until ctx is canceled or the
// queue is closed. Cancellation is checked between queue items, so a Run
// blocked on an empty queue returns once an item arrives or the queue is
// closed. On exit it waits drainDelay for in-flight worker tasks, then
// performs one final try_report_domains flush.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.shutdown(context.Background())
			return
		default:
		}

		name, ok := l.q.WaitAndPop()
		if !ok {
			l.shutdown(context.Background())
			return
		}
		if name == "" {
			// Shutdown-wake token; do not enqueue work.
			continue
		}

		l.submitIngestTask(ctx, name)
		l.maybeTriggerReport(ctx)
	}
}

// submitIngestTask runs the cache update for name on the worker pool and
// waits for it to finish, so the threshold check that follows sees its
// effect on the pending set.
func (l *Loop) submitIngestTask(ctx context.Context, name string) {
	done := make(chan struct{})
	l.pool.Submit(func(taskCtx context.Context) {
		defer close(done)
		l.mu.Lock()
		defer l.mu.Unlock()

		entry, found, err := l.store.Find(taskCtx, name)
		if err != nil {
			l.log.Warn().Err(err).Str("domain", name).Msg("cache lookup failed")
			return
		}
		if !found {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
			if err := l.store.InsertOrUpdate(taskCtx, name, domain.StatusFake, domain.ActionDrop); err != nil {
				l.log.Warn().Err(err).Str("domain", name).Msg("insert_or_update failed")
			}
			return
		}
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		if err := l.store.InsertOrUpdate(taskCtx, name, entry.Status, entry.Action); err != nil {
			l.log.Warn().Err(err).Str("domain", name).Msg("insert_or_update failed")
		}
	})
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (l *Loop) maybeTriggerReport(ctx context.Context) {
	count, err := l.store.PendingCount(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("pending count lookup failed")
		return
	}
	metrics.PendingReports.Set(float64(count))
	if count < ReportThreshold {
		return
	}
	if err := l.reporter.TryReportDomains(ctx, MaxRetryCount, RetryDelay); err != nil {
		l.log.Warn().Err(err).Msg("try_report_domains failed")
	}
}

func (l *Loop) shutdown(ctx context.Context) {
	time.Sleep(drainDelay)
	if err := l.reporter.TryReportDomains(ctx, MaxRetryCount, RetryDelay); err != nil {
		l.log.Warn().Err(err).Msg("final try_report_domains on shutdown failed")
	}
}
