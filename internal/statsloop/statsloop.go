// Package statsloop is the interval-driven periodic stats flush
// (spec.md §4.5): a ticker-driven loop that calls into the reporter on
// every tick until its context is canceled.
package statsloop

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentrydns/classifierd/internal/reporter"
)

// Loop calls reporter.ReportStats on every tick of interval, exiting
// promptly when ctx is canceled.
type Loop struct {
	reporter *reporter.Reporter
	interval time.Duration
	log      zerolog.Logger
}

// New constructs a Loop.
func New(r *reporter.Reporter, interval time.Duration, log zerolog.Logger) *Loop {
	return &Loop{reporter: r, interval: interval, log: log.With().Str("component", "statsloop").Logger()}
}

// Run blocks until ctx is canceled, calling ReportStats on each tick.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.reporter.ReportStats(ctx); err != nil {
				l.log.Warn().Err(err).Msg("report_stats failed")
			}
		}
	}
}
