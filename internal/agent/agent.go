// Package agent wires together the capture, ingest, worker pool, reporter,
// and stats-loop components into a single runnable unit and owns their
// combined startup and shutdown.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sentrydns/classifierd/internal/cache"
	"github.com/sentrydns/classifierd/internal/capture"
	"github.com/sentrydns/classifierd/internal/classifier"
	"github.com/sentrydns/classifierd/internal/config"
	"github.com/sentrydns/classifierd/internal/ingest"
	"github.com/sentrydns/classifierd/internal/queue"
	"github.com/sentrydns/classifierd/internal/reporter"
	"github.com/sentrydns/classifierd/internal/statsloop"
	"github.com/sentrydns/classifierd/internal/workerpool"
)

const httpShutdownGrace = 5 * time.Second

// Agent owns every long-lived component of the running process and
// coordinates their startup and shutdown.
type Agent struct {
	cfg *config.Config
	log zerolog.Logger

	store      cache.Store
	classifier *classifier.Client
	reporter   *reporter.Reporter
	queue      *queue.Queue
	pool       *workerpool.Pool
	capture    *capture.Source
	ingestLoop *ingest.Loop
	statsLoop  *statsloop.Loop
}

// New constructs an Agent from cfg, dialing the cache backend and wiring
// every other component against it. The returned Agent owns the cache
// connection; Run closes it before returning.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Agent, error) {
	store, err := cache.NewRedisStore(ctx, cache.Config{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.RedisDialTimeout,
		MaxSize:     int64(cfg.CacheMaxSize),
		TTLTable:    cfg.TTLTable(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect cache backend: %w", err)
	}
	return wire(ctx, cfg, log, store), nil
}

// wire assembles every component on top of an already-constructed store,
// split out from New so tests can substitute an in-memory store without a
// live Redis connection.
func wire(ctx context.Context, cfg *config.Config, log zerolog.Logger, store cache.Store) *Agent {
	clsLog := log.With().Str("component", "classifier").Logger()
	cls := classifier.New(cfg.ClassifierURL, clsLog)

	rep := reporter.New(store, cls, log.With().Str("component", "reporter").Logger(), nil)

	q := queue.New()
	pool := workerpool.New(ctx, cfg.PoolWorkers, cfg.PoolQueueDepth, log.With().Str("component", "workerpool").Logger())

	capSrc := capture.New(cfg.CaptureInterface, q, log.With().Str("component", "capture").Logger())

	il := ingest.New(q, store, pool, rep, log.With().Str("component", "ingest").Logger())
	sl := statsloop.New(rep, cfg.StatsInterval, log.With().Str("component", "statsloop").Logger())

	return &Agent{
		cfg:        cfg,
		log:        log,
		store:      store,
		classifier: cls,
		reporter:   rep,
		queue:      q,
		pool:       pool,
		capture:    capSrc,
		ingestLoop: il,
		statsLoop:  sl,
	}
}

// Run starts every component and blocks until ctx is canceled or a
// component reports a fatal error. On return, every component has been
// given a chance to shut down cleanly.
func (a *Agent) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.capture.Run(gctx); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.ingestLoop.Run(gctx)
		return nil
	})

	// The ingest loop blocks on the queue; closing it on cancellation wakes
	// the loop so it can run its final flush and return.
	g.Go(func() error {
		<-gctx.Done()
		a.queue.Close()
		return nil
	})

	g.Go(func() error {
		a.statsLoop.Run(gctx)
		return nil
	})

	if a.cfg.MetricsEnabled {
		g.Go(func() error { return a.serveHTTP(gctx, a.cfg.MetricsAddr, promhttp.Handler()) })
	}
	g.Go(func() error { return a.serveHTTP(gctx, a.cfg.HealthAddr, http.HandlerFunc(a.healthHandler)) })

	err := g.Wait()

	a.queue.Close()
	a.pool.Close()
	if closeErr := a.store.Close(); closeErr != nil {
		a.log.Warn().Err(closeErr).Msg("cache close failed")
	}

	return err
}

func (a *Agent) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "cache unreachable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// serveHTTP runs an HTTP server on addr until ctx is canceled, then shuts
// it down gracefully within httpShutdownGrace.
func (a *Agent) serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server %s: %w", addr, err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
