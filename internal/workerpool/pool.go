// Package workerpool is a fixed-size task executor used by the ingest
// loop (spec.md §4.6): a bounded number of goroutines draining an opaque
// task channel, recovering from panics per task.
package workerpool

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sentrydns/classifierd/internal/metrics"
)

// Task is a unit of work submitted to the pool.
type Task func(ctx context.Context)

// Pool is a fixed-size group of worker goroutines draining a shared task
// channel. Submit is safe for concurrent use; Close stops accepting new
// tasks, lets in-flight and already-queued tasks drain, then returns.
type Pool struct {
	mu     sync.RWMutex
	tasks  chan Task
	wg     sync.WaitGroup
	log    zerolog.Logger
	closed bool
}

// New starts a Pool with n workers, each consuming from a queue of depth
// queueDepth.
func New(ctx context.Context, n, queueDepth int, log zerolog.Logger) *Pool {
	p := &Pool{
		tasks: make(chan Task, queueDepth),
		log:   log.With().Str("component", "workerpool").Logger(),
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return p
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.runTask(ctx, id, task)
	}
}

func (p *Pool) runTask(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.JobsProcessed.WithLabelValues("panic").Inc()
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("worker task panicked; continuing")
		}
	}()
	task(ctx)
	metrics.JobsProcessed.WithLabelValues("ok").Inc()
}

// Submit enqueues a task. It blocks if the queue is full. Submitting
// after Close is a no-op. The closed check and the channel send happen
// under the same read lock as Close's write lock, so a task can never be
// sent on an already-closed channel.
func (p *Pool) Submit(task Task) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	metrics.WorkerQueueDepth.Set(float64(len(p.tasks)))
	p.tasks <- task
}

// Close stops accepting new tasks, drains the queue, and waits for all
// workers to exit (spec.md §4.6: "on shutdown, workers drain the queue
// before exit").
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
