// Package queue implements the ingress queue: an unbounded
// multi-producer, single-consumer queue of domain strings, built on a
// mutex and condition variable (spec.md §4.7). A bounded channel cannot
// express wait_and_pop's "block until shutdown OR item" semantics plus an
// unbounded capacity, so this is hand-rolled rather than reusing a
// buffered chan.
package queue

import "sync"

// Queue is a blocking FIFO of strings with non-blocking and blocking pop
// variants.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	closed bool
}

// New constructs an empty Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item and wakes one waiter.
func (q *Queue) Push(item string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// TryPop returns the front item without blocking, or ok=false if empty.
func (q *Queue) TryPop() (item string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	item, q.items = q.items[0], q.items[1:]
	return item, true
}

// WaitAndPop blocks until an item is available or the queue is closed. It
// returns ok=false only when the queue is closed and drained.
func (q *Queue) WaitAndPop() (item string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}
	item, q.items = q.items[0], q.items[1:]
	return item, true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes all waiters; subsequent Pushes
// are no-ops. Used for shutdown in place of the empty-string wake token
// the ingest loop also honors explicitly (spec.md §4.4, §5).
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
