// Package cache implements the TTL+LRU classification cache: a persisted,
// bounded, multi-status store for domain verdicts plus a companion
// pending-report set (spec.md §4.2).
package cache

import (
	"context"

	"github.com/sentrydns/classifierd/internal/domain"
)

// DomainMeta is the stats-loop projection of an entry: just enough to
// build a report_stats payload without pulling the full Entry.
type DomainMeta struct {
	Status     domain.Status
	Action     domain.Action
	QueryCount uint32
}

// Store is the persistence interface for the classification cache. All
// operations are serializable; internal concurrency is the caller's
// concern (spec.md §5). Single-step calls are atomic; Insert (eviction,
// then insert), InsertOrUpdate (TTL sweep, lookup, then insert or update)
// and AllDomainMeta are made of several backend steps and are not atomic
// as a whole.
type Store interface {
	// Insert creates a new entry with query_count=1 and adds domain to the
	// pending set. Fails if the entry already exists.
	Insert(ctx context.Context, name string, status domain.Status, action domain.Action) error

	// Update overwrites status/action on an existing entry, incrementing
	// query_count iff the old status equals the new status, refreshing
	// both timestamps and TTL.
	Update(ctx context.Context, name string, status domain.Status, action domain.Action) error

	// InsertOrUpdate runs the TTL sweep, then Update if the entry is
	// present or Insert otherwise.
	InsertOrUpdate(ctx context.Context, name string, status domain.Status, action domain.Action) error

	// Find performs a point read. found=false if the domain is absent.
	Find(ctx context.Context, name string) (entry domain.Entry, found bool, err error)

	// Remove idempotently deletes a domain from both the entry table and
	// the LRU index.
	Remove(ctx context.Context, name string) error

	// Size returns the count of LRU-indexed entries.
	Size(ctx context.Context) (int64, error)

	// AddToPending adds a domain to the pending-report set.
	AddToPending(ctx context.Context, name string) error
	// PendingDomains returns all members of the pending-report set.
	PendingDomains(ctx context.Context) ([]string, error)
	// PendingCount returns the size of the pending-report set.
	PendingCount(ctx context.Context) (int64, error)
	// ClearPending empties the pending-report set.
	ClearPending(ctx context.Context) error

	// AllDomainMeta projects every entry to (status, action, query_count)
	// for the stats loop.
	AllDomainMeta(ctx context.Context) (map[string]DomainMeta, error)

	// ResetQueryCount sets a domain's counter to 0, touching no other
	// field.
	ResetQueryCount(ctx context.Context, name string) error

	// Ping verifies backend connectivity (used by the /readyz endpoint).
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
