// Package testutil provides in-memory and httptest doubles used across the
// agent's package tests: a constructor returns a ready-to-use struct with
// no external process required.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sentrydns/classifierd/internal/cache"
	"github.com/sentrydns/classifierd/internal/domain"
)

// MemStore is an in-memory implementation of cache.Store, guarded by a
// single mutex. It reproduces the eviction and TTL-sweep semantics of
// internal/cache.RedisStore closely enough to exercise reporter/ingest
// logic without a live Redis connection.
type MemStore struct {
	mu       sync.Mutex
	entries  map[string]domain.Entry
	pending  map[string]struct{}
	ttl      domain.TTLTable
	maxSize  int
	now      func() time.Time
	closed   bool
}

// NewMemStore constructs a MemStore bounded at maxSize entries, evicting
// the least-recently-accessed entries once that bound is reached
// (spec.md §4.2). now defaults to time.Now if nil, letting tests inject a
// fake clock.
func NewMemStore(maxSize int, ttl domain.TTLTable, now func() time.Time) *MemStore {
	if now == nil {
		now = time.Now
	}
	return &MemStore{
		entries: make(map[string]domain.Entry),
		pending: make(map[string]struct{}),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
	}
}

func (m *MemStore) checkOpen() error {
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (m *MemStore) makeRoomLocked() {
	if len(m.entries) < m.maxSize {
		return
	}
	n := m.maxSize / 10
	if n < 2 {
		n = 2
	}
	type kv struct {
		name string
		at   time.Time
	}
	victims := make([]kv, 0, len(m.entries))
	for name, e := range m.entries {
		victims = append(victims, kv{name, e.LastAccessed})
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].at.Before(victims[j].at) })
	for i := 0; i < n && i < len(victims); i++ {
		delete(m.entries, victims[i].name)
	}
}

// Insert implements cache.Store.
func (m *MemStore) Insert(_ context.Context, name string, status domain.Status, action domain.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, exists := m.entries[name]; exists {
		return fmt.Errorf("insert %s: already exists", name)
	}
	m.makeRoomLocked()
	now := m.now()
	m.entries[name] = domain.Entry{
		Domain:       name,
		Status:       status,
		Action:       action,
		QueryCount:   1,
		LastUpdated:  now,
		LastAccessed: now,
		TTL:          m.ttl.TTL(status, action),
	}
	m.pending[name] = struct{}{}
	return nil
}

// Update implements cache.Store.
func (m *MemStore) Update(_ context.Context, name string, status domain.Status, action domain.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	e, ok := m.entries[name]
	if !ok {
		return fmt.Errorf("update %s: does not exist", name)
	}
	if e.Status == status {
		e.QueryCount++
	}
	e.Status = status
	e.Action = action
	now := m.now()
	e.LastUpdated = now
	e.LastAccessed = now
	e.TTL = m.ttl.TTL(status, action)
	m.entries[name] = e
	return nil
}

// InsertOrUpdate implements cache.Store.
func (m *MemStore) InsertOrUpdate(ctx context.Context, name string, status domain.Status, action domain.Action) error {
	m.sweepExpiredLocked()
	_, found, err := m.Find(ctx, name)
	if err != nil {
		return err
	}
	if found {
		return m.Update(ctx, name, status, action)
	}
	return m.Insert(ctx, name, status, action)
}

func (m *MemStore) sweepExpiredLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for name, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, name)
		}
	}
}

// Find implements cache.Store.
func (m *MemStore) Find(_ context.Context, name string) (domain.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	return e, ok, nil
}

// Remove implements cache.Store.
func (m *MemStore) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}

// Size implements cache.Store.
func (m *MemStore) Size(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

// AddToPending implements cache.Store.
func (m *MemStore) AddToPending(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[name] = struct{}{}
	return nil
}

// PendingDomains implements cache.Store.
func (m *MemStore) PendingDomains(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.pending))
	for name := range m.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PendingCount implements cache.Store.
func (m *MemStore) PendingCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

// ClearPending implements cache.Store.
func (m *MemStore) ClearPending(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]struct{})
	return nil
}

// AllDomainMeta implements cache.Store.
func (m *MemStore) AllDomainMeta(_ context.Context) (map[string]cache.DomainMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]cache.DomainMeta, len(m.entries))
	for name, e := range m.entries {
		out[name] = cache.DomainMeta{Status: e.Status, Action: e.Action, QueryCount: e.QueryCount}
	}
	return out, nil
}

// ResetQueryCount implements cache.Store.
func (m *MemStore) ResetQueryCount(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return nil
	}
	e.QueryCount = 0
	m.entries[name] = e
	return nil
}

// Ping implements cache.Store.
func (m *MemStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkOpen()
}

// Close implements cache.Store.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ cache.Store = (*MemStore)(nil)
