package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sentrydns/classifierd/internal/domain"
	"github.com/sentrydns/classifierd/internal/metrics"
)

const (
	lruKey     = "lru"
	pendingKey = "pending_report_domains"
)

func entryKey(name string) string {
	return "entries:" + name
}

// Config holds the parameters for constructing a RedisStore.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	MaxSize      int64
	TTLTable     domain.TTLTable
}

// RedisStore implements Store against a Redis-compatible backend, using
// server-side EVAL scripts for the two composite operations that would
// otherwise race across their read-modify-write steps: eviction
// (make_room) and TTL sweep (cleanup_expired) (spec.md §4.2).
type RedisStore struct {
	rdb      *redis.Client
	maxSize  int64
	ttl      domain.TTLTable
	evictSHA string
	sweepSHA string
	insSHA   string
	updSHA   string
}

// NewRedisStore dials the backend, verifies connectivity, and preloads the
// atomic Lua scripts via SCRIPT LOAD so steady-state calls use EVALSHA.
func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	s := &RedisStore{rdb: rdb, maxSize: cfg.MaxSize, ttl: cfg.TTLTable}

	scripts := map[string]*string{
		evictScript:  &s.evictSHA,
		sweepScript:  &s.sweepSHA,
		insertScript: &s.insSHA,
		updateScript: &s.updSHA,
	}
	for src, dst := range scripts {
		sha, err := rdb.ScriptLoad(ctx, src).Result()
		if err != nil {
			return nil, fmt.Errorf("load lua script: %w", err)
		}
		*dst = sha
	}
	return s, nil
}

// Lua scripts. Each is loaded once via SCRIPT LOAD and invoked with
// EVALSHA; each is a single atomic server-side operation, avoiding the
// read-modify-write race a client-side implementation would have between
// e.g. HGET(ttl) and DEL (spec.md §4.2).
const evictScript = `
local zkey = KEYS[1]
local max_size = tonumber(ARGV[1])
local count = redis.call('ZCARD', zkey)
if count < max_size then
  return 0
end
local n = math.floor(max_size * 0.1)
if n < 2 then n = 2 end
local victims = redis.call('ZRANGE', zkey, 0, n - 1)
for _, d in ipairs(victims) do
  redis.call('DEL', 'entries:' .. d)
  redis.call('ZREM', zkey, d)
end
return #victims
`

const sweepScript = `
local zkey = KEYS[1]
local now = tonumber(ARGV[1])
local domains = redis.call('ZRANGE', zkey, 0, -1)
local removed = 0
for _, d in ipairs(domains) do
  local ekey = 'entries:' .. d
  local vals = redis.call('HMGET', ekey, 'last_updated', 'ttl')
  local lu = tonumber(vals[1])
  local ttl = tonumber(vals[2])
  if lu ~= nil and ttl ~= nil and lu + ttl < now then
    redis.call('DEL', ekey)
    redis.call('ZREM', zkey, d)
    removed = removed + 1
  end
end
return removed
`

const insertScript = `
local ekey = KEYS[1]
local zkey = KEYS[2]
local pkey = KEYS[3]
local dom = ARGV[1]
local status = ARGV[2]
local action = ARGV[3]
local now = ARGV[4]
local ttl = ARGV[5]
if redis.call('EXISTS', ekey) == 1 then
  return 0
end
redis.call('HSET', ekey, 'domain', dom, 'status', status, 'action', action,
  'query_count', '1', 'last_updated', now, 'last_accessed', now, 'ttl', ttl)
redis.call('ZADD', zkey, now, dom)
redis.call('SADD', pkey, dom)
return 1
`

const updateScript = `
local ekey = KEYS[1]
local zkey = KEYS[2]
local dom = ARGV[1]
local newStatus = ARGV[2]
local newAction = ARGV[3]
local now = ARGV[4]
local ttl = ARGV[5]
local oldStatus = redis.call('HGET', ekey, 'status')
if oldStatus == false then
  return 0
end
local qc = tonumber(redis.call('HGET', ekey, 'query_count'))
if qc == nil then qc = 0 end
if oldStatus == newStatus then
  qc = qc + 1
end
redis.call('HSET', ekey, 'status', newStatus, 'action', newAction,
  'query_count', tostring(qc), 'last_updated', now, 'last_accessed', now, 'ttl', ttl)
redis.call('ZADD', zkey, now, dom)
return 1
`

func (s *RedisStore) makeRoom(ctx context.Context) error {
	start := time.Now()
	_, err := s.rdb.EvalSha(ctx, s.evictSHA, []string{lruKey}, s.maxSize).Result()
	metrics.CacheOpDuration.WithLabelValues("make_room").Observe(time.Since(start).Seconds())
	return err
}

// CleanupExpired runs the TTL sweep script. Exported so InsertOrUpdate can
// call it and so the stats loop / janitor-style caller can trigger an
// out-of-band sweep if desired.
func (s *RedisStore) CleanupExpired(ctx context.Context) error {
	start := time.Now()
	_, err := s.rdb.EvalSha(ctx, s.sweepSHA, []string{lruKey}, time.Now().Unix()).Result()
	metrics.CacheOpDuration.WithLabelValues("cleanup_expired").Observe(time.Since(start).Seconds())
	return err
}

// Insert creates a new entry with query_count=1; fails if entry already
// exists. Also adds domain to the pending set.
func (s *RedisStore) Insert(ctx context.Context, name string, status domain.Status, action domain.Action) error {
	if err := s.makeRoom(ctx); err != nil {
		return fmt.Errorf("make_room: %w", err)
	}
	now := time.Now().Unix()
	ttl := int64(s.ttl.TTL(status, action).Seconds())
	res, err := s.rdb.EvalSha(ctx, s.insSHA,
		[]string{entryKey(name), lruKey, pendingKey},
		name, strconv.Itoa(int(status)), strconv.Itoa(int(action)), now, ttl,
	).Result()
	if err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	if n, _ := res.(int64); n == 0 {
		return fmt.Errorf("insert %s: already exists", name)
	}
	return nil
}

// Update overwrites status/action on an existing entry, incrementing
// query_count iff the old status equals the new status.
func (s *RedisStore) Update(ctx context.Context, name string, status domain.Status, action domain.Action) error {
	now := time.Now().Unix()
	ttl := int64(s.ttl.TTL(status, action).Seconds())
	res, err := s.rdb.EvalSha(ctx, s.updSHA,
		[]string{entryKey(name), lruKey},
		name, strconv.Itoa(int(status)), strconv.Itoa(int(action)), now, ttl,
	).Result()
	if err != nil {
		return fmt.Errorf("update %s: %w", name, err)
	}
	if n, _ := res.(int64); n == 0 {
		return fmt.Errorf("update %s: does not exist", name)
	}
	return nil
}

// InsertOrUpdate first runs the TTL sweep, then calls Update if the entry
// is present or Insert otherwise.
func (s *RedisStore) InsertOrUpdate(ctx context.Context, name string, status domain.Status, action domain.Action) error {
	if err := s.CleanupExpired(ctx); err != nil {
		return fmt.Errorf("cleanup_expired: %w", err)
	}
	_, found, err := s.Find(ctx, name)
	if err != nil {
		return err
	}
	if found {
		return s.Update(ctx, name, status, action)
	}
	return s.Insert(ctx, name, status, action)
}

// Find performs a point read; returns found=false if the domain is absent.
func (s *RedisStore) Find(ctx context.Context, name string) (domain.Entry, bool, error) {
	res, err := s.rdb.HGetAll(ctx, entryKey(name)).Result()
	if err != nil {
		return domain.Entry{}, false, fmt.Errorf("find %s: %w", name, err)
	}
	if len(res) == 0 {
		return domain.Entry{}, false, nil
	}
	entry, err := decodeEntry(res)
	if err != nil {
		return domain.Entry{}, false, fmt.Errorf("decode %s: %w", name, err)
	}
	return entry, true, nil
}

// Remove idempotently deletes a domain from both the entry table and the
// LRU index.
func (s *RedisStore) Remove(ctx context.Context, name string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entryKey(name))
	pipe.ZRem(ctx, lruKey, name)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Size returns the count of LRU-indexed entries.
func (s *RedisStore) Size(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, lruKey).Result()
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return n, nil
}

// AddToPending adds a domain to the pending-report set.
func (s *RedisStore) AddToPending(ctx context.Context, name string) error {
	if err := s.rdb.SAdd(ctx, pendingKey, name).Err(); err != nil {
		return fmt.Errorf("add to pending %s: %w", name, err)
	}
	return nil
}

// PendingDomains returns all members of the pending-report set.
func (s *RedisStore) PendingDomains(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, pendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pending domains: %w", err)
	}
	return members, nil
}

// PendingCount returns the size of the pending-report set.
func (s *RedisStore) PendingCount(ctx context.Context) (int64, error) {
	n, err := s.rdb.SCard(ctx, pendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// ClearPending empties the pending-report set.
func (s *RedisStore) ClearPending(ctx context.Context) error {
	if err := s.rdb.Del(ctx, pendingKey).Err(); err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	return nil
}

// AllDomainMeta projects every LRU-indexed entry to (status, action,
// query_count) for the stats loop.
func (s *RedisStore) AllDomainMeta(ctx context.Context) (map[string]DomainMeta, error) {
	names, err := s.rdb.ZRange(ctx, lruKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("all domain meta: list domains: %w", err)
	}
	result := make(map[string]DomainMeta, len(names))
	if len(names) == 0 {
		return result, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make(map[string]*redis.SliceCmd, len(names))
	for _, name := range names {
		cmds[name] = pipe.HMGet(ctx, entryKey(name), "status", "action", "query_count")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("all domain meta: pipeline: %w", err)
	}

	for name, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		meta, ok := decodeMeta(vals)
		if !ok {
			continue
		}
		result[name] = meta
	}
	return result, nil
}

// ResetQueryCount sets a domain's counter to 0, touching no other field.
func (s *RedisStore) ResetQueryCount(ctx context.Context, name string) error {
	if err := s.rdb.HSet(ctx, entryKey(name), "query_count", "0").Err(); err != nil {
		return fmt.Errorf("reset query count %s: %w", name, err)
	}
	return nil
}

// Ping verifies backend connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func decodeEntry(fields map[string]string) (domain.Entry, error) {
	status, ok := domain.ParseStatus(statusName(fields["status"]))
	if !ok {
		return domain.Entry{}, fmt.Errorf("invalid status %q", fields["status"])
	}
	action, ok := domain.ParseAction(actionName(fields["action"]))
	if !ok {
		return domain.Entry{}, fmt.Errorf("invalid action %q", fields["action"])
	}
	qc, err := strconv.ParseUint(fields["query_count"], 10, 32)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("invalid query_count %q: %w", fields["query_count"], err)
	}
	lu, err := strconv.ParseInt(fields["last_updated"], 10, 64)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("invalid last_updated %q: %w", fields["last_updated"], err)
	}
	la, err := strconv.ParseInt(fields["last_accessed"], 10, 64)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("invalid last_accessed %q: %w", fields["last_accessed"], err)
	}
	ttl, err := strconv.ParseInt(fields["ttl"], 10, 64)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("invalid ttl %q: %w", fields["ttl"], err)
	}
	return domain.Entry{
		Domain:       fields["domain"],
		Status:       status,
		Action:       action,
		QueryCount:   uint32(qc),
		LastUpdated:  time.Unix(lu, 0),
		LastAccessed: time.Unix(la, 0),
		TTL:          time.Duration(ttl) * time.Second,
	}, nil
}

func decodeMeta(vals []interface{}) (DomainMeta, bool) {
	if len(vals) != 3 {
		return DomainMeta{}, false
	}
	statusStr, ok1 := vals[0].(string)
	actionStr, ok2 := vals[1].(string)
	qcStr, ok3 := vals[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return DomainMeta{}, false
	}
	status, ok := domain.ParseStatus(statusName(statusStr))
	if !ok {
		return DomainMeta{}, false
	}
	action, ok := domain.ParseAction(actionName(actionStr))
	if !ok {
		return DomainMeta{}, false
	}
	qc, err := strconv.ParseUint(qcStr, 10, 32)
	if err != nil {
		return DomainMeta{}, false
	}
	return DomainMeta{Status: status, Action: action, QueryCount: uint32(qc)}, true
}

// statusName/actionName convert the integer wire representation stored in
// the hash back to the string form domain.ParseStatus/ParseAction expect.
func statusName(v string) string {
	switch v {
	case "0":
		return "FAKE"
	case "1":
		return "PEND"
	case "2":
		return "FULL"
	default:
		return v
	}
}

func actionName(v string) string {
	switch v {
	case "0":
		return "DROP"
	case "1":
		return "PERMIT"
	default:
		return v
	}
}
