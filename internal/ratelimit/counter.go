// Package ratelimit implements the fixed-window counter store and limiter
// that throttle traffic and back the tenant-enumeration guard.
//
// The primary backend is Redis, where INCR and EXPIRE run as one atomic Lua
// script so concurrent increments on the same key never lose updates and the
// TTL travels with the increment. When Redis is unreachable (or was never
// configured) every operation degrades to an in-process map. The fallback is
// NOT atomic across processes: behind a load balancer each instance counts
// independently, so effective limits are per-instance in degraded mode. That
// weakness is accepted — rate limiting fails open, never closed, because an
// unavailable counter store must not take the product down with it.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agendly/agendly-backend/internal/telemetry"
)

// CounterStore is a key→integer counter with a TTL per key.
type CounterStore interface {
	// Increment atomically increments key and (re)sets its TTL to window,
	// returning the post-increment value.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// Get returns the current value, or 0 when the key is absent or expired.
	Get(ctx context.Context, key string) (int64, error)
	// RemainingTTL returns the time until key expires, 0 when it has none.
	RemainingTTL(ctx context.Context, key string) (time.Duration, error)
	// Remove deletes key. Used for administrative reset and tests.
	Remove(ctx context.Context, key string) error
}

// RedisClient is the subset of redis.Cmdable the store uses. *redis.Client
// satisfies it; tests substitute a fake.
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Get(ctx context.Context, key string) *redis.StringCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// incrementScript bundles INCR and EXPIRE into one atomic unit so the counter
// value and its TTL can never diverge under concurrent callers.
const incrementScript = `
local v = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[1])
return v
`

// RedisCounterStore is the shared, cross-process counter backend.
type RedisCounterStore struct {
	client RedisClient
}

// NewRedisCounterStore wraps client.
func NewRedisCounterStore(client RedisClient) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	v, err := s.client.Eval(ctx, incrementScript, []string{key}, seconds).Int64()
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (s *RedisCounterStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 { // -1 no expiry, -2 no key
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisCounterStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time
	timer     *time.Timer
}

// MemoryCounterStore is the process-local fallback. Counters expire via a
// timer per key. Increments are serialized by a mutex within this process and
// not synchronized across processes.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryCounterStore creates an empty in-process store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if ok && now.Before(e.expiresAt) {
		e.value++
		e.expiresAt = now.Add(window)
		e.timer.Reset(window)
		return e.value, nil
	}
	if ok {
		e.timer.Stop()
	}

	e = &memoryEntry{value: 1, expiresAt: now.Add(window)}
	e.timer = time.AfterFunc(window, func() { s.expire(key, e) })
	s.entries[key] = e
	return 1, nil
}

// expire removes the entry when its timer fires, unless the key has been
// replaced by a newer entry in the meantime.
func (s *MemoryCounterStore) expire(key string, e *memoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[key]; ok && current == e {
		delete(s.entries, key)
	}
}

func (s *MemoryCounterStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !time.Now().Before(e.expiresAt) {
		return 0, nil
	}
	return e.value, nil
}

func (s *MemoryCounterStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	ttl := time.Until(e.expiresAt)
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *MemoryCounterStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.timer.Stop()
		delete(s.entries, key)
	}
	return nil
}

// FailoverCounterStore serves every operation from the primary store and
// falls back to the in-process store on any primary error. Callers never see
// an operational error from it.
type FailoverCounterStore struct {
	primary  CounterStore
	fallback CounterStore
}

// NewFailoverCounterStore combines primary with an in-process fallback.
func NewFailoverCounterStore(primary CounterStore) *FailoverCounterStore {
	return &FailoverCounterStore{primary: primary, fallback: NewMemoryCounterStore()}
}

func (s *FailoverCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	v, err := s.primary.Increment(ctx, key, window)
	if err != nil {
		s.noteFallback("increment", err)
		return s.fallback.Increment(ctx, key, window)
	}
	return v, nil
}

func (s *FailoverCounterStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.primary.Get(ctx, key)
	if err != nil {
		s.noteFallback("get", err)
		return s.fallback.Get(ctx, key)
	}
	return v, nil
}

func (s *FailoverCounterStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.primary.RemainingTTL(ctx, key)
	if err != nil {
		s.noteFallback("ttl", err)
		return s.fallback.RemainingTTL(ctx, key)
	}
	return ttl, nil
}

func (s *FailoverCounterStore) Remove(ctx context.Context, key string) error {
	if err := s.primary.Remove(ctx, key); err != nil {
		s.noteFallback("remove", err)
		return s.fallback.Remove(ctx, key)
	}
	return nil
}

func (s *FailoverCounterStore) noteFallback(op string, err error) {
	telemetry.CounterStoreFallbacksTotal.Inc()
	slog.Warn("counter store degraded to in-process fallback", "op", op, "error", err)
}
