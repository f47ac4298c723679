/*
Package cache implements a stale-while-revalidate wrapper around slow,
rarely-changing lookups (employee roster, tag taxonomy).

ALGORITHM (Fetch):
  1. Read the entry for Key. If present, younger than Duration, and accepted
     by Validator, return Process(data) without calling the producer.
  2. Otherwise call the producer through Retry.
  3. On success persist {data: Process(result), timestamp: now} and return it.
  4. On total failure, unless NoExpiredFallback is set, return Process(data)
     of any entry still stored, however old. Otherwise return the error.

ENVELOPE:
  Entries are JSON {"data": ..., "timestamp": <epoch millis>}. Entries that
  fail to decode are deleted and treated as missing.

WRITE FAILURES:
  A quota failure clears the whole store and retries the write once. A
  second failure is logged and swallowed: the fetched value is still
  returned to the caller.

Process runs on both fresh and cached data, so it must be idempotent.
Entries are not namespaced and there is no eviction beyond per-key TTL;
the datasets involved are small.
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/clock"
)

// DefaultDuration is the TTL applied when Config.Duration is zero.
const DefaultDuration = time.Hour

// Cache binds a Store to a clock, logger and retry policy.
type Cache struct {
	store  Store
	clock  clock.Clock
	log    *zap.Logger
	policy Policy
}

// Option configures a Cache.
type Option func(*Cache)

func WithClock(c clock.Clock) Option { return func(ca *Cache) { ca.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(ca *Cache) { ca.log = l } }

// WithPolicy overrides the producer retry policy.
func WithPolicy(p Policy) Option { return func(ca *Cache) { ca.policy = p } }

// New creates a cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		clock:  clock.Real{},
		log:    zap.NewNop(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config describes one cached lookup.
type Config[T any] struct {
	Key      string
	Duration time.Duration

	// Validator rejects cached payloads of the wrong shape. Nil accepts all.
	Validator func(T) bool

	// Call produces a fresh value.
	Call func(ctx context.Context) (T, error)

	// Process transforms both fresh and cached values. Nil is identity.
	Process func(T) T

	// NoExpiredFallback disables returning an expired entry when Call fails.
	NoExpiredFallback bool
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Fetch returns the cached value for cfg.Key or refreshes it. See the
// package documentation for the full algorithm.
func Fetch[T any](ctx context.Context, c *Cache, cfg Config[T]) (T, error) {
	var zero T
	if cfg.Key == "" {
		return zero, errors.New("cache: empty key")
	}
	if cfg.Call == nil {
		return zero, errors.New("cache: nil producer")
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	process := cfg.Process
	if process == nil {
		process = func(v T) T { return v }
	}

	if data, ts, ok := load[T](ctx, c, cfg.Key); ok {
		expired := c.clock.Now().Sub(ts) > duration
		valid := cfg.Validator == nil || cfg.Validator(data)
		if !expired && valid {
			c.log.Debug("cache hit", zap.String("key", cfg.Key))
			return process(data), nil
		}
	}

	fresh, err := Retry(ctx, c.clock, c.log, c.policy, cfg.Call)
	if err == nil {
		processed := process(fresh)
		c.write(ctx, cfg.Key, processed)
		c.log.Debug("cache refreshed", zap.String("key", cfg.Key))
		return processed, nil
	}

	c.log.Error("cache fetch failed", zap.String("key", cfg.Key), zap.Error(err))
	if !cfg.NoExpiredFallback {
		if data, ts, ok := load[T](ctx, c, cfg.Key); ok {
			c.log.Warn("serving expired cache entry",
				zap.String("key", cfg.Key),
				zap.Time("stored_at", ts))
			return process(data), nil
		}
	}
	return zero, fmt.Errorf("fetch %s: %w", cfg.Key, err)
}

// Invalidate removes the entries for keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("invalidate %s: %w", k, err)
		}
	}
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func load[T any](ctx context.Context, c *Cache, key string) (T, time.Time, bool) {
	var zero T
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return zero, time.Time{}, false
	}

	var env envelope
	var data T
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		err = json.Unmarshal(env.Data, &data)
		if err == nil {
			return data, time.UnixMilli(env.Timestamp), true
		}
	}

	c.log.Warn("cache entry corrupt, removing", zap.String("key", key))
	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		c.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
	return zero, time.Time{}, false
}

func (c *Cache) write(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	raw, err := json.Marshal(envelope{Data: data, Timestamp: c.clock.Now().UnixMilli()})
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	err = c.store.Set(ctx, key, raw)
	if err == nil {
		return
	}
	c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	if !errors.Is(err, ErrQuotaExceeded) {
		return
	}

	if err := c.store.Clear(ctx); err != nil {
		c.log.Error("cache clear failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		c.log.Error("cache write failed after clearing", zap.String("key", key), zap.Error(err))
	}
}
