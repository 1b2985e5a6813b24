// CLAUDE:SUMMARY Injected key-value score cache — singleflight dedup over a pluggable Store (memory or SQLite).
// Package scorecache memoises computed scores behind an explicit, injected
// store. There is no process-wide instance: callers construct a Cache and
// hand it to the components that need it.
//
// Consistency contract: for a given key, GetOrCompute runs the compute
// function at most once at a time within a Cache. Concurrent callers for the
// same key wait for and share that single result.
package scorecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Store persists cache entries. Get returns ok=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

// Stats counts cache traffic since construction.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Computes int64 `json:"computes"`
	Errors   int64 `json:"errors"`
}

// Cache deduplicates computation per key over a Store.
type Cache struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger

	hits, misses, computes, errors atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New wraps store. A nil store yields an in-memory store.
func New(store Store, opts ...Option) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{store: store, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. hit reports whether the value came from the store. A failed store
// write is logged and does not fail the call.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if v, ok, err := c.store.Get(ctx, key); err != nil {
		c.errors.Add(1)
		c.logger.WarnContext(ctx, "scorecache: get failed", "key", key, "error", err)
	} else if ok {
		c.hits.Add(1)
		return v, true, nil
	}
	c.misses.Add(1)

	type result struct {
		value []byte
		hit   bool
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have stored the value between our miss
		// and acquiring the key.
		if v, ok, err := c.store.Get(ctx, key); err == nil && ok {
			return result{value: v, hit: true}, nil
		}
		c.computes.Add(1)
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Put(ctx, key, v); err != nil {
			c.errors.Add(1)
			c.logger.WarnContext(ctx, "scorecache: put failed", "key", key, "error", err)
		}
		return result{value: v}, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("scorecache: compute %s: %w", key, err)
	}
	r := v.(result)
	return r.value, r.hit, nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
		Errors:   c.errors.Load(),
	}
}
