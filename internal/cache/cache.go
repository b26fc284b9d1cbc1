// Package cache implements a read-through cache over a pluggable backend.
//
// The cache is never authoritative. Backend failures are logged and the value
// is computed directly, so a broken cache costs latency but never
// correctness.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/ordersync/internal/syncerr"
	"github.com/roach88/ordersync/internal/telemetry"
)

// Backend stores cache entries.
type Backend interface {
	// Get returns the entry for key. found is false on a miss or expiry.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache is a read-through cache. Safe for concurrent use.
type Cache struct {
	backend Backend
	logger  *slog.Logger
	metrics *telemetry.Metrics
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithMetrics records hits, misses and backend errors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached value for key, or computes, stores and
// returns it. Concurrent misses for the same key share one compute, which
// runs detached from any single caller's cancellation; each caller still
// stops waiting when its own ctx is done.
// Errors from compute are returned and nothing is stored.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	data, found, err := c.backend.Get(ctx, key)
	switch {
	case err != nil:
		c.warn(syncerr.CacheIO("get", key, err))
		c.metrics.CacheResult(telemetry.CacheError)
		return compute(ctx)
	case found:
		c.metrics.CacheResult(telemetry.CacheHit)
		return data, nil
	}

	c.metrics.CacheResult(telemetry.CacheMiss)
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		data, err := compute(shared)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Set(shared, key, data, ttl); err != nil {
			c.warn(syncerr.CacheIO("set", key, err))
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Invalidate removes keys. A backend failure is logged and returned as a
// CACHE_IO error; entries then live until their TTL.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.backend.Delete(ctx, keys...); err != nil {
		cerr := syncerr.CacheIO("delete", keys[0], err)
		c.warn(cerr)
		return cerr
	}
	return nil
}

func (c *Cache) warn(err error) {
	c.logger.Warn("cache backend failure, computing directly", "error", err)
}

// GetOrComputeJSON is GetOrCompute for JSON-encoded values.
// An entry that does not decode into T is treated as a miss and replaced.
func GetOrComputeJSON[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	encode := func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		return data, nil
	}

	var zero T
	data, err := c.GetOrCompute(ctx, key, ttl, encode)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(data, &out); err == nil {
		return out, nil
	}

	c.logger.Warn("undecodable cache entry, recomputing", "key", key)
	if err := c.Invalidate(ctx, key); err != nil {
		v, cerr := compute(ctx)
		return v, cerr
	}
	data, err = c.GetOrCompute(ctx, key, ttl, encode)
	if err != nil {
		return zero, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}
