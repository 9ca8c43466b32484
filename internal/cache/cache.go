// Package cache is a TTL cache with stale-while-revalidate semantics. A fresh
// entry is returned as is; an expired entry is returned immediately while one
// background fetch refreshes it; a missing entry is fetched inline. Concurrent
// fetches of the same key are coalesced.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads the authoritative value for a key.
type Fetcher[T any] func(ctx context.Context) (T, error)

type Cache[T any] struct {
	namespace string
	store     Store
	ttl       time.Duration
	group     singleflight.Group
	refreshes conc.WaitGroup
	onChange  func(key string, value T)
	logger    zerolog.Logger
	now       func() time.Time
}

type Option[T any] func(*Cache[T])

// WithOnChange registers a callback fired whenever a fetch stores a value that
// differs from what was cached before.
func WithOnChange[T any](fn func(key string, value T)) Option[T] {
	return func(c *Cache[T]) { c.onChange = fn }
}

func withClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = now }
}

// New creates a cache whose keys live under namespace in store. ttl is the
// default freshness window.
func New[T any](namespace string, store Store, ttl time.Duration, logger zerolog.Logger, opts ...Option[T]) *Cache[T] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &Cache[T]{
		namespace: namespace + ":",
		store:     store,
		ttl:       ttl,
		logger:    logger.With().Str("component", "cache").Str("cache", namespace).Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key. ttl overrides the default freshness window
// when positive.
func (c *Cache[T]) Get(ctx context.Context, key string, ttl time.Duration, fetch Fetcher[T]) (T, error) {
	var zero T
	if ttl <= 0 {
		ttl = c.ttl
	}
	storeKey := c.namespace + key

	entry, ok, err := c.store.Load(ctx, storeKey)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache load failed, fetching")
		ok = false
	}
	if ok {
		var value T
		if err := json.Unmarshal(entry.Value, &value); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		} else {
			if c.now().Sub(entry.FetchedAt) < ttl {
				metrics.RecordCacheRequest("hit")
				return value, nil
			}
			metrics.RecordCacheRequest("stale")
			c.revalidate(ctx, key, fetch)
			return value, nil
		}
	}

	metrics.RecordCacheRequest("miss")
	v, err, _ := c.group.Do(storeKey, func() (interface{}, error) {
		return c.fetchAndStore(ctx, key, fetch)
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache[T]) revalidate(ctx context.Context, key string, fetch Fetcher[T]) {
	detached := context.WithoutCancel(ctx)
	c.refreshes.Go(func() {
		_, err, _ := c.group.Do(c.namespace+key, func() (interface{}, error) {
			return c.fetchAndStore(detached, key, fetch)
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("background refresh failed, keeping stale value")
		}
	})
}

func (c *Cache[T]) fetchAndStore(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	value, err := fetch(ctx)
	if err != nil {
		return value, errors.Wrapf(err, "fetch %s", key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value, errors.Wrapf(err, "encode %s", key)
	}

	storeKey := c.namespace + key
	previous, had, _ := c.store.Load(ctx, storeKey)
	if err := c.store.Save(ctx, storeKey, Entry{Value: raw, FetchedAt: c.now()}); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache save failed")
	}
	if c.onChange != nil && (!had || !bytes.Equal(previous.Value, raw)) {
		c.onChange(key, value)
	}
	return value, nil
}

// Invalidate drops one key; the next Get fetches inline.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.namespace+key)
}

// InvalidateAll drops every key of this cache.
func (c *Cache[T]) InvalidateAll(ctx context.Context) error {
	return c.store.DeletePrefix(ctx, c.namespace)
}

// Wait blocks until in-flight background refreshes finish.
func (c *Cache[T]) Wait() {
	c.refreshes.Wait()
}
