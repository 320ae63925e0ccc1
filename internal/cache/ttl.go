package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TTL is a typed view of one Store namespace with a fixed time-to-live.
// An entry is fresh while its age is strictly below the TTL.
type TTL[T any] struct {
	store     Store
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

// NewTTL creates a typed cache over namespace of store.
func NewTTL[T any](store Store, namespace string, ttl time.Duration) *TTL[T] {
	return &TTL[T]{store: store, namespace: namespace, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (c *TTL[T]) SetClock(now func() time.Time) {
	c.now = now
}

// TTL returns the configured time-to-live.
func (c *TTL[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value stored under key if it is still fresh.
func (c *TTL[T]) Get(ctx context.Context, key string) (T, bool) {
	v, storedAt, ok := c.GetStale(ctx, key)
	if !ok || c.now().Sub(storedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return v, true
}

// GetStale returns the value stored under key regardless of its age.
func (c *TTL[T]) GetStale(ctx context.Context, key string) (T, time.Time, bool) {
	var v T
	rec, ok, err := c.store.Load(ctx, c.namespace, key)
	if err != nil || !ok {
		return v, time.Time{}, false
	}
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return v, time.Time{}, false
	}
	return v, rec.StoredAt, true
}

// Set stores v under key with the current time.
func (c *TTL[T]) Set(ctx context.Context, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value %s/%s: %w", c.namespace, key, err)
	}
	return c.store.Save(ctx, c.namespace, key, Record{Data: data, StoredAt: c.now()}, c.ttl)
}

// Delete removes key.
func (c *TTL[T]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.namespace, key)
}

// Clear removes every key of the namespace.
func (c *TTL[T]) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.namespace)
}
