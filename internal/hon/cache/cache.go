package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Kind is the resource kind part of a cache key.
type Kind string

// Resource kinds cached by the cloud client.
const (
	KindContext    Kind = "context"
	KindCommands   Kind = "commands"
	KindStatistics Kind = "statistics"
)

// Key identifies one cached resource of one device.
type Key struct {
	Kind     Kind
	DeviceID string
}

// String renders the key as "kind_device", e.g. "context_AA:BB:CC:DD:EE:FF".
func (k Key) String() string {
	return fmt.Sprintf("%s_%s", k.Kind, k.DeviceID)
}

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a keyed store of fetched payloads with per-read TTL.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent GetOrFetch calls for the same key share one fetch.
//   - A fetch that overlaps Invalidate of its device is returned to its
//     callers but not stored.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]entry
	group   singleflight.Group
	now     func() time.Time

	// generation counts Invalidate calls per device.
	generation map[string]uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[Key]entry),
		now:        time.Now,
		generation: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchFunc loads a fresh value for a key.
type FetchFunc func(ctx context.Context) (any, error)

// Get returns the value for key if it is younger than ttl.
func (c *Cache) Get(key Key, ttl time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) >= ttl {
		return nil, false
	}
	return e.value, true
}

// Set stores value for key, stamped with the current time.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// GetOrFetch returns the cached value for key if it is younger than ttl;
// otherwise it calls fetch, stores the result and returns it. Errors are
// returned to the caller and never cached.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch FetchFunc) (any, error) {
	if v, ok := c.Get(key, ttl); ok {
		return v, nil
	}

	gen := c.generationOf(key.DeviceID)

	// Callers arriving after an Invalidate start a new flight.
	flight := fmt.Sprintf("%s#%d", key, gen)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if v, ok := c.Get(key, ttl); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.setIfGeneration(key, v, gen)
		return v, nil
	})
	return v, err
}

func (c *Cache) generationOf(deviceID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation[deviceID]
}

// setIfGeneration stores value unless the device was invalidated since gen
// was read.
func (c *Cache) setIfGeneration(key Key, value any, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation[key.DeviceID] != gen {
		return
	}
	c.entries[key] = entry{value: value, storedAt: c.now()}
}

// Delete removes a single entry.
func (c *Cache) Delete(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Invalidate removes every entry of deviceID and returns how many were
// removed. Fetches of the device already in flight are not stored.
func (c *Cache) Invalidate(deviceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation[deviceID]++

	removed := 0
	for key := range c.entries {
		if key.DeviceID == deviceID {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Keys returns the keys currently held, expired or not.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of entries held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch is a typed wrapper around GetOrFetch.
func Fetch[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: %s holds %T", key, v)
	}
	return typed, nil
}
