// Package memory is the in-process cache driver. Entries live in two
// flat maps guarded by one RWMutex; expiry is checked lazily on read
// and swept by an optional background janitor.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Mihendy/pp-2025/internal/cache"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any) cache.CacheWithCounter {
		defaultTTL := 10 * time.Minute
		sweepEvery := 5 * time.Minute

		if secs, ok := secondsOption(config, "default_ttl_seconds"); ok {
			defaultTTL = secs
		}
		if secs, ok := secondsOption(config, "cleanup_interval_seconds"); ok {
			sweepEvery = secs
		}

		return New(defaultTTL, sweepEvery)
	})
}

// secondsOption reads a positive integer seconds value from a driver
// option map. TOML and JSON decoders disagree on number types, so all
// of int, int64 and float64 are accepted.
func secondsOption(config map[string]any, key string) (time.Duration, bool) {
	if config == nil {
		return 0, false
	}
	var secs int
	switch n := config[key].(type) {
	case int:
		secs = n
	case int64:
		secs = int(n)
	case float64:
		secs = int(n)
	default:
		return 0, false
	}
	if secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

type entry struct {
	data     []byte
	deadline time.Time
}

type counter struct {
	n        int64
	deadline time.Time
}

// Cache holds values and counters in memory with per-key deadlines.
// Values and counters are separate namespaces; the same key may carry
// one of each.
type Cache struct {
	mu         sync.RWMutex
	values     map[string]entry
	counters   map[string]counter
	defaultTTL time.Duration
	done       chan struct{}
}

// New creates an in-memory cache. A sweepEvery of 0 disables the
// background janitor; expired entries are then only dropped on access.
func New(defaultTTL, sweepEvery time.Duration) *Cache {
	c := &Cache{
		values:     make(map[string]entry),
		counters:   make(map[string]counter),
		defaultTTL: defaultTTL,
		done:       make(chan struct{}),
	}
	if sweepEvery > 0 {
		go c.janitor(sweepEvery)
	}
	return c
}

func (c *Cache) janitor(every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			c.sweep(time.Now())
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.values {
		if now.After(e.deadline) {
			delete(c.values, k)
		}
	}
	for k, ct := range c.counters {
		if now.After(ct.deadline) {
			delete(c.counters, k)
		}
	}
}

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.values[key]
	c.mu.RUnlock()

	if !ok {
		return nil, cache.ErrNotFound
	}
	if time.Now().After(e.deadline) {
		return nil, cache.ErrExpired
	}

	// Callers get their own copy.
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Set stores a value. A zero TTL means the cache default.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)
	deadline := time.Now().Add(c.ttlOrDefault(ttl))

	c.mu.Lock()
	c.values[key] = entry{data: data, deadline: deadline}
	c.mu.Unlock()
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
	return nil
}

// Exists reports whether a key is present and unexpired.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.values[key]
	c.mu.RUnlock()
	return ok && time.Now().Before(e.deadline), nil
}

// Increment adds delta to a counter and returns the new value with the
// counter's reset time. An expired counter starts a fresh window.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	ct, ok := c.counters[key]
	if !ok || now.After(ct.deadline) {
		ct = counter{n: delta, deadline: now.Add(c.ttlOrDefault(ttl))}
	} else {
		ct.n += delta
	}
	c.counters[key] = ct
	return ct.n, ct.deadline, nil
}

// GetCount returns the current counter value, 0 when absent or expired.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	c.mu.RLock()
	ct, ok := c.counters[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(ct.deadline) {
		return 0, nil
	}
	return ct.n, nil
}

// Reset drops a counter, ending its window.
func (c *Cache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.counters, key)
	c.mu.Unlock()
	return nil
}

// Close stops the janitor.
func (c *Cache) Close() error {
	close(c.done)
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
