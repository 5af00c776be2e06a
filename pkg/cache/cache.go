// Package cache provides a process-local, time-and-capacity-bounded
// key/value store used to memoize relationship resolution results.
//
// Keys follow a namespacing convention (`lookup:`, `rollup:` and
// `hierarchy:` prefixes followed by collection and record identifiers)
// which enables coarse-grained invalidation by pattern without the cache
// tracking any reverse indexes.
package cache

import (
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gridbase/gridbase/internal/build"
)

const (
	// DefaultTTL bounds the staleness of an entry when no per-entry TTL is given.
	DefaultTTL = time.Minute

	// DefaultMaxSize bounds the number of entries held at any one time.
	DefaultMaxSize = 10000

	// DefaultCleanupInterval is how often the background sweep removes expired
	// entries, independent of access patterns.
	DefaultCleanupInterval = 30 * time.Second
)

var (
	cacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "resolution_cache_hit_count",
		Help:      "The total number of cache hits across all resolution caches.",
	})

	cacheMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "resolution_cache_miss_count",
		Help:      "The total number of cache misses across all resolution caches.",
	})

	cacheEvictionCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "resolution_cache_eviction_count",
		Help:      "The total number of entries evicted to satisfy the capacity bound.",
	})
)

// entry is the internal representation of a cached value. Entries are owned
// exclusively by the Cache and are never handed out.
type entry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
	hits      int64
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Size        int
	Capacity    int
	Hits        uint64
	Misses      uint64
	HitRate     float64
	Evictions   uint64
	Expirations uint64
}

// Cache memoizes values of type T under string keys. All methods are safe for
// concurrent use; the read-modify-write sequences (capacity check, eviction,
// insert) are guarded by a single mutex.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]

	defaultTTL      time.Duration
	maxSize         int
	ttlEnabled      bool
	cleanupInterval time.Duration

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	done     chan struct{}
	stopOnce sync.Once
}

// Opt defines an option that can be used to change the behavior of a Cache
// instance.
type Opt[T any] func(*Cache[T])

// WithDefaultTTL sets the TTL applied when Set is called with a non-positive ttl.
func WithDefaultTTL[T any](ttl time.Duration) Opt[T] {
	return func(c *Cache[T]) {
		c.defaultTTL = ttl
	}
}

// WithMaxSize sets the maximum number of entries held before eviction kicks in.
func WithMaxSize[T any](size int) Opt[T] {
	return func(c *Cache[T]) {
		c.maxSize = size
	}
}

// WithTTL enables or disables expiry entirely. With TTL disabled entries stay
// visible until evicted or invalidated.
func WithTTL[T any](enabled bool) Opt[T] {
	return func(c *Cache[T]) {
		c.ttlEnabled = enabled
	}
}

// WithCleanupInterval sets the period of the background sweep that removes
// expired entries even for keys that are never read again. A zero interval
// disables the sweep.
func WithCleanupInterval[T any](interval time.Duration) Opt[T] {
	return func(c *Cache[T]) {
		c.cleanupInterval = interval
	}
}

// New constructs a Cache and, if TTL and the sweep are enabled, starts the
// background sweep goroutine. Callers must call Stop when done with the cache.
func New[T any](opts ...Opt[T]) *Cache[T] {
	c := &Cache[T]{
		entries:         map[string]*entry[T]{},
		defaultTTL:      DefaultTTL,
		maxSize:         DefaultMaxSize,
		ttlEnabled:      true,
		cleanupInterval: DefaultCleanupInterval,
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.ttlEnabled && c.cleanupInterval > 0 {
		go c.sweep()
	}

	return c
}

// Get returns the value stored under key. An unset key, or an expired one when
// TTL is enabled, counts as a miss; expired entries are removed lazily here.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		cacheMissCounter.Inc()
		return zero, false
	}

	if c.ttlEnabled && time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.expirations++
		c.misses++
		cacheMissCounter.Inc()
		return zero, false
	}

	e.hits++
	c.hits++
	cacheHitCounter.Inc()
	return e.value, true
}

// Set stores value under key with the given ttl, falling back to the default
// TTL when ttl is non-positive. When the cache is at capacity one entry is
// evicted first.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	now := time.Now()
	c.entries[key] = &entry[T]{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

// evictLocked removes the entry minimizing hits - age/1s: entries that are
// both rarely reused and old go first. The O(n) scan is acceptable because it
// only runs on capacity overflow, not per request.
func (c *Cache[T]) evictLocked() {
	now := time.Now()

	var victim string
	best := 0.0
	first := true
	for key, e := range c.entries {
		score := float64(e.hits) - now.Sub(e.createdAt).Seconds()
		if first || score < best {
			victim = key
			best = score
			first = false
		}
	}

	if !first {
		delete(c.entries, victim)
		c.evictions++
		cacheEvictionCounter.Inc()
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Has reports whether key is currently visible. It does not touch the hit and
// miss counters.
func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.ttlEnabled && time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.expirations++
		return false
	}
	return true
}

// InvalidatePattern removes every entry whose key matches pattern and returns
// the number removed.
func (c *Cache[T]) InvalidatePattern(pattern *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if pattern.MatchString(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// InvalidateCollection removes every lookup, rollup and hierarchy entry scoped
// to the given collection code.
func (c *Cache[T]) InvalidateCollection(collection string) int {
	return c.InvalidatePattern(collectionPattern(collection))
}

// InvalidateRecord removes every entry scoped to the given collection whose
// key mentions the given record id in any segment. This is deliberately
// coarse: a lookup key mentions the id as a reference value, a rollup or
// hierarchy key as the anchoring record.
func (c *Cache[T]) InvalidateRecord(collection, id string) int {
	return c.InvalidatePattern(recordPattern(collection, id))
}

func collectionPattern(collection string) *regexp.Regexp {
	return regexp.MustCompile(`^(lookup|rollup|hierarchy):` + regexp.QuoteMeta(collection) + `:`)
}

func recordPattern(collection, id string) *regexp.Regexp {
	return regexp.MustCompile(`^(lookup|rollup|hierarchy):` + regexp.QuoteMeta(collection) + `:(.*[:,])?` + regexp.QuoteMeta(id) + `([:,]|$)`)
}

// Len returns the current number of entries, including any not yet swept.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot derived purely from the counters maintained by
// Get, Set and the sweep.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:        len(c.entries),
		Capacity:    c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     rate,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Clear removes all entries without touching the cumulative counters.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*entry[T]{}
}

// Stop terminates the background sweep. It is safe to call more than once.
func (c *Cache[T]) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

func (c *Cache[T]) sweep() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache[T]) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			c.expirations++
		}
	}
}
