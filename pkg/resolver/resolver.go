// Package resolver computes record values that are not stored directly on a
// record but derived from related records: cross-record field lookups,
// aggregated rollups over related-record sets, and traversals of
// self-referential parent/child hierarchies.
//
// The resolver is agnostic to the underlying storage and schema backends,
// which it consumes through [schema.Provider] and [storage.RecordDatastore].
// Every public operation is a single cache-checked, then-fetch-if-needed
// round trip; results are memoized in an advisory, time-bounded cache that is
// never treated as a source of truth.
package resolver

import (
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/gridbase/gridbase/pkg/cache"
	"github.com/gridbase/gridbase/pkg/logger"
	"github.com/gridbase/gridbase/pkg/schema"
	"github.com/gridbase/gridbase/pkg/storage"
)

var tracer = otel.Tracer("gridbase/pkg/resolver")

// DefaultMaxHierarchyDepth bounds hierarchy traversals when the configuration
// leaves MaxHierarchyDepth unset.
const DefaultMaxHierarchyDepth = 50

// Dependencies are the external collaborators a Resolver is built from.
type Dependencies struct {
	Schema    schema.Provider
	Datastore storage.RecordDatastore
	Logger    logger.Logger
}

// Config tunes a Resolver. The zero value is usable.
type Config struct {
	// CacheTTL bounds result staleness; 0 means the cache default.
	CacheTTL time.Duration

	// CacheMaxSize bounds the number of memoized results; 0 means the cache
	// default.
	CacheMaxSize int

	// CacheDisableTTL turns expiry off entirely.
	CacheDisableTTL bool

	// CacheCleanupInterval is the background sweep period; 0 means the cache
	// default, negative disables the sweep.
	CacheCleanupInterval time.Duration

	// MaxHierarchyDepth bounds hierarchy traversals; 0 means
	// DefaultMaxHierarchyDepth.
	MaxHierarchyDepth int

	// QueryTimeout is reserved for future use; fetch timeouts are currently
	// the responsibility of the datastore implementation.
	QueryTimeout time.Duration

	// CoalesceRequests makes concurrent identical cache misses share a single
	// datastore round trip instead of each querying independently.
	CoalesceRequests bool

	// BatchConcurrency bounds how many batch sub-requests run concurrently;
	// values below 2 keep batch resolution sequential.
	BatchConcurrency int
}

// Resolver is the relationship resolution orchestrator.
type Resolver struct {
	schema    schema.Provider
	datastore storage.RecordDatastore
	logger    logger.Logger
	cache     *cache.Cache[any]

	cacheTTL         time.Duration
	maxDepth         int
	coalesce         bool
	batchConcurrency int

	group   singleflight.Group
	metrics metrics
}

// New creates a Resolver from the supplied collaborators. Callers must call
// Close when done with it.
func New(deps *Dependencies, cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	cacheOpts := []cache.Opt[any]{
		cache.WithTTL[any](!cfg.CacheDisableTTL),
	}
	if cfg.CacheTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithDefaultTTL[any](cfg.CacheTTL))
	}
	if cfg.CacheMaxSize > 0 {
		cacheOpts = append(cacheOpts, cache.WithMaxSize[any](cfg.CacheMaxSize))
	}
	if cfg.CacheCleanupInterval != 0 {
		interval := cfg.CacheCleanupInterval
		if interval < 0 {
			interval = 0
		}
		cacheOpts = append(cacheOpts, cache.WithCleanupInterval[any](interval))
	}

	maxDepth := cfg.MaxHierarchyDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxHierarchyDepth
	}

	return &Resolver{
		schema:           deps.Schema,
		datastore:        deps.Datastore,
		logger:           log,
		cache:            cache.New[any](cacheOpts...),
		cacheTTL:         cfg.CacheTTL,
		maxDepth:         maxDepth,
		coalesce:         cfg.CoalesceRequests,
		batchConcurrency: cfg.BatchConcurrency,
	}
}

// Close releases the resolver's cache resources.
func (r *Resolver) Close() {
	r.cache.Stop()
}

// InvalidateRecord drops every memoized result scoped to the given record.
func (r *Resolver) InvalidateRecord(collection, id string) int {
	return r.cache.InvalidateRecord(collection, id)
}

// InvalidateCollection drops every memoized result scoped to the given
// collection.
func (r *Resolver) InvalidateCollection(collection string) int {
	return r.cache.InvalidateCollection(collection)
}

// CacheStats exposes the cache's counter snapshot.
func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.Stats()
}

// Metrics returns a snapshot of the resolver's cumulative counters.
func (r *Resolver) Metrics() Metrics {
	return r.metrics.snapshot()
}

// ResetMetrics zeroes the resolver's cumulative counters.
func (r *Resolver) ResetMetrics() {
	r.metrics.reset()
}

// cached returns the memoized result of type T under key, if any.
func cached[T any](r *Resolver, key string) (*T, bool) {
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	res, ok := v.(*T)
	return res, ok
}

func succeeded() ResolutionResult {
	return ResolutionResult{Success: true, Timestamp: time.Now()}
}

func failed(err error) ResolutionResult {
	return ResolutionResult{Error: err.Error(), Timestamp: time.Now()}
}
