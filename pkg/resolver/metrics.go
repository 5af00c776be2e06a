package resolver

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gridbase/gridbase/internal/build"
)

var (
	resolutionTotalCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "resolution_total_count",
		Help:      "The total number of resolution requests, by kind.",
	}, []string{"kind"})

	resolutionDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: build.ProjectName,
		Name:      "resolution_duration_ms",
		Help:      "Time spent resolving a request, in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"kind"})

	coalescedRequestCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "coalesced_resolution_count",
		Help:      "The total number of resolution requests answered by an in-flight identical request.",
	})
)

// Metrics is a snapshot of the resolver's cumulative counters.
type Metrics struct {
	Lookups     uint64
	Rollups     uint64
	Hierarchies uint64
	CacheHits   uint64
	CacheMisses uint64
	QueryTime   time.Duration
}

// metrics holds the live counters. All fields are atomics so that concurrent
// resolutions can update them without a lock.
type metrics struct {
	lookups     atomic.Uint64
	rollups     atomic.Uint64
	hierarchies atomic.Uint64
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	queryNanos  atomic.Int64
}

func (m *metrics) snapshot() Metrics {
	return Metrics{
		Lookups:     m.lookups.Load(),
		Rollups:     m.rollups.Load(),
		Hierarchies: m.hierarchies.Load(),
		CacheHits:   m.cacheHits.Load(),
		CacheMisses: m.cacheMisses.Load(),
		QueryTime:   time.Duration(m.queryNanos.Load()),
	}
}

func (m *metrics) reset() {
	m.lookups.Store(0)
	m.rollups.Store(0)
	m.hierarchies.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.queryNanos.Store(0)
}

// observe records the duration of one resolution in both the Prometheus
// histogram and the cumulative query-time counter.
func (m *metrics) observe(kind string, start time.Time) {
	elapsed := time.Since(start)
	m.queryNanos.Add(int64(elapsed))
	resolutionDurationHistogram.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
}
