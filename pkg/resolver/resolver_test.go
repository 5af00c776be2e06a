package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/schema"
	"github.com/gridbase/gridbase/pkg/storage"
	"github.com/gridbase/gridbase/pkg/storage/memory"
)

func testSchema() *schema.StaticProvider {
	return schema.MustNewStaticProvider(
		&schema.Collection{
			Code:       "users",
			PrimaryKey: "id",
			Properties: []*schema.Property{
				{Code: "name", Type: schema.TypeText},
				{Code: "manager_id", Type: schema.TypeReference, Reference: &schema.Reference{TargetCollection: "users"}},
			},
		},
		&schema.Collection{
			Code:       "orders",
			PrimaryKey: "id",
			Properties: []*schema.Property{
				{Code: "total", Type: schema.TypeNumber},
			},
		},
		&schema.Collection{
			Code:       "line_items",
			PrimaryKey: "id",
			Properties: []*schema.Property{
				{Code: "order_id", Type: schema.TypeReference, Reference: &schema.Reference{TargetCollection: "orders"}},
				{Code: "amount", Type: schema.TypeNumber},
				{Code: "status", Type: schema.TypeText},
			},
		},
		&schema.Collection{
			Code:       "categories",
			PrimaryKey: "id",
			Properties: []*schema.Property{
				{Code: "name", Type: schema.TypeText},
				{Code: "parent_id", Type: schema.TypeReference, Reference: &schema.Reference{TargetCollection: "categories"}},
			},
		},
		&schema.Collection{
			Code:       "folders",
			PrimaryKey: "id",
			Properties: []*schema.Property{
				{Code: "parent_id", Type: schema.TypeReference, Reference: &schema.Reference{TargetCollection: "folders"}},
			},
		},
	)
}

func seededDatastore(t *testing.T) *memory.Datastore {
	t.Helper()
	ctx := context.Background()
	ds := memory.New()

	records := map[string][]storage.Record{
		"users": {
			{"id": "u1", "name": "Ada"},
			{"id": "u2", "name": "Grace"},
		},
		"orders": {
			{"id": "o1", "total": 60},
		},
		"line_items": {
			{"id": "li1", "order_id": "o1", "amount": 10, "status": "open"},
			{"id": "li2", "order_id": "o1", "amount": 20, "status": "open"},
			{"id": "li3", "order_id": "o1", "amount": 30, "status": "closed"},
		},
		"categories": {
			{"id": "c1", "name": "root"},
			{"id": "c2", "name": "left", "parent_id": "c1"},
			{"id": "c3", "name": "leaf", "parent_id": "c2"},
			{"id": "c4", "name": "right", "parent_id": "c1"},
			{"id": "c5", "name": "other root"},
			{"id": "loop", "name": "self", "parent_id": "loop"},
		},
	}
	for collection, recs := range records {
		for _, rec := range recs {
			_, err := ds.PutRecord(ctx, collection, rec)
			require.NoError(t, err)
		}
	}

	return ds
}

func newTestResolver(t *testing.T, ds storage.RecordDatastore, cfg *Config) *Resolver {
	t.Helper()
	if ds == nil {
		ds = seededDatastore(t)
	}
	r := New(&Dependencies{Schema: testSchema(), Datastore: ds}, cfg)
	t.Cleanup(r.Close)
	return r
}

func TestResolveLookupRoundTrip(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	req := &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
		RecordID:          "t1",
		ReferenceValues:   []string{"u1"},
	}

	res := r.ResolveLookup(context.Background(), req)
	require.True(t, res.Success)
	require.Empty(t, res.Error)
	require.False(t, res.FromCache)
	require.Equal(t, "Ada", res.Value)
	require.False(t, res.Timestamp.IsZero())

	res = r.ResolveLookup(context.Background(), req)
	require.True(t, res.Success)
	require.True(t, res.FromCache)
	require.Equal(t, "Ada", res.Value)
}

func TestResolveLookupMultiReference(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	res := r.ResolveLookup(context.Background(), &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "member_ids",
		SourceProperty:    "name",
		ReferenceValues:   []string{"u2", "u1", "missing"},
	})
	require.True(t, res.Success)
	require.Equal(t, []any{"Grace", "Ada", nil}, res.Value)
}

func TestResolveLookupEmptyReference(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	res := r.ResolveLookup(context.Background(), &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
	})
	require.True(t, res.Success)
	require.Nil(t, res.Value)
}

func TestResolveLookupDanglingReference(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	res := r.ResolveLookup(context.Background(), &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
		ReferenceValues:   []string{"missing"},
	})
	require.True(t, res.Success)
	require.Nil(t, res.Value)
}

func TestResolveLookupValidation(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	tests := []struct {
		name    string
		req     *LookupRequest
		wantErr string
	}{
		{
			name: "unknown_collection",
			req: &LookupRequest{
				SourceCollection:  "nope",
				ReferenceProperty: "assignee_id",
				SourceProperty:    "name",
				ReferenceValues:   []string{"u1"},
			},
			wantErr: `collection "nope" not found`,
		},
		{
			name: "unknown_property",
			req: &LookupRequest{
				SourceCollection:  "users",
				ReferenceProperty: "assignee_id",
				SourceProperty:    "nope",
				ReferenceValues:   []string{"u1"},
			},
			wantErr: `property "nope" not found on collection "users"`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := r.ResolveLookup(context.Background(), test.req)
			require.False(t, res.Success)
			require.Contains(t, res.Error, test.wantErr)
		})
	}
}

func TestResolveRollup(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	res := r.ResolveRollup(context.Background(), &RollupRequest{
		SourceCollection:  "line_items",
		ReferenceProperty: "order_id",
		SourceProperty:    "amount",
		Aggregation:       AggregationSum,
		RecordID:          "o1",
	})
	require.True(t, res.Success)
	require.False(t, res.FromCache)
	require.Equal(t, 60.0, res.Value)
	require.Equal(t, 3, res.Count)

	res = r.ResolveRollup(context.Background(), &RollupRequest{
		SourceCollection:  "line_items",
		ReferenceProperty: "order_id",
		SourceProperty:    "amount",
		Aggregation:       AggregationSum,
		RecordID:          "o1",
	})
	require.True(t, res.FromCache)
	require.Equal(t, 60.0, res.Value)
}

func TestResolveRollupWithFilter(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	res := r.ResolveRollup(context.Background(), &RollupRequest{
		SourceCollection:  "line_items",
		ReferenceProperty: "order_id",
		SourceProperty:    "amount",
		Aggregation:       AggregationSum,
		RecordID:          "o1",
		Filter:            "status = 'open'",
	})
	require.True(t, res.Success)
	require.Equal(t, 30.0, res.Value)
	require.Equal(t, 2, res.Count)
}

func TestResolveRollupNoMatches(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	res := r.ResolveRollup(context.Background(), &RollupRequest{
		SourceCollection:  "line_items",
		ReferenceProperty: "order_id",
		SourceProperty:    "amount",
		Aggregation:       AggregationSum,
		RecordID:          "o9",
	})
	require.True(t, res.Success)
	require.Equal(t, 0.0, res.Value)
	require.Equal(t, 0, res.Count)
}

func TestResolveRollupValidation(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	tests := []struct {
		name    string
		req     *RollupRequest
		wantErr string
	}{
		{
			name: "unknown_collection",
			req: &RollupRequest{
				SourceCollection:  "nope",
				ReferenceProperty: "order_id",
				SourceProperty:    "amount",
				Aggregation:       AggregationSum,
				RecordID:          "o1",
			},
			wantErr: `collection "nope" not found`,
		},
		{
			name: "unknown_aggregation",
			req: &RollupRequest{
				SourceCollection:  "line_items",
				ReferenceProperty: "order_id",
				SourceProperty:    "amount",
				Aggregation:       Aggregation("MEDIAN"),
				RecordID:          "o1",
			},
			wantErr: `unsupported aggregation "MEDIAN"`,
		},
		{
			name: "invalid_filter",
			req: &RollupRequest{
				SourceCollection:  "line_items",
				ReferenceProperty: "order_id",
				SourceProperty:    "amount",
				Aggregation:       AggregationSum,
				RecordID:          "o1",
				Filter:            "status > 'open'",
			},
			wantErr: "invalid filter expression",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := r.ResolveRollup(context.Background(), test.req)
			require.False(t, res.Success)
			require.Contains(t, res.Error, test.wantErr)
		})
	}
}

func TestInvalidateRecord(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	req := &RollupRequest{
		SourceCollection:  "line_items",
		ReferenceProperty: "order_id",
		SourceProperty:    "amount",
		Aggregation:       AggregationSum,
		RecordID:          "o1",
	}

	require.True(t, r.ResolveRollup(context.Background(), req).Success)
	require.True(t, r.ResolveRollup(context.Background(), req).FromCache)

	require.Equal(t, 1, r.InvalidateRecord("line_items", "o1"))
	require.False(t, r.ResolveRollup(context.Background(), req).FromCache)
}

func TestInvalidateCollection(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	lookup := &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
		ReferenceValues:   []string{"u1"},
	}
	rollup := &RollupRequest{
		SourceCollection:  "line_items",
		ReferenceProperty: "order_id",
		SourceProperty:    "amount",
		Aggregation:       AggregationSum,
		RecordID:          "o1",
	}

	r.ResolveLookup(context.Background(), lookup)
	r.ResolveRollup(context.Background(), rollup)

	require.Equal(t, 1, r.InvalidateCollection("users"))
	require.False(t, r.ResolveLookup(context.Background(), lookup).FromCache)
	require.True(t, r.ResolveRollup(context.Background(), rollup).FromCache)
}

func TestFailedResolutionsAreNotCached(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	req := &LookupRequest{
		SourceCollection:  "nope",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
		ReferenceValues:   []string{"u1"},
	}

	require.False(t, r.ResolveLookup(context.Background(), req).Success)
	res := r.ResolveLookup(context.Background(), req)
	require.False(t, res.Success)
	require.False(t, res.FromCache)
}

func TestMetrics(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	lookup := &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
		ReferenceValues:   []string{"u1"},
	}

	r.ResolveLookup(context.Background(), lookup)
	r.ResolveLookup(context.Background(), lookup)
	r.ResolveRollup(context.Background(), &RollupRequest{
		SourceCollection:  "line_items",
		ReferenceProperty: "order_id",
		SourceProperty:    "amount",
		Aggregation:       AggregationSum,
		RecordID:          "o1",
	})
	r.ResolveHierarchy(context.Background(), &HierarchyRequest{
		Collection:     "categories",
		ParentProperty: "parent_id",
		RecordID:       "c3",
		Direction:      DirectionAncestors,
	})

	m := r.Metrics()
	require.Equal(t, uint64(2), m.Lookups)
	require.Equal(t, uint64(1), m.Rollups)
	require.Equal(t, uint64(1), m.Hierarchies)
	require.Equal(t, uint64(1), m.CacheHits)
	require.Equal(t, uint64(3), m.CacheMisses)

	r.ResetMetrics()
	require.Zero(t, r.Metrics().Lookups)
	require.Zero(t, r.Metrics().CacheHits)
}

func TestCacheStats(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	r.ResolveLookup(context.Background(), &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
		ReferenceValues:   []string{"u1"},
	})

	stats := r.CacheStats()
	require.Equal(t, 1, stats.Size)
}

// blockingDatastore parks every GetRecords call until released, so a test can
// pile up concurrent identical lookups behind one in-flight fetch.
type blockingDatastore struct {
	storage.RecordDatastore

	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *blockingDatastore) GetRecords(ctx context.Context, collection string, ids []string, fields []string) ([]storage.Record, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.once.Do(func() { close(d.entered) })
	<-d.release
	return d.RecordDatastore.GetRecords(ctx, collection, ids, fields)
}

func TestCoalescedLookups(t *testing.T) {
	ds := &blockingDatastore{
		RecordDatastore: seededDatastore(t),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	r := newTestResolver(t, ds, &Config{CoalesceRequests: true})

	req := &LookupRequest{
		SourceCollection:  "users",
		ReferenceProperty: "assignee_id",
		SourceProperty:    "name",
		ReferenceValues:   []string{"u1"},
	}

	const callers = 4
	results := make([]*LookupResult, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.ResolveLookup(context.Background(), req)
		}(i)
	}

	<-ds.entered
	time.Sleep(50 * time.Millisecond)
	close(ds.release)
	wg.Wait()

	for _, res := range results {
		require.True(t, res.Success)
		require.Equal(t, "Ada", res.Value)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	require.Equal(t, 1, ds.calls)
}
