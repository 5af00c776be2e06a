package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/keys"
	"github.com/gridbase/gridbase/pkg/schema"
)

// filterPattern is the only filter form currently understood: a single
// `field = 'value'` equality. A full expression parser is a known gap.
var filterPattern = regexp.MustCompile(`^\s*(\w+)\s*=\s*'([^']*)'\s*$`)

func parseFilter(filter string) (field, value string, err error) {
	m := filterPattern.FindStringSubmatch(filter)
	if m == nil {
		return "", "", fmt.Errorf("invalid filter expression %q", filter)
	}
	return m[1], m[2], nil
}

// ResolveRollup aggregates one property across all records that reference the
// current record. Errors are reported through the result envelope, never
// raised.
func (r *Resolver) ResolveRollup(ctx context.Context, req *RollupRequest) *RollupResult {
	ctx, span := tracer.Start(ctx, "ResolveRollup")
	defer span.End()

	start := time.Now()
	defer r.metrics.observe("rollup", start)
	r.metrics.rollups.Add(1)
	resolutionTotalCounter.WithLabelValues("rollup").Inc()

	key := keys.RollupKey(req.SourceCollection, req.ReferenceProperty, req.RecordID, req.SourceProperty, string(req.Aggregation), req.Filter)
	if res, ok := cached[RollupResult](r, key); ok {
		r.metrics.cacheHits.Add(1)
		out := *res
		out.FromCache = true
		return &out
	}
	r.metrics.cacheMisses.Add(1)

	if r.coalesce {
		shared := false
		v, _, _ := r.group.Do(keys.Fingerprint(key), func() (any, error) {
			shared = true
			return r.resolveRollupUncached(ctx, key, req), nil
		})
		if !shared {
			coalescedRequestCounter.Inc()
		}
		out := *(v.(*RollupResult))
		return &out
	}

	return r.resolveRollupUncached(ctx, key, req)
}

func (r *Resolver) resolveRollupUncached(ctx context.Context, key string, req *RollupRequest) *RollupResult {
	value, count, err := r.rollup(ctx, req)
	if err != nil {
		r.logger.Error("rollup resolution failed",
			zap.Error(err),
			zap.String("collection", req.SourceCollection),
			zap.String("aggregation", string(req.Aggregation)),
		)
		return &RollupResult{ResolutionResult: failed(err)}
	}

	res := &RollupResult{ResolutionResult: succeeded(), Value: value, Count: count}
	r.cache.Set(key, res, r.cacheTTL)
	return res
}

func (r *Resolver) rollup(ctx context.Context, req *RollupRequest) (any, int, error) {
	if !req.Aggregation.Valid() {
		return nil, 0, fmt.Errorf("unsupported aggregation %q", req.Aggregation)
	}

	if _, err := r.schema.GetCollection(ctx, req.SourceCollection); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, 0, &schema.CollectionNotFoundError{Collection: req.SourceCollection}
		}
		return nil, 0, err
	}

	fields := []string{req.SourceProperty}

	var filterField, filterValue string
	if req.Filter != "" {
		var err error
		filterField, filterValue, err = parseFilter(req.Filter)
		if err != nil {
			return nil, 0, err
		}
		if filterField != req.SourceProperty {
			fields = append(fields, filterField)
		}
	}

	records, err := r.datastore.GetRecordsByFieldValues(ctx, req.SourceCollection, req.ReferenceProperty, []string{req.RecordID}, fields)
	if err != nil {
		return nil, 0, err
	}

	values := make([]any, 0, len(records))
	for _, record := range records {
		if filterField != "" && fmt.Sprintf("%v", record[filterField]) != filterValue {
			continue
		}
		values = append(values, record[req.SourceProperty])
	}

	return aggregate(req.Aggregation, values)
}
