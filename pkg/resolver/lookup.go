package resolver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/keys"
	"github.com/gridbase/gridbase/pkg/schema"
)

// ResolveLookup fetches the value of one property from the record(s)
// referenced by another record. Errors are reported through the result
// envelope, never raised.
func (r *Resolver) ResolveLookup(ctx context.Context, req *LookupRequest) *LookupResult {
	ctx, span := tracer.Start(ctx, "ResolveLookup")
	defer span.End()

	start := time.Now()
	defer r.metrics.observe("lookup", start)
	r.metrics.lookups.Add(1)
	resolutionTotalCounter.WithLabelValues("lookup").Inc()

	key := keys.LookupKey(req.SourceCollection, req.ReferenceProperty, req.ReferenceValues, req.SourceProperty)
	if res, ok := cached[LookupResult](r, key); ok {
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
			return r.resolveLookupUncached(ctx, key, req), nil
		})
		if !shared {
			coalescedRequestCounter.Inc()
		}
		// Copy so callers sharing the coalesced result never share memory.
		out := *(v.(*LookupResult))
		return &out
	}

	return r.resolveLookupUncached(ctx, key, req)
}

func (r *Resolver) resolveLookupUncached(ctx context.Context, key string, req *LookupRequest) *LookupResult {
	value, err := r.lookup(ctx, req)
	if err != nil {
		r.logger.Error("lookup resolution failed",
			zap.Error(err),
			zap.String("collection", req.SourceCollection),
			zap.String("property", req.SourceProperty),
		)
		return &LookupResult{ResolutionResult: failed(err)}
	}

	res := &LookupResult{ResolutionResult: succeeded(), Value: value}
	r.cache.Set(key, res, r.cacheTTL)
	return res
}

func (r *Resolver) lookup(ctx context.Context, req *LookupRequest) (any, error) {
	if _, err := r.schema.GetCollection(ctx, req.SourceCollection); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, &schema.CollectionNotFoundError{Collection: req.SourceCollection}
		}
		return nil, err
	}
	if _, err := r.schema.GetProperty(ctx, req.SourceCollection, req.SourceProperty); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, &schema.PropertyNotFoundError{Collection: req.SourceCollection, Property: req.SourceProperty}
		}
		return nil, err
	}

	if len(req.ReferenceValues) == 0 {
		return nil, nil
	}

	records, err := r.datastore.GetRecords(ctx, req.SourceCollection, req.ReferenceValues, []string{req.SourceProperty})
	if err != nil {
		return nil, err
	}

	// Absence of a reference target is not an error.
	if len(records) == 0 {
		return nil, nil
	}

	if len(req.ReferenceValues) > 1 {
		byID := make(map[string]any, len(records))
		for _, record := range records {
			byID[record.ID()] = record[req.SourceProperty]
		}
		// Aligned to the input reference values; dangling ids yield nil.
		out := make([]any, len(req.ReferenceValues))
		for i, id := range req.ReferenceValues {
			out[i] = byID[id]
		}
		return out, nil
	}

	return records[0][req.SourceProperty], nil
}
