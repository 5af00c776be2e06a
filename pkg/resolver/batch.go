package resolver

import (
	"context"
	"time"

	"github.com/gridbase/gridbase/internal/concurrency"
)

// ResolveBatch runs each sub-request against the matching resolution
// operation and collects all results and error messages in input order.
// Overall success requires every sub-request to have succeeded.
func (r *Resolver) ResolveBatch(ctx context.Context, req *BatchRequest) *BatchResult {
	ctx, span := tracer.Start(ctx, "ResolveBatch")
	defer span.End()

	results := make([]BatchItemResult, len(req.Items))
	errs := make([]string, len(req.Items))

	run := func(ctx context.Context, i int) {
		item := req.Items[i]
		kind, err := ClassifyItem(item)
		if err != nil {
			errs[i] = err.Error()
			return
		}

		results[i].Kind = kind
		switch kind {
		case KindLookup:
			results[i].Lookup = r.ResolveLookup(ctx, item.Lookup)
		case KindRollup:
			results[i].Rollup = r.ResolveRollup(ctx, item.Rollup)
		case KindHierarchy:
			results[i].Hierarchy = r.ResolveHierarchy(ctx, item.Hierarchy)
		}

		if env := results[i].envelope(); env != nil && !env.Success {
			errs[i] = env.Error
		}
	}

	if r.batchConcurrency > 1 && len(req.Items) > 1 {
		pool := concurrency.NewPool(ctx, r.batchConcurrency)
		for i := range req.Items {
			pool.Go(func(ctx context.Context) error {
				run(ctx, i)
				return nil
			})
		}
		_ = pool.Wait()
	} else {
		for i := range req.Items {
			run(ctx, i)
		}
	}

	out := &BatchResult{Results: results, Timestamp: time.Now()}
	for _, msg := range errs {
		if msg != "" {
			out.Errors = append(out.Errors, msg)
		}
	}
	out.Success = len(out.Errors) == 0
	return out
}
