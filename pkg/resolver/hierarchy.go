package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/keys"
	"github.com/gridbase/gridbase/pkg/schema"
	"github.com/gridbase/gridbase/pkg/storage"
)

// ResolveHierarchy traverses a self-referential parent/child relationship
// from the starting record in the requested direction. Errors are reported
// through the result envelope, never raised.
func (r *Resolver) ResolveHierarchy(ctx context.Context, req *HierarchyRequest) *HierarchyResult {
	ctx, span := tracer.Start(ctx, "ResolveHierarchy")
	defer span.End()

	start := time.Now()
	defer r.metrics.observe("hierarchy", start)
	r.metrics.hierarchies.Add(1)
	resolutionTotalCounter.WithLabelValues("hierarchy").Inc()

	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = r.maxDepth
	}

	key := keys.HierarchyKey(req.Collection, req.RecordID, string(req.Direction), maxDepth)
	if res, ok := cached[HierarchyResult](r, key); ok {
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
			return r.resolveHierarchyUncached(ctx, key, req, maxDepth), nil
		})
		if !shared {
			coalescedRequestCounter.Inc()
		}
		out := *(v.(*HierarchyResult))
		return &out
	}

	return r.resolveHierarchyUncached(ctx, key, req, maxDepth)
}

func (r *Resolver) resolveHierarchyUncached(ctx context.Context, key string, req *HierarchyRequest, maxDepth int) *HierarchyResult {
	nodes, path, depth, err := r.hierarchy(ctx, req, maxDepth)
	if err != nil {
		r.logger.Error("hierarchy resolution failed",
			zap.Error(err),
			zap.String("collection", req.Collection),
			zap.String("direction", string(req.Direction)),
		)
		return &HierarchyResult{ResolutionResult: failed(err)}
	}

	res := &HierarchyResult{ResolutionResult: succeeded(), Nodes: nodes, Path: path, Depth: depth}
	r.cache.Set(key, res, r.cacheTTL)
	return res
}

func (r *Resolver) hierarchy(ctx context.Context, req *HierarchyRequest, maxDepth int) ([]*HierarchyNode, []string, int, error) {
	if !req.Direction.Valid() {
		return nil, nil, 0, fmt.Errorf("unsupported traversal direction %q", req.Direction)
	}

	if _, err := r.schema.GetCollection(ctx, req.Collection); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, nil, 0, &schema.CollectionNotFoundError{Collection: req.Collection}
		}
		return nil, nil, 0, err
	}
	if _, err := r.schema.GetProperty(ctx, req.Collection, req.ParentProperty); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, nil, 0, &schema.PropertyNotFoundError{Collection: req.Collection, Property: req.ParentProperty}
		}
		return nil, nil, 0, err
	}

	switch req.Direction {
	case DirectionAncestors:
		_, nodes, depth, err := r.walkUp(ctx, req, maxDepth)
		return nodes, nil, depth, err
	case DirectionDescendants:
		return r.descendants(ctx, req, maxDepth)
	case DirectionSiblings:
		nodes, err := r.siblings(ctx, req)
		return nodes, nil, 0, err
	case DirectionPath:
		return r.rootPath(ctx, req, maxDepth)
	}
	return nil, nil, 0, fmt.Errorf("unsupported traversal direction %q", req.Direction)
}

// walkUp follows the parent pointer from the starting record, one round trip
// per hop. It stops at a null parent, a dangling parent id, or a previously
// visited id; revisits truncate the walk rather than failing it.
func (r *Resolver) walkUp(ctx context.Context, req *HierarchyRequest, maxDepth int) (storage.Record, []*HierarchyNode, int, error) {
	fields := hierarchyFields(req)

	start, err := r.datastore.GetRecord(ctx, req.Collection, req.RecordID, fields)
	if err != nil {
		return nil, nil, 0, err
	}

	visited := map[string]bool{start.ID(): true}
	nodes := []*HierarchyNode{}
	current := start
	depth := 0

	for {
		parentID := stringField(current, req.ParentProperty)
		if parentID == "" || visited[parentID] {
			break
		}
		if depth+1 > maxDepth {
			return start, nodes, depth, &MaxDepthExceededError{Limit: maxDepth, Reached: depth + 1}
		}
		parent, err := r.datastore.GetRecord(ctx, req.Collection, parentID, fields)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			return start, nodes, depth, err
		}
		depth++
		visited[parentID] = true
		nodes = append(nodes, newNode(parent, depth, req.Properties))
		current = parent
	}

	return start, nodes, depth, nil
}

func (r *Resolver) descendants(ctx context.Context, req *HierarchyRequest, maxDepth int) ([]*HierarchyNode, []string, int, error) {
	fields := hierarchyFields(req)

	start, err := r.datastore.GetRecord(ctx, req.Collection, req.RecordID, fields)
	if err != nil {
		return nil, nil, 0, err
	}

	maxReached := 0
	root, err := r.buildSubtree(ctx, req, start, 0, maxDepth, make(map[string]bool), &maxReached)
	if err != nil {
		return nil, nil, 0, err
	}

	nodes := []*HierarchyNode{}
	if root != nil {
		nodes = append(nodes, root)
	}
	return nodes, nil, maxReached, nil
}

// buildSubtree recursively assembles the subtree rooted at record. The visited
// set is shared across the whole traversal: an id seen twice anywhere yields
// no subtree for the second occurrence, which makes cyclic data terminate.
func (r *Resolver) buildSubtree(ctx context.Context, req *HierarchyRequest, record storage.Record, depth, maxDepth int, visited map[string]bool, maxReached *int) (*HierarchyNode, error) {
	id := record.ID()
	if visited[id] {
		return nil, nil
	}
	visited[id] = true

	if depth > maxDepth {
		return nil, &MaxDepthExceededError{Limit: maxDepth, Reached: depth}
	}
	if depth > *maxReached {
		*maxReached = depth
	}

	node := newNode(record, depth, req.Properties)

	children, err := r.datastore.GetChildRecords(ctx, req.Collection, req.ParentProperty, id, hierarchyFields(req))
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		sub, err := r.buildSubtree(ctx, req, child, depth+1, maxDepth, visited, maxReached)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			node.Children = append(node.Children, sub)
		}
	}
	return node, nil
}

// siblings returns the other children of the starting record's parent. A null
// parent pointer makes the other root records the siblings.
func (r *Resolver) siblings(ctx context.Context, req *HierarchyRequest) ([]*HierarchyNode, error) {
	fields := hierarchyFields(req)

	start, err := r.datastore.GetRecord(ctx, req.Collection, req.RecordID, fields)
	if err != nil {
		return nil, err
	}

	parentID := stringField(start, req.ParentProperty)
	children, err := r.datastore.GetChildRecords(ctx, req.Collection, req.ParentProperty, parentID, fields)
	if err != nil {
		return nil, err
	}

	nodes := []*HierarchyNode{}
	for _, child := range children {
		if child.ID() == start.ID() {
			continue
		}
		nodes = append(nodes, newNode(child, 0, req.Properties))
	}
	return nodes, nil
}

// rootPath reverses the ancestors walk into root-to-node order, with the
// starting record last, and materializes the ordered id list.
func (r *Resolver) rootPath(ctx context.Context, req *HierarchyRequest, maxDepth int) ([]*HierarchyNode, []string, int, error) {
	start, ancestors, _, err := r.walkUp(ctx, req, maxDepth)
	if err != nil {
		return nil, nil, 0, err
	}

	nodes := make([]*HierarchyNode, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		nodes = append(nodes, ancestors[i])
	}
	nodes = append(nodes, newNode(start, 0, req.Properties))

	path := make([]string, len(nodes))
	for i, node := range nodes {
		node.Depth = i
		path[i] = node.ID
	}

	return nodes, path, len(nodes) - 1, nil
}

func hierarchyFields(req *HierarchyRequest) []string {
	fields := []string{req.ParentProperty}
	return append(fields, req.Properties...)
}

func newNode(record storage.Record, depth int, props []string) *HierarchyNode {
	node := &HierarchyNode{ID: record.ID(), Depth: depth}
	if len(props) > 0 {
		node.Properties = record.Select(props)
	}
	return node
}

func stringField(record storage.Record, field string) string {
	if v, ok := record[field].(string); ok {
		return v
	}
	return ""
}
