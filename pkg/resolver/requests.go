package resolver

import (
	"errors"
	"time"

	"github.com/gridbase/gridbase/pkg/storage"
)

// ResolutionResult is the envelope shared by every resolution outcome.
// Resolution operations never raise: failures are reported through a false
// Success flag and an Error message so that callers can treat every resolution
// as a normal, possibly failed, result.
type ResolutionResult struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	FromCache bool      `json:"fromCache"`
	Timestamp time.Time `json:"timestamp"`
}

// LookupRequest asks for the value of one property on the record(s) referenced
// by another record.
type LookupRequest struct {
	// SourceCollection is the collection holding the referenced record(s).
	SourceCollection string

	// ReferenceProperty is the name of the reference property on the
	// referencing record.
	ReferenceProperty string

	// SourceProperty is the property to fetch from the referenced record.
	SourceProperty string

	// RecordID is the id of the referencing record.
	RecordID string

	// ReferenceValues holds the reference value: one id, or several for a
	// multi-reference. A multi-reference resolves to an array aligned to this
	// input order.
	ReferenceValues []string
}

// LookupResult carries a single value, or an aligned array for a
// multi-reference. A reference with no target resolves to a nil Value with
// Success still true: absence of a reference target is not an error.
type LookupResult struct {
	ResolutionResult
	Value any `json:"value"`
}

// RollupRequest asks for an aggregation of one property across all records
// that reference the current record.
type RollupRequest struct {
	// SourceCollection is the collection holding the related records.
	SourceCollection string

	// ReferenceProperty is the property on the related records that points
	// back at the current record.
	ReferenceProperty string

	// SourceProperty is the property to aggregate.
	SourceProperty string

	// Aggregation selects the aggregation function.
	Aggregation Aggregation

	// RecordID is the id of the current record.
	RecordID string

	// Filter is an optional `field = 'value'` expression applied to the
	// related records before aggregating.
	Filter string
}

// RollupResult carries the aggregated value and the count of values that
// contributed to it.
type RollupResult struct {
	ResolutionResult
	Value any `json:"value"`
	Count int `json:"count"`
}

// Direction selects how a hierarchy is traversed from the starting record.
type Direction string

const (
	DirectionAncestors   Direction = "ancestors"
	DirectionDescendants Direction = "descendants"
	DirectionSiblings    Direction = "siblings"
	DirectionPath        Direction = "path"
)

// Valid reports whether d is one of the supported traversal directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionAncestors, DirectionDescendants, DirectionSiblings, DirectionPath:
		return true
	}
	return false
}

// HierarchyRequest asks for a traversal of a self-referential parent/child
// relationship within one collection.
type HierarchyRequest struct {
	Collection string

	// ParentProperty is the self-referential parent-pointer property.
	ParentProperty string

	// RecordID is the starting record.
	RecordID string

	Direction Direction

	// MaxDepth bounds the traversal; 0 means the resolver's configured
	// default.
	MaxDepth int

	// Properties optionally lists properties to include on returned nodes.
	Properties []string
}

// HierarchyNode is one node of a traversal result. Nodes are built freshly per
// call; Children is populated only for descendants traversals.
type HierarchyNode struct {
	ID         string           `json:"id"`
	Depth      int              `json:"depth"`
	Properties storage.Record   `json:"properties,omitempty"`
	Children   []*HierarchyNode `json:"children,omitempty"`
}

// HierarchyResult carries the traversal nodes, the materialized root-to-node
// id list for path queries, and the maximum depth reached.
type HierarchyResult struct {
	ResolutionResult
	Nodes []*HierarchyNode `json:"nodes"`
	Path  []string         `json:"path,omitempty"`
	Depth int              `json:"depth"`
}

// BatchItemKind discriminates the members of the batch request union.
type BatchItemKind string

const (
	KindUnknown   BatchItemKind = ""
	KindLookup    BatchItemKind = "lookup"
	KindRollup    BatchItemKind = "rollup"
	KindHierarchy BatchItemKind = "hierarchy"
)

// BatchItem is a tagged union over the three request kinds. Kind may be left
// unset, in which case it is derived once from which request is populated.
type BatchItem struct {
	Kind      BatchItemKind
	Lookup    *LookupRequest
	Rollup    *RollupRequest
	Hierarchy *HierarchyRequest
}

// ErrAmbiguousBatchItem is returned when a batch item does not populate
// exactly one request, or its Kind tag contradicts the populated request.
var ErrAmbiguousBatchItem = errors.New("batch item must populate exactly one request matching its kind")

// ClassifyItem resolves the discriminant of a batch item exactly once, at the
// API boundary. It validates that exactly one request is populated and that an
// explicit Kind tag matches it.
func ClassifyItem(item BatchItem) (BatchItemKind, error) {
	var kind BatchItemKind
	populated := 0

	if item.Lookup != nil {
		kind = KindLookup
		populated++
	}
	if item.Rollup != nil {
		kind = KindRollup
		populated++
	}
	if item.Hierarchy != nil {
		kind = KindHierarchy
		populated++
	}

	if populated != 1 {
		return KindUnknown, ErrAmbiguousBatchItem
	}
	if item.Kind != KindUnknown && item.Kind != kind {
		return KindUnknown, ErrAmbiguousBatchItem
	}
	return kind, nil
}

// BatchRequest is an ordered list of mixed resolution requests.
type BatchRequest struct {
	Items []BatchItem
}

// BatchItemResult mirrors the union of the batch item it answers.
type BatchItemResult struct {
	Kind      BatchItemKind
	Lookup    *LookupResult
	Rollup    *RollupResult
	Hierarchy *HierarchyResult
}

// envelope returns the shared result envelope of whichever member is set.
func (r *BatchItemResult) envelope() *ResolutionResult {
	switch {
	case r.Lookup != nil:
		return &r.Lookup.ResolutionResult
	case r.Rollup != nil:
		return &r.Rollup.ResolutionResult
	case r.Hierarchy != nil:
		return &r.Hierarchy.ResolutionResult
	}
	return nil
}

// BatchResult reports overall success only if no sub-request failed. Errors
// collects the error messages of failed sub-requests in input order.
type BatchResult struct {
	Success   bool
	Errors    []string
	Results   []BatchItemResult
	Timestamp time.Time
}
