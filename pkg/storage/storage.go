// Package storage contains the record storage interfaces the resolution
// engine consumes, and shared query types.
package storage

import (
	"context"
	"errors"
)

const (
	// IDField is the conventional primary key field of a record.
	IDField = "id"

	// DefaultPageSize bounds Query results when no explicit limit is given.
	DefaultPageSize = 50
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCollectionNotFound is returned when a collection has no records and
	// is unknown to the datastore.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Record is a single stored record. Values are the decoded JSON-ish scalar
// types: string, float64, bool, nil, or slices thereof for multi-value fields.
type Record map[string]any

// ID returns the record's primary key, or the empty string.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Select returns a copy of the record limited to the given fields. The primary
// key is always retained. A nil or empty field list selects everything.
func (r Record) Select(fields []string) Record {
	if len(fields) == 0 {
		out := make(Record, len(r))
		for k, v := range r {
			out[k] = v
		}
		return out
	}

	out := make(Record, len(fields)+1)
	if id, ok := r[IDField]; ok {
		out[IDField] = id
	}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// ConditionOp enumerates the comparison operators of a query condition.
type ConditionOp string

const (
	OpEqual    ConditionOp = "eq"
	OpNotEqual ConditionOp = "neq"
	OpIn       ConditionOp = "in"
	OpIsNull   ConditionOp = "null"
	OpNotNull  ConditionOp = "notnull"
)

// Condition is a single field comparison.
type Condition struct {
	Field string
	Op    ConditionOp
	Value any
}

// SortKey orders query results by one field.
type SortKey struct {
	Field      string
	Descending bool
}

// QueryOptions shape a generic filtered, sorted, paginated query.
type QueryOptions struct {
	Conditions []Condition
	Sort       []SortKey
	Fields     []string
	Limit      int
	Offset     int
}

// RecordDatastore is the data capability consumed by the resolver. It is a
// pure request/response contract: no streaming and no persistent connection is
// assumed, and implementations own their own timeouts.
type RecordDatastore interface {
	// GetRecord fetches one record by id, optionally limited to the given fields.
	// Returns ErrNotFound if the record does not exist.
	GetRecord(ctx context.Context, collection, id string, fields []string) (Record, error)

	// GetRecords fetches several records by id. Missing ids are skipped, not errors.
	GetRecords(ctx context.Context, collection string, ids []string, fields []string) ([]Record, error)

	// Query runs a generic filtered, sorted, paginated query.
	Query(ctx context.Context, collection string, opts QueryOptions) ([]Record, error)

	// GetRecordsByFieldValues fetches records where field matches one of values.
	GetRecordsByFieldValues(ctx context.Context, collection, field string, values []string, fields []string) ([]Record, error)

	// GetRelatedRecords follows the named reference field of the given record
	// and fetches the records it points at.
	GetRelatedRecords(ctx context.Context, collection, recordID, referenceField string, fields []string) ([]Record, error)

	// GetChildRecords fetches records whose parentField equals parentID. An
	// empty parentID selects root records (null parent).
	GetChildRecords(ctx context.Context, collection, parentField, parentID string, fields []string) ([]Record, error)

	// CountRecords counts records matching all conditions.
	CountRecords(ctx context.Context, collection string, conditions []Condition) (int, error)
}
