// Package memory provides an ephemeral memory-backed implementation of
// [storage.RecordDatastore]. Instances may be safely shared by multiple
// goroutines.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/gridbase/gridbase/pkg/schema"
	"github.com/gridbase/gridbase/pkg/storage"
)

var tracer = otel.Tracer("gridbase/pkg/storage/memory")

// StorageOption configures a [Datastore] instance.
type StorageOption func(*Datastore)

// WithSchemaProvider lets GetRelatedRecords resolve the target collection of a
// reference field. Without it, references are assumed self-referential.
func WithSchemaProvider(p schema.Provider) StorageOption {
	return func(d *Datastore) {
		d.schema = p
	}
}

// Datastore keeps every record in process memory, keyed by collection and id.
type Datastore struct {
	mu          sync.RWMutex
	collections map[string]map[string]storage.Record
	schema      schema.Provider
}

var _ storage.RecordDatastore = (*Datastore)(nil)

// New creates a new empty [Datastore].
func New(opts ...StorageOption) *Datastore {
	d := &Datastore{
		collections: map[string]map[string]storage.Record{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PutRecord inserts or replaces a record. A record without an id is assigned a
// fresh ULID. The stored copy is returned.
func (d *Datastore) PutRecord(ctx context.Context, collection string, record storage.Record) (storage.Record, error) {
	_, span := tracer.Start(ctx, "memory.PutRecord")
	defer span.End()

	stored := record.Select(nil)
	if stored.ID() == "" {
		stored[storage.IDField] = strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.collections[collection] == nil {
		d.collections[collection] = map[string]storage.Record{}
	}
	d.collections[collection][stored.ID()] = stored
	return stored.Select(nil), nil
}

// DeleteRecord removes a record by id. Deleting an absent record returns
// [storage.ErrNotFound].
func (d *Datastore) DeleteRecord(ctx context.Context, collection, id string) error {
	_, span := tracer.Start(ctx, "memory.DeleteRecord")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	records, ok := d.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q: %w", collection, storage.ErrCollectionNotFound)
	}
	if _, ok := records[id]; !ok {
		return fmt.Errorf("record %q: %w", id, storage.ErrNotFound)
	}
	delete(records, id)
	return nil
}

func (d *Datastore) GetRecord(ctx context.Context, collection, id string, fields []string) (storage.Record, error) {
	_, span := tracer.Start(ctx, "memory.GetRecord")
	defer span.End()

	d.mu.RLock()
	defer d.mu.RUnlock()

	records, ok := d.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, storage.ErrCollectionNotFound)
	}
	record, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, storage.ErrNotFound)
	}
	return record.Select(fields), nil
}

func (d *Datastore) GetRecords(ctx context.Context, collection string, ids []string, fields []string) ([]storage.Record, error) {
	_, span := tracer.Start(ctx, "memory.GetRecords")
	defer span.End()

	d.mu.RLock()
	defer d.mu.RUnlock()

	records, ok := d.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, storage.ErrCollectionNotFound)
	}

	// Missing ids are skipped so that a dangling reference does not fail the
	// whole fetch.
	out := make([]storage.Record, 0, len(ids))
	for _, id := range ids {
		if record, ok := records[id]; ok {
			out = append(out, record.Select(fields))
		}
	}
	return out, nil
}

func (d *Datastore) Query(ctx context.Context, collection string, opts storage.QueryOptions) ([]storage.Record, error) {
	_, span := tracer.Start(ctx, "memory.Query")
	defer span.End()

	matched, err := d.matching(collection, opts.Conditions)
	if err != nil {
		return nil, err
	}

	sortRecords(matched, opts.Sort)

	offset := opts.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultPageSize
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]storage.Record, 0, len(matched))
	for _, record := range matched {
		out = append(out, record.Select(opts.Fields))
	}
	return out, nil
}

func (d *Datastore) GetRecordsByFieldValues(ctx context.Context, collection, field string, values []string, fields []string) ([]storage.Record, error) {
	_, span := tracer.Start(ctx, "memory.GetRecordsByFieldValues")
	defer span.End()

	matched, err := d.matching(collection, []storage.Condition{
		{Field: field, Op: storage.OpIn, Value: values},
	})
	if err != nil {
		return nil, err
	}

	sortRecords(matched, nil)

	out := make([]storage.Record, 0, len(matched))
	for _, record := range matched {
		out = append(out, record.Select(fields))
	}
	return out, nil
}

func (d *Datastore) GetRelatedRecords(ctx context.Context, collection, recordID, referenceField string, fields []string) ([]storage.Record, error) {
	ctx, span := tracer.Start(ctx, "memory.GetRelatedRecords")
	defer span.End()

	record, err := d.GetRecord(ctx, collection, recordID, []string{referenceField})
	if err != nil {
		return nil, err
	}

	target := collection
	if d.schema != nil {
		ref, err := d.schema.GetReferenceTarget(ctx, collection, referenceField)
		if err != nil {
			return nil, err
		}
		target = ref.TargetCollection
	}

	return d.GetRecords(ctx, target, referenceIDs(record[referenceField]), fields)
}

func (d *Datastore) GetChildRecords(ctx context.Context, collection, parentField, parentID string, fields []string) ([]storage.Record, error) {
	_, span := tracer.Start(ctx, "memory.GetChildRecords")
	defer span.End()

	conditions := []storage.Condition{
		{Field: parentField, Op: storage.OpEqual, Value: parentID},
	}
	if parentID == "" {
		conditions = []storage.Condition{
			{Field: parentField, Op: storage.OpIsNull},
		}
	}

	matched, err := d.matching(collection, conditions)
	if err != nil {
		return nil, err
	}

	sortRecords(matched, nil)

	out := make([]storage.Record, 0, len(matched))
	for _, record := range matched {
		out = append(out, record.Select(fields))
	}
	return out, nil
}

func (d *Datastore) CountRecords(ctx context.Context, collection string, conditions []storage.Condition) (int, error) {
	_, span := tracer.Start(ctx, "memory.CountRecords")
	defer span.End()

	matched, err := d.matching(collection, conditions)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (d *Datastore) matching(collection string, conditions []storage.Condition) ([]storage.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	records, ok := d.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, storage.ErrCollectionNotFound)
	}

	var matched []storage.Record
	for _, record := range records {
		if matchesAll(record, conditions) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// matchesAll returns true if the record satisfies every condition.
func matchesAll(record storage.Record, conditions []storage.Condition) bool {
	for _, c := range conditions {
		value, present := record[c.Field]

		switch c.Op {
		case storage.OpEqual:
			if !valueEqual(value, c.Value) {
				return false
			}
		case storage.OpNotEqual:
			if valueEqual(value, c.Value) {
				return false
			}
		case storage.OpIn:
			values, _ := c.Value.([]string)
			found := false
			for _, candidate := range values {
				if valueEqual(value, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case storage.OpIsNull:
			if present && value != nil && value != "" {
				return false
			}
		case storage.OpNotNull:
			if !present || value == nil || value == "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// valueEqual compares a stored value against a condition value, normalizing
// numeric representations so that int and float64 forms of the same number
// compare equal.
func valueEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// referenceIDs coerces a reference field value into a list of ids.
func referenceIDs(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// sortRecords orders records by the given keys, falling back to id order so
// that results are deterministic.
func sortRecords(records []storage.Record, sortKeys []storage.SortKey) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range sortKeys {
			cmp := compareValues(records[i][key.Field], records[j][key.Field])
			if cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return records[i].ID() < records[j].ID()
	})
}

func compareValues(a, b any) int {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}
