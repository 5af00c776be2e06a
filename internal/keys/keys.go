// Package keys builds the cache keys that identify resolution requests.
//
// Keys are structured strings rather than opaque hashes so that the cache can
// invalidate by collection or record prefix. Key generation must be
// deterministic and collision-free for distinct logical relationships: two
// requests that resolve the same relationship always produce the same key.
package keys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// LookupPrefix namespaces keys for cross-record field lookups.
	LookupPrefix = "lookup"

	// RollupPrefix namespaces keys for aggregations over related-record sets.
	RollupPrefix = "rollup"

	// HierarchyPrefix namespaces keys for parent/child tree traversals.
	HierarchyPrefix = "hierarchy"
)

// LookupKey combines the referenced collection, the reference property, the
// stringified reference value(s) and the property fetched from the referenced
// record. Multi-reference values are joined in input order so that the key
// stays aligned with the result array.
func LookupKey(collection, referenceProperty string, referenceValues []string, sourceProperty string) string {
	return strings.Join([]string{
		LookupPrefix,
		collection,
		referenceProperty,
		strings.Join(referenceValues, ","),
		sourceProperty,
	}, ":")
}

// RollupKey adds the anchoring record id and the aggregation function to the
// relationship identity, plus the optional filter expression since it changes
// the aggregated result.
func RollupKey(collection, referenceProperty, recordID, sourceProperty, aggregation, filter string) string {
	key := strings.Join([]string{
		RollupPrefix,
		collection,
		referenceProperty,
		recordID,
		sourceProperty,
		aggregation,
	}, ":")

	if filter != "" {
		key += ":f=" + filter
	}
	return key
}

// HierarchyKey combines the collection, starting record, traversal direction
// and depth bound.
func HierarchyKey(collection, recordID, direction string, maxDepth int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", HierarchyPrefix, collection, recordID, direction, maxDepth)
}

// Fingerprint reduces a structured cache key to a stable decimal-form xxhash,
// used where a compact identity is needed (request coalescing) rather than a
// pattern-matchable key.
func Fingerprint(key string) string {
	hasher := xxhash.New()
	_, _ = hasher.WriteString(key)
	return strconv.FormatUint(hasher.Sum64(), 10)
}
