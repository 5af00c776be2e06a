package resolver

import (
	"fmt"
	"strings"
)

// Aggregation selects the rollup aggregation function.
type Aggregation string

const (
	// AggregationSum sums numeric values; non-numeric entries are ignored.
	AggregationSum Aggregation = "SUM"

	// AggregationAvg is the mean of numeric values, 0 if there are none.
	AggregationAvg Aggregation = "AVG"

	// AggregationCount counts numeric values.
	AggregationCount Aggregation = "COUNT"

	// AggregationCountA counts values that are not null or empty-string.
	AggregationCountA Aggregation = "COUNTA"

	// AggregationCountAll counts all values including nulls.
	AggregationCountAll Aggregation = "COUNTALL"

	// AggregationMin is the minimum numeric value, nil if there are none.
	AggregationMin Aggregation = "MIN"

	// AggregationMax is the maximum numeric value, nil if there are none.
	AggregationMax Aggregation = "MAX"

	// AggregationFirst is the first element of the raw value list, nil if empty.
	AggregationFirst Aggregation = "FIRST"

	// AggregationLast is the last element of the raw value list, nil if empty.
	AggregationLast Aggregation = "LAST"

	// AggregationConcat comma-joins the string form of all non-null values.
	AggregationConcat Aggregation = "CONCAT"

	// AggregationConcatUnique comma-joins de-duplicated non-null values.
	AggregationConcatUnique Aggregation = "CONCAT_UNIQUE"
)

// Valid reports whether a names a supported aggregation function.
func (a Aggregation) Valid() bool {
	switch a {
	case AggregationSum, AggregationAvg, AggregationCount, AggregationCountA,
		AggregationCountAll, AggregationMin, AggregationMax, AggregationFirst,
		AggregationLast, AggregationConcat, AggregationConcatUnique:
		return true
	}
	return false
}

// aggregate applies fn to the raw list of fetched values and returns the
// aggregated value plus the count of values that contributed to it.
func aggregate(fn Aggregation, values []any) (any, int, error) {
	switch fn {
	case AggregationSum:
		nums := numericValues(values)
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return sum, len(nums), nil

	case AggregationAvg:
		nums := numericValues(values)
		if len(nums) == 0 {
			return 0.0, 0, nil
		}
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums)), len(nums), nil

	case AggregationCount:
		nums := numericValues(values)
		return float64(len(nums)), len(nums), nil

	case AggregationCountA:
		count := 0
		for _, v := range values {
			if v != nil && v != "" {
				count++
			}
		}
		return float64(count), count, nil

	case AggregationCountAll:
		return float64(len(values)), len(values), nil

	case AggregationMin:
		nums := numericValues(values)
		if len(nums) == 0 {
			return nil, 0, nil
		}
		min := nums[0]
		for _, n := range nums[1:] {
			if n < min {
				min = n
			}
		}
		return min, len(nums), nil

	case AggregationMax:
		nums := numericValues(values)
		if len(nums) == 0 {
			return nil, 0, nil
		}
		max := nums[0]
		for _, n := range nums[1:] {
			if n > max {
				max = n
			}
		}
		return max, len(nums), nil

	case AggregationFirst:
		if len(values) == 0 {
			return nil, 0, nil
		}
		return values[0], 1, nil

	case AggregationLast:
		if len(values) == 0 {
			return nil, 0, nil
		}
		return values[len(values)-1], 1, nil

	case AggregationConcat:
		parts := stringValues(values)
		return strings.Join(parts, ", "), len(parts), nil

	case AggregationConcatUnique:
		parts := stringValues(values)
		seen := map[string]bool{}
		unique := parts[:0]
		for _, p := range parts {
			if !seen[p] {
				seen[p] = true
				unique = append(unique, p)
			}
		}
		return strings.Join(unique, ", "), len(unique), nil
	}

	return nil, 0, fmt.Errorf("unsupported aggregation %q", fn)
}

// numericValues filters the raw list down to its numeric members.
func numericValues(values []any) []float64 {
	var nums []float64
	for _, v := range values {
		if n, ok := asNumber(v); ok {
			nums = append(nums, n)
		}
	}
	return nums
}

// stringValues is the comma-join input: the string form of all non-null values.
func stringValues(values []any) []string {
	var parts []string
	for _, v := range values {
		if v == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return parts
}

func asNumber(v any) (float64, bool) {
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
