package colshm

import (
	"cmp"
	"fmt"
	"slices"
)

// Aggregator computes a grouped sum over two decoded columns of equal length.
// The result has the grouping column first and the summed column second,
// each keeping its input name.
type Aggregator interface {
	GroupBySum(keys, values *Column) (*Frame, error)
}

// HashAggregator is the default Aggregator. It groups with a hash map and
// returns groups in ascending key order. NaN keys are dropped.
type HashAggregator struct{}

var _ Aggregator = HashAggregator{}

func (HashAggregator) GroupBySum(keys, values *Column) (*Frame, error) {
	if keys.Len() != values.Len() {
		return nil, fmt.Errorf("group %q by %q: %d keys, %d values", values.Name, keys.Name, keys.Len(), values.Len())
	}
	if !values.Type.Numeric() {
		return nil, &ColumnError{Column: values.Name, Type: values.Type.String(), Err: ErrUnsupportedType}
	}

	var kc, vc Column
	switch keys.Type {
	case Int64:
		kc, vc = groupSumBy(keys.Ints, values)
	case Float64:
		kc, vc = groupSumBy(keys.Floats, values)
	case Utf8:
		kc, vc = groupSumBy(keys.Strings, values)
	default:
		return nil, &ColumnError{Column: keys.Name, Type: keys.Type.String(), Err: ErrUnsupportedType}
	}
	kc.Name, vc.Name = keys.Name, values.Name
	return NewFrame(kc, vc), nil
}

func groupSumBy[K cmp.Ordered](keys []K, values *Column) (Column, Column) {
	if values.Type == Int64 {
		k, v := groupSum(keys, values.Ints)
		return newKeyColumn(k), IntColumn("", v...)
	}
	k, v := groupSum(keys, values.Floats)
	return newKeyColumn(k), FloatColumn("", v...)
}

func groupSum[K cmp.Ordered, V int64 | float64](keys []K, values []V) ([]K, []V) {
	sums := make(map[K]V)
	for i, k := range keys {
		if k != k { // NaN
			continue
		}
		sums[k] += values[i]
	}
	ks := make([]K, 0, len(sums))
	for k := range sums {
		ks = append(ks, k)
	}
	slices.Sort(ks)
	vs := make([]V, len(ks))
	for i, k := range ks {
		vs[i] = sums[k]
	}
	return ks, vs
}

func newKeyColumn[K cmp.Ordered](keys []K) Column {
	switch k := any(keys).(type) {
	case []int64:
		return IntColumn("", k...)
	case []float64:
		return FloatColumn("", k...)
	case []string:
		return StringColumn("", k...)
	default:
		panic(fmt.Sprintf("unexpected key type %T", keys))
	}
}
