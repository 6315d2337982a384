package windstream

import (
	"github.com/calluna/windstream/serde"
)

// Operation name prefixes. Generated node and store names are built from
// these plus the builder's shared sequence number.
const (
	aggregateName = "STREAM-AGGREGATE-"
	reduceName    = "STREAM-REDUCE-"
)

// Initializer produces the starting accumulator for a new (key, window)
// cell.
type Initializer[VR any] func() VR

// Aggregator folds one record into the accumulator of its cell.
type Aggregator[K, V, VR any] func(k K, v V, acc VR) VR

// Reducer combines the cell's current value with a new record of the same
// type.
type Reducer[V any] func(acc, v V) V

// Count counts records per key and window, materialized into a generated
// store.
func Count[K, V any](ws *TimeWindowedStream[K, V]) (*WindowedTable[K, int64], error) {
	return CountWith(ws, MaterializedWith[K, int64](ws.keySerde, serde.Int64))
}

// CountWith counts records per key and window with explicit
// materialization.
func CountWith[K, V any](ws *TimeWindowedStream[K, V], mat *Materialized[K, int64]) (*WindowedTable[K, int64], error) {
	if mat == nil {
		return nil, &NilArgumentError{Name: "materialized"}
	}

	// Earlier releases allocated a store name at this point even though
	// the operation below generates its own. Keep consuming one so that
	// names generated later in a topology don't shift for existing
	// applications.
	if mat.storeName == "" && mat.supplier == nil {
		_ = ws.tb.NextStoreName(aggregateName)
	}

	if mat.valueSerde.IsZero() {
		mat.valueSerde = serde.Int64
	}

	count := func(k K, v V, acc int64, found bool) int64 {
		if !found {
			return 1
		}
		return acc + 1
	}
	return buildWindowedTable(ws, aggregateName, mat, count)
}

// Aggregate folds records per key and window into an accumulator of a
// possibly different type, materialized into a generated store. The
// accumulator is stored with the JSON serde; use AggregateWith to choose
// another one.
func Aggregate[K, V, VR any](ws *TimeWindowedStream[K, V], init Initializer[VR], agg Aggregator[K, V, VR]) (*WindowedTable[K, VR], error) {
	return AggregateWith(ws, init, agg, MaterializedWith[K, VR](ws.keySerde, serde.JSON[VR]()))
}

// AggregateWith folds records per key and window with explicit
// materialization.
func AggregateWith[K, V, VR any](
	ws *TimeWindowedStream[K, V],
	init Initializer[VR],
	agg Aggregator[K, V, VR],
	mat *Materialized[K, VR],
) (*WindowedTable[K, VR], error) {
	if init == nil {
		return nil, &NilArgumentError{Name: "initializer"}
	}
	if agg == nil {
		return nil, &NilArgumentError{Name: "aggregator"}
	}
	if mat == nil {
		return nil, &NilArgumentError{Name: "materialized"}
	}

	aggregate := func(k K, v V, acc VR, found bool) VR {
		if !found {
			acc = init()
		}
		return agg(k, v, acc)
	}
	return buildWindowedTable(ws, aggregateName, mat, aggregate)
}

// Reduce combines records per key and window with a reducer of the record's
// own type, materialized into a generated store. The first record of a cell
// becomes the cell's value as-is.
func Reduce[K, V any](ws *TimeWindowedStream[K, V], reducer Reducer[V]) (*WindowedTable[K, V], error) {
	return ReduceWith(ws, reducer, MaterializedWith(ws.keySerde, ws.valueSerde))
}

// ReduceWith combines records per key and window with explicit
// materialization.
func ReduceWith[K, V any](ws *TimeWindowedStream[K, V], reducer Reducer[V], mat *Materialized[K, V]) (*WindowedTable[K, V], error) {
	if reducer == nil {
		return nil, &NilArgumentError{Name: "reducer"}
	}
	if mat == nil {
		return nil, &NilArgumentError{Name: "materialized"}
	}

	if mat.valueSerde.IsZero() {
		mat.valueSerde = ws.valueSerde
	}

	reduce := func(k K, v V, acc V, found bool) V {
		if !found {
			return v
		}
		return reducer(acc, v)
	}
	return buildWindowedTable(ws, reduceName, mat, reduce)
}
