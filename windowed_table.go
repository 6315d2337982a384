package windstream

import (
	"context"
	"fmt"
	"time"

	"github.com/calluna/windstream/serde"
	"golang.org/x/exp/slices"
)

const sinkName = "STREAM-SINK-"

// WindowedTable is the result of a windowed aggregation: a continuously
// updated table with one cell per (key, window). Each input record updates
// its cells and emits the new aggregate downstream.
type WindowedTable[K, V any] struct {
	tb       *TopologyBuilder
	registry *storeRegistry

	storeName string
	nodeName  string
	queryable bool

	keySerde   serde.Serde[K]
	valueSerde serde.Serde[V]
}

// Name returns the name of the table's backing store.
func (t *WindowedTable[K, V]) Name() string { return t.storeName }

// Queryable reports whether the table can be queried through Get and
// Fetch. Tables backed by generated store names are not queryable.
func (t *WindowedTable[K, V]) Queryable() bool { return t.queryable }

func (t *WindowedTable[K, V]) partitionStore(p Store) (*WindowedKeyValueStore[K, V], bool) {
	s, ok := p.(*WindowedKeyValueStore[K, V])
	return s, ok
}

// Get returns the aggregate of one (key, window start) cell, searching all
// live partitions of the store. The second return value reports whether the
// cell exists.
func (t *WindowedTable[K, V]) Get(ctx context.Context, k K, windowStart time.Time) (V, bool, error) {
	var zero V
	if !t.queryable {
		return zero, false, fmt.Errorf("%w: %s", ErrNotQueryable, t.storeName)
	}

	var (
		result V
		found  bool
		qerr   error
	)
	t.registry.each(t.storeName, func(partition int32, store Store) bool {
		s, ok := t.partitionStore(store)
		if !ok {
			qerr = fmt.Errorf("store %s partition %d has unexpected type %T", t.storeName, partition, store)
			return false
		}
		v, ok, err := s.Get(ctx, k, windowStart)
		if err != nil {
			qerr = err
			return false
		}
		if ok {
			result, found = v, true
			return false
		}
		return true
	})
	if qerr != nil {
		return zero, false, qerr
	}
	return result, found, nil
}

// Fetch returns all cells of the key whose window start lies in [from, to],
// across all live partitions, ordered by window start.
func (t *WindowedTable[K, V]) Fetch(ctx context.Context, k K, from, to time.Time) ([]WindowedValue[V], error) {
	if !t.queryable {
		return nil, fmt.Errorf("%w: %s", ErrNotQueryable, t.storeName)
	}

	var (
		result []WindowedValue[V]
		qerr   error
	)
	t.registry.each(t.storeName, func(partition int32, store Store) bool {
		s, ok := t.partitionStore(store)
		if !ok {
			qerr = fmt.Errorf("store %s partition %d has unexpected type %T", t.storeName, partition, store)
			return false
		}
		values, err := s.Fetch(ctx, k, from, to)
		if err != nil {
			qerr = err
			return false
		}
		result = append(result, values...)
		return true
	})
	if qerr != nil {
		return nil, qerr
	}

	slices.SortFunc(result, func(a, b WindowedValue[V]) int {
		return a.Start.Compare(b.Start)
	})
	return result, nil
}

// To streams every aggregate update to the given topic. Keys are written
// with the window key codec, so downstream consumers can recover both the
// record key and the window start.
func (t *WindowedTable[K, V]) To(topic string) error {
	name := t.tb.NextName(sinkName)
	return RegisterSink(
		t.tb,
		name,
		topic,
		WindowKeySerializer(t.keySerde.Serializer),
		t.valueSerde.Serializer,
		t.nodeName,
	)
}
