package windstream

import (
	"github.com/calluna/windstream/serde"
)

// Stream is a typed handle on a source topic's record stream.
type Stream[K, V any] struct {
	tb   *TopologyBuilder
	name string

	keySerde   serde.Serde[K]
	valueSerde serde.Serde[V]
}

// NewStream registers a source for the topic and returns a stream handle.
// The node is named after the topic.
func NewStream[K, V any](tb *TopologyBuilder, topic string, keySerde serde.Serde[K], valueSerde serde.Serde[V]) (*Stream[K, V], error) {
	if err := RegisterSource(tb, topic, topic, keySerde.Deserializer, valueSerde.Deserializer); err != nil {
		return nil, err
	}
	return &Stream[K, V]{
		tb:         tb,
		name:       topic,
		keySerde:   keySerde,
		valueSerde: valueSerde,
	}, nil
}

// MustNewStream is NewStream, panicking on registration errors.
func MustNewStream[K, V any](tb *TopologyBuilder, topic string, keySerde serde.Serde[K], valueSerde serde.Serde[V]) *Stream[K, V] {
	stream, err := NewStream(tb, topic, keySerde, valueSerde)
	if err != nil {
		panic(err)
	}
	return stream
}

// GroupByKey groups the stream by its current key. The stream is assumed
// to be partitioned by key already; re-keying (repartitioning) is the
// surrounding application's concern.
func (s *Stream[K, V]) GroupByKey() *GroupedStream[K, V] {
	return &GroupedStream[K, V]{
		tb:         s.tb,
		name:       s.name,
		keySerde:   s.keySerde,
		valueSerde: s.valueSerde,
	}
}

// GroupedStream is a keyed stream ready for aggregation.
type GroupedStream[K, V any] struct {
	tb   *TopologyBuilder
	name string

	keySerde   serde.Serde[K]
	valueSerde serde.Serde[V]
}

// WindowedBy buckets the grouped stream into time windows. The returned
// stream's aggregations produce one table cell per (key, window).
func (g *GroupedStream[K, V]) WindowedBy(windows TimeWindows) *TimeWindowedStream[K, V] {
	return &TimeWindowedStream[K, V]{
		tb:         g.tb,
		parent:     g.name,
		windows:    windows,
		keySerde:   g.keySerde,
		valueSerde: g.valueSerde,
	}
}

// TimeWindowedStream is a keyed stream bucketed into time windows.
// Aggregations over it are registered with the package-level Count,
// Aggregate and Reduce functions.
type TimeWindowedStream[K, V any] struct {
	tb     *TopologyBuilder
	parent string

	windows    TimeWindows
	keySerde   serde.Serde[K]
	valueSerde serde.Serde[V]
}
