package windstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calluna/windstream/serde"
)

// Store is the lifecycle interface all state stores implement.
type Store interface {
	Init() error
	Flush(context.Context) error
	Close() error
}

// StoreBackend is the low-level byte-oriented store interface. Backends are
// created per partition and written by a single task goroutine; concurrent
// reads against in-flight writes are the backend's responsibility.
type StoreBackend interface {
	Store
	Set(k, v []byte) error
	// Get returns ErrKeyNotFound for missing keys.
	Get(k []byte) ([]byte, error)
	Delete(k []byte) error
	// Range calls fn for each entry with lower <= key < upper, in key
	// order, until fn returns false.
	Range(lower, upper []byte, fn func(k, v []byte) bool) error
}

// BackendBuilder opens a byte-level store backend for one partition of a
// window store, honoring the store configuration's retention and
// segmentation.
type BackendBuilder func(cfg *WindowStoreConfig, partition int32) (StoreBackend, error)

// ChangelogWriter appends one state change to a store's changelog. A nil
// value is a tombstone.
type ChangelogWriter func(storeName string, key, value []byte) error

// StoreBuilder creates a store instance for one partition. The changelog
// writer is nil when the topology runs without a Kafka client.
type StoreBuilder func(partition int32, changelog ChangelogWriter) (Store, error)

// streamTimeObserver is implemented by backends that evict expired state as
// event time advances.
type streamTimeObserver interface {
	ObserveStreamTime(t time.Time)
}

// WindowedValue is one aggregate cell returned by a range fetch.
type WindowedValue[V any] struct {
	Start time.Time
	Value V
}

// WindowedKeyValueStore is the typed view over a window store backend. Keys
// are (record key, window start) pairs encoded with the window key codec.
type WindowedKeyValueStore[K, V any] struct {
	name    string
	backend StoreBackend

	keySerializer     serde.Serializer[K]
	valueSerializer   serde.Serializer[V]
	valueDeserializer serde.Deserializer[V]
}

func NewWindowedKeyValueStore[K, V any](
	name string,
	backend StoreBackend,
	keySerde serde.Serde[K],
	valueSerde serde.Serde[V],
) *WindowedKeyValueStore[K, V] {
	return &WindowedKeyValueStore[K, V]{
		name:              name,
		backend:           backend,
		keySerializer:     keySerde.Serializer,
		valueSerializer:   valueSerde.Serializer,
		valueDeserializer: valueSerde.Deserializer,
	}
}

func (s *WindowedKeyValueStore[K, V]) Name() string {
	return s.name
}

func (s *WindowedKeyValueStore[K, V]) encodeKey(k K, start time.Time) ([]byte, error) {
	keyBytes, err := s.keySerializer(k)
	if err != nil {
		return nil, fmt.Errorf("serialize key: %w", err)
	}
	return encodeWindowKey(keyBytes, start.UnixMilli())
}

// Set stores the aggregate for one (key, window start) cell.
func (s *WindowedKeyValueStore[K, V]) Set(ctx context.Context, k K, start time.Time, v V) error {
	key, err := s.encodeKey(k, start)
	if err != nil {
		return err
	}
	value, err := s.valueSerializer(v)
	if err != nil {
		return fmt.Errorf("serialize value: %w", err)
	}
	return s.backend.Set(key, value)
}

// Get returns the aggregate for one (key, window start) cell. The second
// return value reports whether the cell exists.
func (s *WindowedKeyValueStore[K, V]) Get(ctx context.Context, k K, start time.Time) (V, bool, error) {
	var v V
	key, err := s.encodeKey(k, start)
	if err != nil {
		return v, false, err
	}

	raw, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return v, false, nil
		}
		return v, false, err
	}

	v, err = s.valueDeserializer(raw)
	if err != nil {
		return v, false, fmt.Errorf("deserialize value: %w", err)
	}
	return v, true, nil
}

// Fetch returns all cells of the key whose window start lies in [from, to],
// ordered by window start.
func (s *WindowedKeyValueStore[K, V]) Fetch(ctx context.Context, k K, from, to time.Time) ([]WindowedValue[V], error) {
	keyBytes, err := s.keySerializer(k)
	if err != nil {
		return nil, fmt.Errorf("serialize key: %w", err)
	}

	lower, err := encodeWindowKey(keyBytes, from.UnixMilli())
	if err != nil {
		return nil, err
	}
	upper, err := encodeWindowKey(keyBytes, to.UnixMilli()+1)
	if err != nil {
		return nil, err
	}

	var result []WindowedValue[V]
	var scanErr error
	err = s.backend.Range(lower, upper, func(rawKey, rawValue []byte) bool {
		startMs, err := windowKeyStart(rawKey)
		if err != nil {
			scanErr = err
			return false
		}
		v, err := s.valueDeserializer(rawValue)
		if err != nil {
			scanErr = fmt.Errorf("deserialize value: %w", err)
			return false
		}
		result = append(result, WindowedValue[V]{Start: time.UnixMilli(startMs).UTC(), Value: v})
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return result, nil
}

// AdvanceStreamTime tells the backend how far event time has progressed so
// it can evict windows past their retention.
func (s *WindowedKeyValueStore[K, V]) AdvanceStreamTime(t time.Time) {
	if o, ok := s.backend.(streamTimeObserver); ok {
		o.ObserveStreamTime(t)
	}
}

func (s *WindowedKeyValueStore[K, V]) Init() error {
	return s.backend.Init()
}

func (s *WindowedKeyValueStore[K, V]) Flush(ctx context.Context) error {
	return s.backend.Flush(ctx)
}

func (s *WindowedKeyValueStore[K, V]) Close() error {
	return s.backend.Close()
}
