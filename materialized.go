package windstream

import (
	"time"

	"github.com/calluna/windstream/serde"
)

// WindowStoreSupplier lets a caller bring their own window store. When a
// supplier is set on Materialized, the store parameters below are taken
// verbatim and the retention bound is not validated here; the supplier
// author is responsible for it.
type WindowStoreSupplier interface {
	Name() string
	RetentionPeriod() time.Duration
	WindowSize() time.Duration
	SegmentInterval() time.Duration
	RetainDuplicates() bool

	// Backend opens the byte-level store for one partition.
	Backend(name string, partition int32) (StoreBackend, error)
}

// Materialized describes how the state behind a windowed aggregation is
// stored. Callers typically fill only a few fields; the aggregation
// operations fill the rest from stream-level defaults before resolution.
type Materialized[K, V any] struct {
	storeName  string
	keySerde   serde.Serde[K]
	valueSerde serde.Serde[V]

	retention    time.Duration
	retentionSet bool

	supplier WindowStoreSupplier
	backend  BackendBuilder

	loggingEnabled bool
	logConfig      map[string]string
	cachingEnabled bool

	queryable bool
}

// MaterializedAs names the store explicitly, which also makes the resulting
// table queryable under that name.
func MaterializedAs[K, V any](storeName string) *Materialized[K, V] {
	m := newMaterialized[K, V]()
	m.storeName = storeName
	m.queryable = true
	return m
}

// MaterializedWith sets the serdes and leaves the store name to be
// generated.
func MaterializedWith[K, V any](keySerde serde.Serde[K], valueSerde serde.Serde[V]) *Materialized[K, V] {
	m := newMaterialized[K, V]()
	m.keySerde = keySerde
	m.valueSerde = valueSerde
	return m
}

func newMaterialized[K, V any]() *Materialized[K, V] {
	return &Materialized[K, V]{
		loggingEnabled: true,
		cachingEnabled: true,
	}
}

func (m *Materialized[K, V]) WithKeySerde(s serde.Serde[K]) *Materialized[K, V] {
	m.keySerde = s
	return m
}

func (m *Materialized[K, V]) WithValueSerde(s serde.Serde[V]) *Materialized[K, V] {
	m.valueSerde = s
	return m
}

// WithRetention overrides the windows' own retention configuration with an
// explicitly stated duration.
func (m *Materialized[K, V]) WithRetention(retention time.Duration) *Materialized[K, V] {
	m.retention = retention
	m.retentionSet = true
	return m
}

// WithStoreSupplier makes the given supplier provide the store instead of
// the engine.
func (m *Materialized[K, V]) WithStoreSupplier(s WindowStoreSupplier) *Materialized[K, V] {
	m.supplier = s
	m.queryable = true
	return m
}

// WithBackend overrides the topology's default store backend for this store
// only.
func (m *Materialized[K, V]) WithBackend(b BackendBuilder) *Materialized[K, V] {
	m.backend = b
	return m
}

// WithLoggingEnabled turns on changelog logging with the given topic
// configuration. Logging is on by default; use this to attach topic
// settings such as "retention.ms".
func (m *Materialized[K, V]) WithLoggingEnabled(config map[string]string) *Materialized[K, V] {
	m.loggingEnabled = true
	m.logConfig = config
	return m
}

func (m *Materialized[K, V]) WithLoggingDisabled() *Materialized[K, V] {
	m.loggingEnabled = false
	m.logConfig = nil
	return m
}

func (m *Materialized[K, V]) WithCachingEnabled() *Materialized[K, V] {
	m.cachingEnabled = true
	return m
}

func (m *Materialized[K, V]) WithCachingDisabled() *Materialized[K, V] {
	m.cachingEnabled = false
	return m
}

// StoreName returns the configured store name, empty if one will be
// generated.
func (m *Materialized[K, V]) StoreName() string { return m.storeName }

// Queryable reports whether the table will be queryable by its store name.
// Generated names are an implementation detail and not queryable.
func (m *Materialized[K, V]) Queryable() bool { return m.queryable }
