package windstream

import (
	"fmt"
	"strconv"

	"github.com/calluna/windstream/serde"
	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/exp/maps"
)

// TopologyBuilder collects sources, processors, sinks and stores, and owns
// the naming sequence for generated node and store names.
//
// A builder is not safe for concurrent use: all registration happens from a
// single goroutine during topology construction. The built Topology is
// immutable.
type TopologyBuilder struct {
	processors map[string]*TopologyProcessor
	stores     map[string]*TopologyStore

	// Key = topic
	sources map[string]*TopologySource
	sinks   map[string]*TopologySink

	nameIndex      uint64
	defaultBackend BackendBuilder
	log            logr.Logger

	registry *storeRegistry
}

// BuilderOption configures a TopologyBuilder.
type BuilderOption func(*TopologyBuilder)

// WithDefaultBackend sets the store backend used for generated window
// stores that don't bring their own. Defaults to the in-memory backend.
func WithDefaultBackend(b BackendBuilder) BuilderOption {
	return func(tb *TopologyBuilder) {
		tb.defaultBackend = b
	}
}

// WithLogger sets the logger used by processors built from this topology.
func WithLogger(log logr.Logger) BuilderOption {
	return func(tb *TopologyBuilder) {
		tb.log = log
	}
}

func NewTopologyBuilder(opts ...BuilderOption) *TopologyBuilder {
	tb := &TopologyBuilder{
		processors:     map[string]*TopologyProcessor{},
		stores:         map[string]*TopologyStore{},
		sources:        map[string]*TopologySource{},
		sinks:          map[string]*TopologySink{},
		defaultBackend: NewMemoryBackend,
		log:            logr.Discard(),
		registry:       newStoreRegistry(),
	}
	for _, opt := range opts {
		opt(tb)
	}
	return tb
}

// NextName allocates the next generated name for the given prefix. The
// sequence is shared across all prefixes and monotonically increasing, so
// generated names are deterministic for a given sequence of builder calls
// and stable across rebuilds of the same topology.
func (tb *TopologyBuilder) NextName(prefix string) string {
	tb.nameIndex++
	return fmt.Sprintf("%s%010d", prefix, tb.nameIndex)
}

// NextStoreName allocates a generated store name for the given operation
// prefix.
func (tb *TopologyBuilder) NextStoreName(prefix string) string {
	return tb.NextName(prefix + "STATE-STORE-")
}

type TopologyStore struct {
	Name           string
	Build          StoreBuilder
	LoggingEnabled bool
	LogConfig      map[string]string
}

type TopologySink struct {
	Name    string
	Topic   string
	Builder func(client *kgo.Client) (any, error)
}

type TopologyProcessor struct {
	Name           string
	Build          func(stores map[string]Store, clock *recordClock) (Node, error)
	AddChildFunc   func(parent, child any, childName string) error
	ChildNodeNames []string
	StoreNames     []string
}

type TopologySource struct {
	Name           string
	Topic          string
	Build          func(clock *recordClock) RecordProcessor
	AddChildFunc   func(parent, child any, childName string) error
	ChildNodeNames []string
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func MustRegisterSource[K, V any](tb *TopologyBuilder, name, topic string, keyDeserializer serde.Deserializer[K], valueDeserializer serde.Deserializer[V]) {
	must(RegisterSource(tb, name, topic, keyDeserializer, valueDeserializer))
}

func RegisterSource[K, V any](tb *TopologyBuilder, name, topic string, keyDeserializer serde.Deserializer[K], valueDeserializer serde.Deserializer[V]) error {
	if _, found := tb.sources[topic]; found {
		return fmt.Errorf("%w: source for topic %s", ErrNodeAlreadyExists, topic)
	}

	tb.sources[topic] = &TopologySource{
		Name:  name,
		Topic: topic,
		Build: func(clock *recordClock) RecordProcessor {
			return &SourceNode[K, V]{
				KeyDeserializer:   keyDeserializer,
				ValueDeserializer: valueDeserializer,
				clock:             clock,
			}
		},
		AddChildFunc: func(parent, child any, childName string) error {
			parentNode, ok := parent.(*SourceNode[K, V])
			if !ok {
				return fmt.Errorf("source %s: unexpected parent node type %T", name, parent)
			}
			childNode, ok := child.(InputProcessor[K, V])
			if !ok {
				return fmt.Errorf("source %s: child %s does not accept %T input", name, childName, parent)
			}
			parentNode.addChild(childNode)
			return nil
		},
	}

	return nil
}

func MustRegisterProcessor[Kin, Vin, Kout, Vout any](tb *TopologyBuilder, build ProcessorBuilder[Kin, Vin, Kout, Vout], name, parent string, stores ...string) {
	must(RegisterProcessor(tb, build, name, parent, stores...))
}

func RegisterProcessor[Kin, Vin, Kout, Vout any](tb *TopologyBuilder, build ProcessorBuilder[Kin, Vin, Kout, Vout], name, parent string, stores ...string) error {
	if _, found := tb.processors[name]; found {
		return fmt.Errorf("%w: processor %s", ErrNodeAlreadyExists, name)
	}

	for _, store := range stores {
		if _, ok := tb.stores[store]; !ok {
			return fmt.Errorf("%w: %s", ErrStoreNotFound, store)
		}
	}

	topoProcessor := &TopologyProcessor{
		Name: name,
		Build: func(taskStores map[string]Store, clock *recordClock) (Node, error) {
			attached := map[string]Store{}
			for _, storeName := range stores {
				store, ok := taskStores[storeName]
				if !ok {
					return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, storeName)
				}
				attached[storeName] = store
			}
			return newProcessorNode(build, attached, clock), nil
		},
		StoreNames: stores,
	}

	topoProcessor.AddChildFunc = func(parent, child any, childName string) error {
		parentNode, ok := parent.(*ProcessorNode[Kin, Vin, Kout, Vout])
		if !ok {
			return fmt.Errorf("processor %s: unexpected parent node type %T", name, parent)
		}
		childNode, ok := child.(InputProcessor[Kout, Vout])
		if !ok {
			return fmt.Errorf("processor %s: child %s does not accept this node's output", name, childName)
		}
		parentNode.addChild(childName, childNode)
		return nil
	}

	tb.processors[name] = topoProcessor

	return SetParent(tb, parent, name)
}

func MustRegisterSink[K, V any](tb *TopologyBuilder, name, topic string, keySerializer serde.Serializer[K], valueSerializer serde.Serializer[V], parent string) {
	must(RegisterSink(tb, name, topic, keySerializer, valueSerializer, parent))
}

func RegisterSink[K, V any](tb *TopologyBuilder, name, topic string, keySerializer serde.Serializer[K], valueSerializer serde.Serializer[V], parent string) error {
	if _, found := tb.sinks[name]; found {
		return fmt.Errorf("%w: sink %s", ErrNodeAlreadyExists, name)
	}

	tb.sinks[name] = &TopologySink{
		Name:  name,
		Topic: topic,
		Builder: func(client *kgo.Client) (any, error) {
			if client == nil {
				return nil, fmt.Errorf("sink %s: topology has no Kafka client", name)
			}
			return NewSinkNode(client, topic, keySerializer, valueSerializer), nil
		},
	}

	return SetParent(tb, parent, name)
}

// RegisterStore adds a store builder under the given name.
func RegisterStore(tb *TopologyBuilder, name string, build StoreBuilder) error {
	if _, found := tb.stores[name]; found {
		return fmt.Errorf("%w: %s", ErrStoreAlreadyExists, name)
	}
	tb.stores[name] = &TopologyStore{
		Name:  name,
		Build: build,
	}
	return nil
}

// RegisterWindowStore adds a window store built from a resolved store
// configuration: the backend honors retention and segmentation, and writes
// go through the changelog when logging is enabled.
func RegisterWindowStore[K, V any](
	tb *TopologyBuilder,
	cfg *WindowStoreConfig,
	keySerde serde.Serde[K],
	valueSerde serde.Serde[V],
	backend BackendBuilder,
) error {
	if _, found := tb.stores[cfg.Name]; found {
		return fmt.Errorf("%w: %s", ErrStoreAlreadyExists, cfg.Name)
	}
	if backend == nil {
		backend = tb.defaultBackend
	}

	logConfig := cfg.LogConfig
	if cfg.LoggingEnabled {
		merged := map[string]string{}
		maps.Copy(merged, cfg.LogConfig)
		if _, ok := merged["cleanup.policy"]; !ok {
			merged["cleanup.policy"] = "compact,delete"
		}
		if _, ok := merged["retention.ms"]; !ok && cfg.Retention > 0 {
			merged["retention.ms"] = strconv.FormatInt((cfg.Retention + cfg.WindowSize).Milliseconds(), 10)
		}
		logConfig = merged
	}

	tb.stores[cfg.Name] = &TopologyStore{
		Name:           cfg.Name,
		LoggingEnabled: cfg.LoggingEnabled,
		LogConfig:      logConfig,
		Build: func(partition int32, changelog ChangelogWriter) (Store, error) {
			be, err := backend(cfg, partition)
			if err != nil {
				return nil, fmt.Errorf("open backend for store %s: %w", cfg.Name, err)
			}
			if cfg.LoggingEnabled && changelog != nil {
				be = newChangeloggingBackend(be, cfg.Name, changelog)
			}
			return NewWindowedKeyValueStore(cfg.Name, be, keySerde, valueSerde), nil
		},
	}
	return nil
}

func MustSetParent(tb *TopologyBuilder, parent, child string) {
	must(SetParent(tb, parent, child))
}

func SetParent(tb *TopologyBuilder, parent, child string) error {
	if parentNode, ok := tb.processors[parent]; ok {
		parentNode.ChildNodeNames = append(parentNode.ChildNodeNames, child)
		return nil
	}

	for _, source := range tb.sources {
		if source.Name == parent {
			source.ChildNodeNames = append(source.ChildNodeNames, child)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrNodeNotFound, parent)
}

// Build validates the assembled topology and freezes it.
func (tb *TopologyBuilder) Build() (*Topology, error) {
	if len(tb.sources) == 0 {
		return nil, fmt.Errorf("%w: topology has no sources", ErrNodeNotFound)
	}

	childExists := func(name string) bool {
		_, isProcessor := tb.processors[name]
		_, isSink := tb.sinks[name]
		return isProcessor || isSink
	}

	for _, p := range tb.processors {
		for _, child := range p.ChildNodeNames {
			if !childExists(child) {
				return nil, fmt.Errorf("%w: %s (child of %s)", ErrNodeNotFound, child, p.Name)
			}
		}
	}
	for _, s := range tb.sources {
		for _, child := range s.ChildNodeNames {
			if !childExists(child) {
				return nil, fmt.Errorf("%w: %s (child of %s)", ErrNodeNotFound, child, s.Name)
			}
		}
	}

	return &Topology{
		sources:    tb.sources,
		stores:     tb.stores,
		processors: tb.processors,
		sinks:      tb.sinks,
		registry:   tb.registry,
		log:        tb.log,
	}, nil
}

func (tb *TopologyBuilder) MustBuild() *Topology {
	topology, err := tb.Build()
	if err != nil {
		panic(err)
	}
	return topology
}
