package windstream

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Topology is an immutable processing graph, ready to be instantiated into
// per-partition tasks.
type Topology struct {
	sources    map[string]*TopologySource
	processors map[string]*TopologyProcessor
	sinks      map[string]*TopologySink
	stores     map[string]*TopologyStore

	registry *storeRegistry
	log      logr.Logger
}

// SourceTopics returns the topics this topology consumes, sorted.
func (t *Topology) SourceTopics() []string {
	topics := maps.Keys(t.sources)
	slices.Sort(topics)
	return topics
}

// ChangelogStores returns the stores that log changes to a changelog
// topic.
func (t *Topology) ChangelogStores() []*TopologyStore {
	names := maps.Keys(t.stores)
	slices.Sort(names)

	var logged []*TopologyStore
	for _, name := range names {
		if store := t.stores[name]; store.LoggingEnabled {
			logged = append(logged, store)
		}
	}
	return logged
}

// CreateTask instantiates all nodes and stores of this topology for one
// partition and wires them together. The client may be nil for topologies
// driven without Kafka (tests, tools); sinks and changelogs then stay
// unwired.
func (t *Topology) CreateTask(topics []string, partition int32, client *kgo.Client, changelog ChangelogWriter) (*Task, error) {
	clock := &recordClock{}

	stores := map[string]Store{}
	storeNames := maps.Keys(t.stores)
	slices.Sort(storeNames)
	for _, name := range storeNames {
		store, err := t.stores[name].Build(partition, changelog)
		if err != nil {
			return nil, fmt.Errorf("build store %s: %w", name, err)
		}
		stores[name] = store
	}

	processors := map[string]Node{}
	processorNames := maps.Keys(t.processors)
	slices.Sort(processorNames)
	for _, name := range processorNames {
		node, err := t.processors[name].Build(stores, clock)
		if err != nil {
			return nil, fmt.Errorf("build processor %s: %w", name, err)
		}
		processors[name] = node
	}

	sinks := map[string]any{}
	if client != nil {
		sinkNames := maps.Keys(t.sinks)
		slices.Sort(sinkNames)
		for _, name := range sinkNames {
			node, err := t.sinks[name].Builder(client)
			if err != nil {
				return nil, fmt.Errorf("build sink %s: %w", name, err)
			}
			sinks[name] = node
		}
	}

	childNode := func(name string) (any, bool) {
		if node, ok := processors[name]; ok {
			return node, true
		}
		node, ok := sinks[name]
		return node, ok
	}

	rootNodes := map[string]RecordProcessor{}
	for _, topic := range topics {
		source, ok := t.sources[topic]
		if !ok {
			return nil, fmt.Errorf("%w: source for topic %s", ErrNodeNotFound, topic)
		}
		node := source.Build(clock)
		rootNodes[topic] = node

		for _, childName := range source.ChildNodeNames {
			child, ok := childNode(childName)
			if !ok {
				// Child is a sink and the task runs without a client.
				continue
			}
			if err := source.AddChildFunc(node, child, childName); err != nil {
				return nil, err
			}
		}
	}

	for _, name := range processorNames {
		topoProcessor := t.processors[name]
		for _, childName := range topoProcessor.ChildNodeNames {
			child, ok := childNode(childName)
			if !ok {
				continue
			}
			if err := topoProcessor.AddChildFunc(processors[name], child, childName); err != nil {
				return nil, err
			}
		}
	}

	flushers := map[string]Flusher{}
	for name, node := range sinks {
		if f, ok := node.(Flusher); ok {
			flushers[name] = f
		}
	}

	return newTask(topics, partition, rootNodes, processors, stores, flushers, t.registry, clock), nil
}

// storeRegistry tracks live store instances by name and partition so
// queryable tables can reach them. Tasks register stores on init and
// deregister on close; table queries may come from other goroutines.
type storeRegistry struct {
	mu     sync.RWMutex
	stores map[string]map[int32]Store
}

func newStoreRegistry() *storeRegistry {
	return &storeRegistry{stores: map[string]map[int32]Store{}}
}

func (r *storeRegistry) register(name string, partition int32, store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	partitions, ok := r.stores[name]
	if !ok {
		partitions = map[int32]Store{}
		r.stores[name] = partitions
	}
	partitions[partition] = store
}

func (r *storeRegistry) deregister(name string, partition int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if partitions, ok := r.stores[name]; ok {
		delete(partitions, partition)
	}
}

// each visits all live partitions of a store until fn returns false.
func (r *storeRegistry) each(name string, fn func(partition int32, store Store) bool) {
	r.mu.RLock()
	partitions := map[int32]Store{}
	maps.Copy(partitions, r.stores[name])
	r.mu.RUnlock()

	ids := maps.Keys(partitions)
	slices.Sort(ids)
	for _, id := range ids {
		if !fn(id, partitions[id]) {
			return
		}
	}
}
