package windstream

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
)

// Task is one partition's instantiation of a topology. Each task is driven
// by exactly one worker goroutine; records are processed in source-offset
// order.
type Task struct {
	topics    []string
	partition int32

	rootNodes  map[string]RecordProcessor // Key = topic
	processors map[string]Node
	stores     map[string]Store
	sinks      map[string]Flusher

	committableOffsets map[string]kgo.EpochOffset // Topic => next offset

	registry *storeRegistry
	clock    *recordClock
}

func newTask(
	topics []string,
	partition int32,
	rootNodes map[string]RecordProcessor,
	processors map[string]Node,
	stores map[string]Store,
	sinks map[string]Flusher,
	registry *storeRegistry,
	clock *recordClock,
) *Task {
	return &Task{
		topics:             topics,
		partition:          partition,
		rootNodes:          rootNodes,
		processors:         processors,
		stores:             stores,
		sinks:              sinks,
		committableOffsets: map[string]kgo.EpochOffset{},
		registry:           registry,
		clock:              clock,
	}
}

func (t *Task) Partition() int32 {
	return t.partition
}

func (t *Task) Process(ctx context.Context, records ...*kgo.Record) error {
	for _, record := range records {
		root, ok := t.rootNodes[record.Topic]
		if !ok {
			return fmt.Errorf("unknown topic: %s", record.Topic)
		}

		if err := root.Process(ctx, record); err != nil {
			return fmt.Errorf("process record at %s/%d offset %d: %w", record.Topic, record.Partition, record.Offset, err)
		}
		t.committableOffsets[record.Topic] = kgo.EpochOffset{Epoch: record.LeaderEpoch, Offset: record.Offset + 1}
	}

	return nil
}

func (t *Task) Init() error {
	var err error
	for _, store := range t.stores {
		err = multierr.Append(err, store.Init())
	}
	for _, processor := range t.processors {
		err = multierr.Append(err, processor.Init())
	}
	if err != nil {
		return err
	}

	for name, store := range t.stores {
		t.registry.register(name, t.partition, store)
	}
	return nil
}

func (t *Task) Flush(ctx context.Context) error {
	var err error
	for _, store := range t.stores {
		err = multierr.Append(err, store.Flush(ctx))
	}
	for _, sink := range t.sinks {
		err = multierr.Append(err, sink.Flush(ctx))
	}
	return err
}

func (t *Task) GetOffsetsToCommit() map[string]kgo.EpochOffset {
	return t.committableOffsets
}

func (t *Task) Close(ctx context.Context) error {
	var err error
	for name, store := range t.stores {
		t.registry.deregister(name, t.partition)
		err = multierr.Append(err, store.Close())
	}
	for _, processor := range t.processors {
		err = multierr.Append(err, processor.Close())
	}
	return err
}

func (t *Task) String() string {
	return fmt.Sprintf("task %v/%d", t.topics, t.partition)
}
