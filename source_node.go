package windstream

import (
	"context"

	"github.com/calluna/windstream/serde"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RecordProcessor consumes raw Kafka records. Implemented by source nodes.
type RecordProcessor interface {
	Process(ctx context.Context, record *kgo.Record) error
}

// SourceNode deserializes incoming records, advances the task's event-time
// clock, and forwards to all downstream processors.
type SourceNode[K any, V any] struct {
	KeyDeserializer   serde.Deserializer[K]
	ValueDeserializer serde.Deserializer[V]

	clock                *recordClock
	downstreamProcessors []InputProcessor[K, V]
}

func (n *SourceNode[K, V]) Process(ctx context.Context, record *kgo.Record) error {
	key, err := n.KeyDeserializer(record.Key)
	if err != nil {
		return err
	}

	value, err := n.ValueDeserializer(record.Value)
	if err != nil {
		return err
	}

	n.clock.observe(record.Timestamp)

	for _, next := range n.downstreamProcessors {
		if err := next.Process(ctx, key, value); err != nil {
			return err
		}
	}

	return nil
}

func (n *SourceNode[K, V]) addChild(next InputProcessor[K, V]) {
	n.downstreamProcessors = append(n.downstreamProcessors, next)
}
