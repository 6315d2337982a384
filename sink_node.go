package windstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/calluna/windstream/serde"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Flusher is implemented by nodes that buffer output and must be drained
// before offsets are committed.
type Flusher interface {
	Flush(context.Context) error
}

var _ = InputProcessor[any, any](&SinkNode[any, any]{})

// SinkNode produces records to a Kafka topic. Produce calls are async;
// Flush awaits all outstanding futures and surfaces the first error.
type SinkNode[K any, V any] struct {
	KeySerializer   serde.Serializer[K]
	ValueSerializer serde.Serializer[V]

	client *kgo.Client
	topic  string

	futuresWg sync.WaitGroup
	mu        sync.Mutex
	futures   []produceResult
}

type produceResult struct {
	record *kgo.Record
	err    error
}

func NewSinkNode[K, V any](client *kgo.Client, topic string, keySerializer serde.Serializer[K], valueSerializer serde.Serializer[V]) *SinkNode[K, V] {
	return &SinkNode[K, V]{
		client:          client,
		topic:           topic,
		KeySerializer:   keySerializer,
		ValueSerializer: valueSerializer,
	}
}

func (s *SinkNode[K, V]) Process(ctx context.Context, k K, v V) error {
	key, err := s.KeySerializer(k)
	if err != nil {
		return fmt.Errorf("sink: serialize key: %w", err)
	}

	value, err := s.ValueSerializer(v)
	if err != nil {
		return fmt.Errorf("sink: serialize value: %w", err)
	}

	s.futuresWg.Add(1)
	s.client.Produce(context.Background(), &kgo.Record{
		Key:   key,
		Value: value,
		Topic: s.topic,
	}, func(r *kgo.Record, err error) {
		s.mu.Lock()
		s.futures = append(s.futures, produceResult{record: r, err: err})
		s.mu.Unlock()
		s.futuresWg.Done()
	})

	return nil
}

func (s *SinkNode[K, V]) Flush(ctx context.Context) error {
	s.futuresWg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, result := range s.futures {
		if result.err != nil {
			return fmt.Errorf("sink: produce to %s: %w", s.topic, result.err)
		}
	}

	// Keep allocated memory.
	s.futures = s.futures[:0]

	return nil
}
