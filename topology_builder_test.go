package windstream

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/calluna/windstream/serde"
)

type passthroughProcessor struct {
	pctx ProcessorContext[string, string]
}

func (p *passthroughProcessor) Init(pctx ProcessorContext[string, string]) error {
	p.pctx = pctx
	return nil
}

func (p *passthroughProcessor) Process(ctx context.Context, k string, v string) error {
	p.pctx.Forward(ctx, k, v)
	return nil
}

func (p *passthroughProcessor) Close() error { return nil }

func newPassthrough() Processor[string, string, string, string] {
	return &passthroughProcessor{}
}

func TestNextName(t *testing.T) {
	tb := NewTopologyBuilder()

	assert.Equal(t, "A-0000000001", tb.NextName("A-"))
	// The sequence is shared across prefixes.
	assert.Equal(t, "B-STATE-STORE-0000000002", tb.NextStoreName("B-"))
	assert.Equal(t, "A-0000000003", tb.NextName("A-"))
}

func TestRegisterSource(t *testing.T) {
	tb := NewTopologyBuilder()

	assert.NoError(t, RegisterSource(tb, "input", "input", serde.String.Deserializer, serde.String.Deserializer))

	err := RegisterSource(tb, "input-again", "input", serde.String.Deserializer, serde.String.Deserializer)
	assert.IsError(t, err, ErrNodeAlreadyExists)
}

func TestRegisterProcessor(t *testing.T) {
	t.Run("unknown parent", func(t *testing.T) {
		tb := NewTopologyBuilder()
		err := RegisterProcessor(tb, newPassthrough, "proc", "no-such-parent")
		assert.IsError(t, err, ErrNodeNotFound)
	})

	t.Run("unknown store", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "input", "input", serde.String.Deserializer, serde.String.Deserializer)
		err := RegisterProcessor(tb, newPassthrough, "proc", "input", "no-such-store")
		assert.IsError(t, err, ErrStoreNotFound)
	})

	t.Run("duplicate name", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "input", "input", serde.String.Deserializer, serde.String.Deserializer)
		MustRegisterProcessor(tb, newPassthrough, "proc", "input")
		err := RegisterProcessor(tb, newPassthrough, "proc", "input")
		assert.IsError(t, err, ErrNodeAlreadyExists)
	})
}

func TestRegisterWindowStore(t *testing.T) {
	cfg := &WindowStoreConfig{
		Name:           "ws",
		Retention:      time.Hour,
		WindowSize:     time.Minute,
		LoggingEnabled: true,
	}

	t.Run("duplicate name", func(t *testing.T) {
		tb := NewTopologyBuilder()
		assert.NoError(t, RegisterWindowStore(tb, cfg, serde.String, serde.Int64, nil))
		err := RegisterWindowStore(tb, cfg, serde.String, serde.Int64, nil)
		assert.IsError(t, err, ErrStoreAlreadyExists)
	})

	t.Run("changelog topic config defaults", func(t *testing.T) {
		tb := NewTopologyBuilder()
		assert.NoError(t, RegisterWindowStore(tb, cfg, serde.String, serde.Int64, nil))

		store := tb.stores["ws"]
		assert.True(t, store.LoggingEnabled)
		assert.Equal(t, "compact,delete", store.LogConfig["cleanup.policy"])
		assert.Equal(t, "3660000", store.LogConfig["retention.ms"])
	})

	t.Run("explicit changelog config wins", func(t *testing.T) {
		tb := NewTopologyBuilder()
		custom := *cfg
		custom.LogConfig = map[string]string{"retention.ms": "1234"}
		assert.NoError(t, RegisterWindowStore(tb, &custom, serde.String, serde.Int64, nil))
		assert.Equal(t, "1234", tb.stores["ws"].LogConfig["retention.ms"])
	})

	t.Run("disabled logging keeps config untouched", func(t *testing.T) {
		tb := NewTopologyBuilder()
		unlogged := *cfg
		unlogged.LoggingEnabled = false
		assert.NoError(t, RegisterWindowStore(tb, &unlogged, serde.String, serde.Int64, nil))
		store := tb.stores["ws"]
		assert.False(t, store.LoggingEnabled)
		assert.Equal(t, 0, len(store.LogConfig))
	})
}

func TestBuild(t *testing.T) {
	t.Run("no sources", func(t *testing.T) {
		tb := NewTopologyBuilder()
		_, err := tb.Build()
		assert.Error(t, err)
	})

	t.Run("dangling child", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "input", "input", serde.String.Deserializer, serde.String.Deserializer)
		MustSetParent(tb, "input", "ghost")
		_, err := tb.Build()
		assert.IsError(t, err, ErrNodeNotFound)
	})

	t.Run("valid topology", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "input", "input", serde.String.Deserializer, serde.String.Deserializer)
		MustRegisterProcessor(tb, newPassthrough, "proc", "input")
		MustRegisterSink(tb, "sink", "output", serde.String.Serializer, serde.String.Serializer, "proc")

		topology, err := tb.Build()
		assert.NoError(t, err)
		assert.Equal(t, []string{"input"}, topology.SourceTopics())
	})
}

func TestCreateTaskWithoutClient(t *testing.T) {
	tb := NewTopologyBuilder()
	MustRegisterSource(tb, "input", "input", serde.String.Deserializer, serde.String.Deserializer)
	MustRegisterProcessor(tb, newPassthrough, "proc", "input")
	MustRegisterSink(tb, "sink", "output", serde.String.Serializer, serde.String.Serializer, "proc")

	topology := tb.MustBuild()
	task, err := topology.CreateTask([]string{"input"}, 0, nil, nil)
	assert.NoError(t, err)
	assert.NoError(t, task.Init())
	assert.NoError(t, task.Process(context.Background(), record("k", "v", 1_000)))
	assert.NoError(t, task.Close(context.Background()))
}

func TestTaskOffsets(t *testing.T) {
	tb := NewTopologyBuilder()
	MustRegisterSource(tb, "input", "input", serde.String.Deserializer, serde.String.Deserializer)

	topology := tb.MustBuild()
	task, err := topology.CreateTask([]string{"input"}, 3, nil, nil)
	assert.NoError(t, err)
	assert.NoError(t, task.Init())
	assert.Equal(t, int32(3), task.Partition())

	rec := record("k", "v", 1_000)
	rec.Offset = 41
	rec.LeaderEpoch = 7
	assert.NoError(t, task.Process(context.Background(), rec))

	offsets := task.GetOffsetsToCommit()
	assert.Equal(t, int64(42), offsets["input"].Offset)
	assert.Equal(t, int32(7), offsets["input"].Epoch)

	assert.NoError(t, task.Close(context.Background()))
}
