package windstream

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/calluna/windstream/serde"
	"github.com/go-logr/logr"
)

type forwardRecorder[K, V any] struct {
	keys   []K
	values []V
}

func (f *forwardRecorder[K, V]) Process(ctx context.Context, k K, v V) error {
	f.keys = append(f.keys, k)
	f.values = append(f.values, v)
	return nil
}

func newCountProcessor(t *testing.T, windows TimeWindows) (*windowAggregateProcessor[string, string, int64], *forwardRecorder[WindowKey[string], int64], *recordClock) {
	t.Helper()

	backend := newTestBackend(t, time.Hour, time.Minute)
	store := NewWindowedKeyValueStore("counts", backend, serde.String, serde.Int64)

	recorder := &forwardRecorder[WindowKey[string], int64]{}
	clock := &recordClock{}
	pctx := &internalProcessorContext[WindowKey[string], int64]{
		outputs: map[string]InputProcessor[WindowKey[string], int64]{"child": recorder},
		stores:  map[string]Store{"counts": store},
		clock:   clock,
	}

	p := &windowAggregateProcessor[string, string, int64]{
		storeName: "counts",
		windows:   windows,
		apply: func(k, v string, acc int64, found bool) int64 {
			if !found {
				return 1
			}
			return acc + 1
		},
		log: logr.Discard(),
	}
	assert.NoError(t, p.Init(pctx))
	return p, recorder, clock
}

func TestWindowAggregateProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards every update with the window key", func(t *testing.T) {
		p, recorder, clock := newCountProcessor(t, TumblingWindows(time.Minute))

		clock.observe(time.UnixMilli(1_000))
		assert.NoError(t, p.Process(ctx, "a", "x"))
		clock.observe(time.UnixMilli(2_000))
		assert.NoError(t, p.Process(ctx, "a", "x"))

		assert.Equal(t, 2, len(recorder.keys))
		assert.Equal(t, WindowKey[string]{Key: "a", Start: time.UnixMilli(0).UTC()}, recorder.keys[0])
		assert.Equal(t, []int64{1, 2}, recorder.values)
	})

	t.Run("hopping windows update every containing cell", func(t *testing.T) {
		p, recorder, clock := newCountProcessor(t, HoppingWindows(2*time.Minute, time.Minute))

		clock.observe(time.UnixMilli(150_000))
		assert.NoError(t, p.Process(ctx, "a", "x"))

		assert.Equal(t, 2, len(recorder.keys))
		assert.Equal(t, int64(60_000), recorder.keys[0].Start.UnixMilli())
		assert.Equal(t, int64(120_000), recorder.keys[1].Start.UnixMilli())
	})

	t.Run("late records are dropped silently", func(t *testing.T) {
		p, recorder, clock := newCountProcessor(t, TumblingWindows(time.Minute))

		clock.observe(time.UnixMilli(120_000))
		assert.NoError(t, p.Process(ctx, "a", "x"))

		// Stream time stays at 120s; the record's window [0,60s) closed
		// with zero grace.
		clock.observe(time.UnixMilli(1_000))
		assert.NoError(t, p.Process(ctx, "a", "x"))

		assert.Equal(t, 1, len(recorder.keys))
		assert.Equal(t, int64(120_000), recorder.keys[0].Start.UnixMilli())

		_, found, err := p.store.Get(ctx, "a", time.UnixMilli(0))
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("grace keeps a closed window open", func(t *testing.T) {
		p, recorder, clock := newCountProcessor(t, TumblingWindows(time.Minute).WithGrace(30*time.Second))

		clock.observe(time.UnixMilli(80_000))
		assert.NoError(t, p.Process(ctx, "a", "x"))

		clock.observe(time.UnixMilli(1_000))
		assert.NoError(t, p.Process(ctx, "a", "x"))

		// 80s < 60s end + 30s grace, so the late record still counts.
		assert.Equal(t, 2, len(recorder.keys))
		count, found, err := p.store.Get(ctx, "a", time.UnixMilli(0))
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(1), count)
	})

	t.Run("missing store fails init", func(t *testing.T) {
		pctx := &internalProcessorContext[WindowKey[string], int64]{
			outputs: map[string]InputProcessor[WindowKey[string], int64]{},
			stores:  map[string]Store{},
			clock:   &recordClock{},
		}
		p := &windowAggregateProcessor[string, string, int64]{
			storeName: "counts",
			windows:   TumblingWindows(time.Minute),
			apply:     func(k, v string, acc int64, found bool) int64 { return acc },
			log:       logr.Discard(),
		}
		assert.IsError(t, p.Init(pctx), ErrStoreNotFound)
	})
}
