package windstream

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func newTestBackend(t *testing.T, retention, segment time.Duration) StoreBackend {
	t.Helper()
	backend, err := NewMemoryBackend(&WindowStoreConfig{
		Name:            "test",
		Retention:       retention,
		SegmentInterval: segment,
	}, 0)
	assert.NoError(t, err)
	return backend
}

func mustEncode(t *testing.T, key string, startMs int64) []byte {
	t.Helper()
	encoded, err := encodeWindowKey([]byte(key), startMs)
	assert.NoError(t, err)
	return encoded
}

func TestMemoryBackendSetGetDelete(t *testing.T) {
	backend := newTestBackend(t, time.Hour, time.Minute)

	k := mustEncode(t, "a", 60_000)
	assert.NoError(t, backend.Set(k, []byte("v1")))

	got, err := backend.Get(k)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	assert.NoError(t, backend.Set(k, []byte("v2")))
	got, err = backend.Get(k)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	assert.NoError(t, backend.Delete(k))
	_, err = backend.Get(k)
	assert.IsError(t, err, ErrKeyNotFound)
}

func TestMemoryBackendGetMissing(t *testing.T) {
	backend := newTestBackend(t, time.Hour, time.Minute)

	_, err := backend.Get(mustEncode(t, "missing", 0))
	assert.IsError(t, err, ErrKeyNotFound)
}

func TestMemoryBackendRange(t *testing.T) {
	backend := newTestBackend(t, time.Hour, time.Minute)

	// Spread entries over several segments, inserted out of order.
	assert.NoError(t, backend.Set(mustEncode(t, "a", 180_000), []byte("3")))
	assert.NoError(t, backend.Set(mustEncode(t, "a", 0), []byte("0")))
	assert.NoError(t, backend.Set(mustEncode(t, "a", 60_000), []byte("1")))
	assert.NoError(t, backend.Set(mustEncode(t, "b", 60_000), []byte("x")))

	t.Run("bounds are honored and order is ascending", func(t *testing.T) {
		var got []string
		err := backend.Range(
			mustEncode(t, "a", 0),
			mustEncode(t, "a", 180_000),
			func(k, v []byte) bool {
				got = append(got, string(v))
				return true
			})
		assert.NoError(t, err)
		// Upper bound is exclusive.
		assert.Equal(t, []string{"0", "1"}, got)
	})

	t.Run("other keys stay outside the range", func(t *testing.T) {
		var count int
		err := backend.Range(
			mustEncode(t, "a", 0),
			mustEncode(t, "a", 240_000),
			func(k, v []byte) bool {
				count++
				return true
			})
		assert.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("early stop", func(t *testing.T) {
		var count int
		err := backend.Range(
			mustEncode(t, "a", 0),
			mustEncode(t, "a", 240_000),
			func(k, v []byte) bool {
				count++
				return false
			})
		assert.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestMemoryBackendEviction(t *testing.T) {
	backend := newTestBackend(t, time.Minute, time.Minute)
	observer := backend.(streamTimeObserver)

	old := mustEncode(t, "a", 0)
	fresh := mustEncode(t, "a", 120_000)
	assert.NoError(t, backend.Set(old, []byte("old")))
	assert.NoError(t, backend.Set(fresh, []byte("fresh")))

	// Newest window start in the old segment is 59_999ms; with one minute
	// retention it expires once stream time passes 120_000ms.
	observer.ObserveStreamTime(time.UnixMilli(119_999))
	_, err := backend.Get(old)
	assert.NoError(t, err)

	observer.ObserveStreamTime(time.UnixMilli(120_000))
	_, err = backend.Get(old)
	assert.IsError(t, err, ErrKeyNotFound)

	_, err = backend.Get(fresh)
	assert.NoError(t, err)
}

func TestMemoryBackendStreamTimeMonotonic(t *testing.T) {
	backend := newTestBackend(t, time.Minute, time.Minute)
	observer := backend.(streamTimeObserver)

	k := mustEncode(t, "a", 0)
	assert.NoError(t, backend.Set(k, []byte("v")))

	observer.ObserveStreamTime(time.UnixMilli(300_000))
	// An out-of-order observation must not resurrect anything or evict
	// more; stream time never moves backwards.
	observer.ObserveStreamTime(time.UnixMilli(1_000))

	_, err := backend.Get(k)
	assert.IsError(t, err, ErrKeyNotFound)
}
