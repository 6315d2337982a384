package windstream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// memoryBackend is the default window store backend: entries live in time
// segments aligned to the segment interval, and whole segments are dropped
// once every window start they can contain has passed its retention. The
// segment start is derived from the window start embedded in the encoded
// window key.
//
// Writes come from a single task goroutine; the mutex guards point and
// range reads issued by table queries from other goroutines.
type memoryBackend struct {
	mu sync.RWMutex

	retentionMs int64
	segmentMs   int64

	// segment start ms -> encoded key -> value
	segments map[int64]map[string][]byte

	streamTimeMs int64
}

// NewMemoryBackend builds in-memory window store backends. It is the
// topology default; durable deployments swap in the pebble backend.
func NewMemoryBackend(cfg *WindowStoreConfig, partition int32) (StoreBackend, error) {
	segment := cfg.SegmentInterval
	if segment <= 0 {
		segment = defaultSegmentInterval(cfg.Retention)
	}
	return &memoryBackend{
		retentionMs: cfg.Retention.Milliseconds(),
		segmentMs:   segment.Milliseconds(),
		segments:    map[int64]map[string][]byte{},
	}, nil
}

func (m *memoryBackend) segmentFor(windowStartMs int64) int64 {
	return windowStartMs - windowStartMs%m.segmentMs
}

func (m *memoryBackend) Set(k, v []byte) error {
	startMs, err := windowKeyStart(k)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seg := m.segmentFor(startMs)
	entries, ok := m.segments[seg]
	if !ok {
		entries = map[string][]byte{}
		m.segments[seg] = entries
	}
	entries[string(k)] = slices.Clone(v)
	return nil
}

func (m *memoryBackend) Get(k []byte) ([]byte, error) {
	startMs, err := windowKeyStart(k)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.segments[m.segmentFor(startMs)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	v, ok := entries[string(k)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

func (m *memoryBackend) Delete(k []byte) error {
	startMs, err := windowKeyStart(k)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entries, ok := m.segments[m.segmentFor(startMs)]; ok {
		delete(entries, string(k))
	}
	return nil
}

func (m *memoryBackend) Range(lower, upper []byte, fn func(k, v []byte) bool) error {
	m.mu.RLock()
	var matches []string
	for _, entries := range m.segments {
		for key := range entries {
			if key >= string(lower) && key < string(upper) {
				matches = append(matches, key)
			}
		}
	}
	slices.Sort(matches)

	values := make([][]byte, len(matches))
	for i, key := range matches {
		startMs, err := windowKeyStart([]byte(key))
		if err != nil {
			m.mu.RUnlock()
			return err
		}
		values[i] = slices.Clone(m.segments[m.segmentFor(startMs)][key])
	}
	m.mu.RUnlock()

	for i, key := range matches {
		if !fn([]byte(key), values[i]) {
			return nil
		}
	}
	return nil
}

// ObserveStreamTime drops every segment whose newest possible window start
// has passed the retention boundary.
func (m *memoryBackend) ObserveStreamTime(t time.Time) {
	tMs := t.UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()

	if tMs <= m.streamTimeMs {
		return
	}
	m.streamTimeMs = tMs

	for seg := range m.segments {
		if seg+m.segmentMs-1+m.retentionMs < tMs {
			delete(m.segments, seg)
		}
	}
}

func (m *memoryBackend) Init() error { return nil }

func (m *memoryBackend) Flush(ctx context.Context) error { return nil }

func (m *memoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = map[int64]map[string][]byte{}
	return nil
}
