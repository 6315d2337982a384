// Package pebble provides a persistent window store backend on top of
// cockroachdb/pebble.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/calluna/windstream"
)

type pebbleStore struct {
	db *pebble.DB

	retention time.Duration
	segment   time.Duration
	lastEvict time.Time
}

func (s *pebbleStore) Init() error {
	return nil
}

func (s *pebbleStore) Flush(ctx context.Context) error {
	return s.db.Flush()
}

func (s *pebbleStore) Close() error {
	if err := s.db.Flush(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *pebbleStore) Set(k, v []byte) error {
	return s.db.Set(k, v, &pebble.WriteOptions{Sync: false})
}

func (s *pebbleStore) Get(k []byte) ([]byte, error) {
	v, closer, err := s.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, windstream.ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	res := make([]byte, len(v))
	copy(res, v)

	return res, nil
}

func (s *pebbleStore) Delete(k []byte) error {
	return s.db.Delete(k, &pebble.WriteOptions{Sync: false})
}

func (s *pebbleStore) Range(lower, upper []byte, fn func(k, v []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if !fn(k, append([]byte(nil), v...)) {
			break
		}
	}
	return iter.Error()
}

// ObserveStreamTime drops entries whose window has fallen out of the
// retention period. Entries are keyed by (record key, window start), not by
// time, so eviction scans the whole store; it runs at most once per segment
// interval to keep that cost off the per-record path.
func (s *pebbleStore) ObserveStreamTime(t time.Time) {
	if t.Sub(s.lastEvict) < s.segment {
		return
	}
	s.lastEvict = t
	cutoff := t.Add(-s.retention).UnixMilli()

	iter, err := s.db.NewIter(nil)
	if err != nil {
		return
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		start, err := windstream.WindowKeyStartMillis(iter.Key())
		if err != nil {
			continue
		}
		if start < cutoff {
			_ = batch.Delete(iter.Key(), nil)
		}
	}
	_ = batch.Commit(&pebble.WriteOptions{Sync: false})
}

func newStore(stateDir, name string, partition int32, cfg *windstream.WindowStoreConfig) (*pebbleStore, error) {
	if stateDir == "" {
		stateDir = "/tmp/windstream"
	}
	dir := fmt.Sprintf("%s/%s/partition-%d", stateDir, name, partition)
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dir, err)
	}

	segment := cfg.SegmentInterval
	if segment <= 0 {
		segment = cfg.Retention / 2
	}
	if segment < time.Minute {
		segment = time.Minute
	}

	return &pebbleStore{
		db:        db,
		retention: cfg.Retention,
		segment:   segment,
	}, nil
}

// NewBackendBuilder returns a backend builder that keeps each partition's
// state in its own pebble database under stateDir.
func NewBackendBuilder(stateDir string) windstream.BackendBuilder {
	return func(cfg *windstream.WindowStoreConfig, partition int32) (windstream.StoreBackend, error) {
		return newStore(stateDir, cfg.Name, partition, cfg)
	}
}

var _ = windstream.StoreBackend(&pebbleStore{})
