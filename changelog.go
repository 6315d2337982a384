package windstream

import (
	"context"
	"fmt"
	"time"
)

// ChangelogTopic returns the changelog topic name for a store, following
// the <application>-<store>-changelog convention.
func ChangelogTopic(appID, storeName string) string {
	return fmt.Sprintf("%s-%s-changelog", appID, storeName)
}

// changeloggingBackend decorates a store backend so every write is also
// appended to the store's changelog. Writes go to the inner store first; a
// failed changelog append can then be retried without duplicating store
// writes. Reads bypass the changelog entirely.
type changeloggingBackend struct {
	inner StoreBackend
	name  string
	write ChangelogWriter
}

func newChangeloggingBackend(inner StoreBackend, storeName string, write ChangelogWriter) *changeloggingBackend {
	return &changeloggingBackend{
		inner: inner,
		name:  storeName,
		write: write,
	}
}

func (c *changeloggingBackend) Set(k, v []byte) error {
	if err := c.inner.Set(k, v); err != nil {
		return err
	}
	if err := c.write(c.name, k, v); err != nil {
		return fmt.Errorf("log change: %w", err)
	}
	return nil
}

func (c *changeloggingBackend) Delete(k []byte) error {
	if err := c.inner.Delete(k); err != nil {
		return err
	}
	// Tombstone so compaction removes the key.
	if err := c.write(c.name, k, nil); err != nil {
		return fmt.Errorf("log tombstone: %w", err)
	}
	return nil
}

func (c *changeloggingBackend) Get(k []byte) ([]byte, error) {
	return c.inner.Get(k)
}

func (c *changeloggingBackend) Range(lower, upper []byte, fn func(k, v []byte) bool) error {
	return c.inner.Range(lower, upper, fn)
}

func (c *changeloggingBackend) ObserveStreamTime(t time.Time) {
	if o, ok := c.inner.(streamTimeObserver); ok {
		o.ObserveStreamTime(t)
	}
}

func (c *changeloggingBackend) Init() error {
	return c.inner.Init()
}

func (c *changeloggingBackend) Flush(ctx context.Context) error {
	return c.inner.Flush(ctx)
}

func (c *changeloggingBackend) Close() error {
	return c.inner.Close()
}
