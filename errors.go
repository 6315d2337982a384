package windstream

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrKeyNotFound is returned by store backends for missing keys.
	ErrKeyNotFound = errors.New("windstream: key not found")

	ErrNodeAlreadyExists  = errors.New("windstream: node exists already")
	ErrNodeNotFound       = errors.New("windstream: node not found")
	ErrStoreAlreadyExists = errors.New("windstream: store exists already")
	ErrStoreNotFound      = errors.New("windstream: store not found")

	// ErrNotQueryable is returned when querying a table whose store name
	// was generated. Name the store through MaterializedAs or a supplier
	// to query it.
	ErrNotQueryable = errors.New("windstream: table is not queryable")

	// ErrInvalidWindows reports a window specification that violates
	// size > 0, advance in (0, size], or grace >= 0.
	ErrInvalidWindows = errors.New("windstream: invalid window specification")
)

// NilArgumentError reports a required argument that was not supplied.
// It is always a caller bug and never retried.
type NilArgumentError struct {
	Name string
}

func (e *NilArgumentError) Error() string {
	return fmt.Sprintf("windstream: %s must not be nil", e.Name)
}

// ConfigurationError reports a window store whose retention is too small to
// hold a window for its full lifetime, i.e. retention < size + grace. Such a
// store would evict windows that may still legally receive late records.
type ConfigurationError struct {
	StoreName  string
	WindowSize time.Duration
	Grace      time.Duration
	Retention  time.Duration
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(
		"windstream: the retention period of the window store %s must be no smaller than its window size plus the grace period: got size=[%dms], grace=[%dms], retention=[%dms]",
		e.StoreName, e.WindowSize.Milliseconds(), e.Grace.Milliseconds(), e.Retention.Milliseconds(),
	)
}
