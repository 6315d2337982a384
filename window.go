package windstream

import (
	"fmt"
	"time"
)

// Window is a half-open time interval [Start, End). Records whose timestamp
// falls inside the interval belong to the window.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.Start.UnixMilli(), w.End.UnixMilli())
}

// RetentionSource states where a window store's retention comes from.
// Exactly one of the two implementations is active per TimeWindows value;
// the resolver switches over it exhaustively.
type RetentionSource interface {
	isRetentionSource()
}

// ExplicitRetention carries a retention duration stated directly by the
// caller, either on the windows or through Materialized.
type ExplicitRetention struct {
	Retention time.Duration
}

func (ExplicitRetention) isRetentionSource() {}

// LegacyRetention carries the old-style maintain duration together with an
// explicit segment interval. It exists for callers that configured store
// segmentation themselves and whose declared retention must not be
// reinterpreted.
type LegacyRetention struct {
	Maintain        time.Duration
	SegmentInterval time.Duration
}

func (LegacyRetention) isRetentionSource() {}

const (
	defaultMaintain    = 24 * time.Hour
	minSegmentInterval = time.Minute
)

func defaultSegmentInterval(maintain time.Duration) time.Duration {
	if si := maintain / 2; si > minSegmentInterval {
		return si
	}
	return minSegmentInterval
}

// TimeWindows describes fixed, gap-less time windows: tumbling when the
// advance equals the size, hopping when it is smaller. A TimeWindows value
// is immutable; the With* methods return modified copies.
type TimeWindows struct {
	size    time.Duration
	advance time.Duration
	grace   time.Duration

	retention RetentionSource
}

// TumblingWindows returns non-overlapping windows of the given size.
func TumblingWindows(size time.Duration) TimeWindows {
	return HoppingWindows(size, size)
}

// HoppingWindows returns windows of the given size, advanced by the given
// interval. An advance smaller than the size yields overlapping windows.
func HoppingWindows(size, advance time.Duration) TimeWindows {
	return TimeWindows{
		size:    size,
		advance: advance,
		retention: LegacyRetention{
			Maintain:        defaultMaintain,
			SegmentInterval: defaultSegmentInterval(defaultMaintain),
		},
	}
}

// WithGrace sets how long after a window ends late records are still
// accepted into it.
func (w TimeWindows) WithGrace(grace time.Duration) TimeWindows {
	w.grace = grace
	return w
}

// WithRetention states the total store retention directly, replacing any
// legacy maintain/segment configuration. Segmentation is then left to the
// store engine.
func (w TimeWindows) WithRetention(retention time.Duration) TimeWindows {
	w.retention = ExplicitRetention{Retention: retention}
	return w
}

// WithLegacyRetention configures retention the old way: a maintain duration
// plus an explicit segment interval.
func (w TimeWindows) WithLegacyRetention(maintain, segmentInterval time.Duration) TimeWindows {
	w.retention = LegacyRetention{Maintain: maintain, SegmentInterval: segmentInterval}
	return w
}

func (w TimeWindows) Size() time.Duration    { return w.size }
func (w TimeWindows) Advance() time.Duration { return w.advance }
func (w TimeWindows) Grace() time.Duration   { return w.grace }

// Retention returns the active retention source.
func (w TimeWindows) Retention() RetentionSource { return w.retention }

func (w TimeWindows) validate() error {
	if w.size <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %v", ErrInvalidWindows, w.size)
	}
	if w.advance <= 0 || w.advance > w.size {
		return fmt.Errorf("%w: advance must be in (0, %v], got %v", ErrInvalidWindows, w.size, w.advance)
	}
	if w.grace < 0 {
		return fmt.Errorf("%w: grace must not be negative, got %v", ErrInvalidWindows, w.grace)
	}
	return nil
}

// WindowsFor returns every window that contains ts: one for tumbling
// windows, up to ceil(size/advance) for hopping windows. Window boundaries
// are aligned to the epoch in milliseconds.
func (w TimeWindows) WindowsFor(ts time.Time) []Window {
	tsMs := ts.UnixMilli()
	sizeMs := w.size.Milliseconds()
	advanceMs := w.advance.Milliseconds()

	first := tsMs - sizeMs + advanceMs
	if first < 0 {
		first = 0
	}
	first = first / advanceMs * advanceMs

	var windows []Window
	for start := first; start <= tsMs; start += advanceMs {
		windows = append(windows, Window{
			Start: time.UnixMilli(start).UTC(),
			End:   time.UnixMilli(start + sizeMs).UTC(),
		})
	}
	return windows
}

// WindowKey addresses one aggregate cell: the record key plus the start of
// the window the cell belongs to. Records with equal keys but different
// window starts land in distinct cells.
type WindowKey[K any] struct {
	Key   K
	Start time.Time
}
