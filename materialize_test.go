package windstream

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/calluna/windstream/serde"
)

func TestResolveWindowStore(t *testing.T) {
	t.Run("explicit retention is kept", func(t *testing.T) {
		windows := TumblingWindows(5 * time.Second).WithRetention(time.Hour)
		mat := MaterializedAs[string, int64]("counts")

		cfg, err := resolveWindowStore(windows, mat)
		assert.NoError(t, err)
		assert.Equal(t, "counts", cfg.Name)
		assert.Equal(t, time.Hour, cfg.Retention)
		assert.Equal(t, 5*time.Second, cfg.WindowSize)
		// Explicit retention leaves segmentation to the store engine.
		assert.Equal(t, time.Duration(0), cfg.SegmentInterval)
		assert.False(t, cfg.RetainDuplicates)
	})

	t.Run("explicit retention below size plus grace fails", func(t *testing.T) {
		windows := TumblingWindows(5 * time.Second).WithRetention(4 * time.Second)
		mat := MaterializedAs[string, int64]("counts")

		_, err := resolveWindowStore(windows, mat)
		assert.Error(t, err)

		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "counts", cfgErr.StoreName)
		assert.Equal(t, 5*time.Second, cfgErr.WindowSize)
		assert.Equal(t, time.Duration(0), cfgErr.Grace)
		assert.Equal(t, 4*time.Second, cfgErr.Retention)
		assert.True(t, strings.Contains(err.Error(), "size=[5000ms], grace=[0ms], retention=[4000ms]"))
	})

	t.Run("grace extends the retention bound", func(t *testing.T) {
		windows := TumblingWindows(5 * time.Second).
			WithGrace(2 * time.Second).
			WithRetention(6 * time.Second)
		mat := MaterializedAs[string, int64]("counts")

		_, err := resolveWindowStore(windows, mat)
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, 2*time.Second, cfgErr.Grace)

		windows = windows.WithRetention(7 * time.Second)
		cfg, err := resolveWindowStore(windows, mat)
		assert.NoError(t, err)
		assert.Equal(t, 7*time.Second, cfg.Retention)
	})

	t.Run("legacy retention carries its segment interval", func(t *testing.T) {
		windows := TumblingWindows(5 * time.Second).
			WithLegacyRetention(time.Hour, 10*time.Minute)
		mat := MaterializedAs[string, int64]("counts")

		cfg, err := resolveWindowStore(windows, mat)
		assert.NoError(t, err)
		assert.Equal(t, time.Hour, cfg.Retention)
		assert.Equal(t, 10*time.Minute, cfg.SegmentInterval)
	})

	t.Run("legacy maintain below size plus grace fails", func(t *testing.T) {
		windows := TumblingWindows(5 * time.Second).
			WithGrace(2 * time.Second).
			WithLegacyRetention(6*time.Second, time.Minute)
		mat := MaterializedAs[string, int64]("counts")

		_, err := resolveWindowStore(windows, mat)
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, 6*time.Second, cfgErr.Retention)
	})

	t.Run("default windows satisfy the bound", func(t *testing.T) {
		windows := TumblingWindows(time.Minute)
		mat := MaterializedAs[string, int64]("counts")

		cfg, err := resolveWindowStore(windows, mat)
		assert.NoError(t, err)
		assert.Equal(t, defaultMaintain, cfg.Retention)
		assert.Equal(t, defaultMaintain/2, cfg.SegmentInterval)
	})

	t.Run("invalid windows fail before the retention check", func(t *testing.T) {
		windows := TumblingWindows(0).WithRetention(time.Hour)
		mat := MaterializedAs[string, int64]("counts")

		_, err := resolveWindowStore(windows, mat)
		assert.IsError(t, err, ErrInvalidWindows)
	})

	t.Run("logging and caching flags pass through", func(t *testing.T) {
		windows := TumblingWindows(time.Minute)

		mat := MaterializedAs[string, int64]("counts").
			WithLoggingEnabled(map[string]string{"retention.ms": "123"}).
			WithCachingDisabled()
		cfg, err := resolveWindowStore(windows, mat)
		assert.NoError(t, err)
		assert.True(t, cfg.LoggingEnabled)
		assert.Equal(t, "123", cfg.LogConfig["retention.ms"])
		assert.False(t, cfg.CachingEnabled)

		mat = MaterializedAs[string, int64]("counts").WithLoggingDisabled()
		cfg, err = resolveWindowStore(windows, mat)
		assert.NoError(t, err)
		assert.False(t, cfg.LoggingEnabled)
	})
}

func TestResolveWindowStoreSupplier(t *testing.T) {
	t.Run("supplier parameters are taken verbatim", func(t *testing.T) {
		supplier := &testSupplier{
			name:             "custom",
			retention:        time.Second, // Deliberately below size + grace.
			windowSize:       time.Minute,
			segmentInterval:  5 * time.Second,
			retainDuplicates: true,
		}
		windows := TumblingWindows(time.Minute).WithGrace(time.Minute)
		mat := MaterializedWith[string, int64](serde.String, serde.Int64).
			WithStoreSupplier(supplier)

		cfg, err := resolveWindowStore(windows, mat)
		assert.NoError(t, err)
		assert.Equal(t, "custom", cfg.Name)
		assert.Equal(t, time.Second, cfg.Retention)
		assert.Equal(t, time.Minute, cfg.WindowSize)
		assert.Equal(t, 5*time.Second, cfg.SegmentInterval)
		assert.True(t, cfg.RetainDuplicates)
	})

	t.Run("supplier bypasses window validation", func(t *testing.T) {
		windows := TumblingWindows(0)
		mat := MaterializedWith[string, int64](serde.String, serde.Int64).
			WithStoreSupplier(&testSupplier{name: "custom"})

		_, err := resolveWindowStore(windows, mat)
		assert.NoError(t, err)
	})
}

func TestMaterializedDefaults(t *testing.T) {
	mat := MaterializedWith[string, int64](serde.String, serde.Int64)
	assert.True(t, mat.loggingEnabled)
	assert.True(t, mat.cachingEnabled)
	assert.False(t, mat.Queryable())
	assert.Equal(t, "", mat.StoreName())

	named := MaterializedAs[string, int64]("counts")
	assert.True(t, named.Queryable())
	assert.Equal(t, "counts", named.StoreName())

	supplied := MaterializedWith[string, int64](serde.String, serde.Int64).
		WithStoreSupplier(&testSupplier{name: "custom"})
	assert.True(t, supplied.Queryable())
}

type testSupplier struct {
	name             string
	retention        time.Duration
	windowSize       time.Duration
	segmentInterval  time.Duration
	retainDuplicates bool
}

func (s *testSupplier) Name() string                   { return s.name }
func (s *testSupplier) RetentionPeriod() time.Duration { return s.retention }
func (s *testSupplier) WindowSize() time.Duration      { return s.windowSize }
func (s *testSupplier) SegmentInterval() time.Duration { return s.segmentInterval }
func (s *testSupplier) RetainDuplicates() bool         { return s.retainDuplicates }

func (s *testSupplier) Backend(name string, partition int32) (StoreBackend, error) {
	return NewMemoryBackend(&WindowStoreConfig{
		Name:      name,
		Retention: s.retention,
	}, partition)
}
