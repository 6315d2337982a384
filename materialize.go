package windstream

import (
	"fmt"
	"time"
)

// WindowStoreConfig is the resolved specification handed to the store
// layer: everything it needs to build one window store. It is created fresh
// per operation call and never mutated afterwards.
type WindowStoreConfig struct {
	Name       string
	Retention  time.Duration
	WindowSize time.Duration

	// SegmentInterval is the physical segmentation of stored windows.
	// Zero leaves the choice to the store engine.
	SegmentInterval time.Duration

	// RetainDuplicates keeps multiple values per (key, window) cell.
	// Aggregation stores never retain duplicates; only a custom supplier
	// can turn this on.
	RetainDuplicates bool

	LoggingEnabled bool
	LogConfig      map[string]string
	CachingEnabled bool
}

// resolveWindowStore reconciles a window specification and a materialized
// config into one store configuration.
//
// A window's state must stay queryable for at least as long as late records
// for it can legally arrive, so retention >= size + grace is enforced on
// both retention paths. A custom store supplier bypasses resolution
// entirely; its declared parameters are taken verbatim and the bound is the
// supplier author's responsibility.
//
// Resolution is pure: no I/O, no mutation of shared state.
func resolveWindowStore[K, V any](windows TimeWindows, mat *Materialized[K, V]) (*WindowStoreConfig, error) {
	if supplier := mat.supplier; supplier != nil {
		return &WindowStoreConfig{
			Name:             supplier.Name(),
			Retention:        supplier.RetentionPeriod(),
			WindowSize:       supplier.WindowSize(),
			SegmentInterval:  supplier.SegmentInterval(),
			RetainDuplicates: supplier.RetainDuplicates(),
			LoggingEnabled:   mat.loggingEnabled,
			LogConfig:        mat.logConfig,
			CachingEnabled:   mat.cachingEnabled,
		}, nil
	}

	if err := windows.validate(); err != nil {
		return nil, err
	}

	bound := windows.size + windows.grace

	cfg := &WindowStoreConfig{
		Name:           mat.storeName,
		WindowSize:     windows.size,
		LoggingEnabled: mat.loggingEnabled,
		LogConfig:      mat.logConfig,
		CachingEnabled: mat.cachingEnabled,
	}

	switch src := windows.retention.(type) {
	case ExplicitRetention:
		if src.Retention < bound {
			return nil, &ConfigurationError{
				StoreName:  mat.storeName,
				WindowSize: windows.size,
				Grace:      windows.grace,
				Retention:  src.Retention,
			}
		}
		cfg.Retention = src.Retention

	case LegacyRetention:
		// Old-style configuration declared segmentation itself; the
		// maintain duration is the retention and must not be
		// reinterpreted.
		if src.Maintain < bound {
			return nil, &ConfigurationError{
				StoreName:  mat.storeName,
				WindowSize: windows.size,
				Grace:      windows.grace,
				Retention:  src.Maintain,
			}
		}
		cfg.Retention = src.Maintain
		cfg.SegmentInterval = src.SegmentInterval

	default:
		return nil, fmt.Errorf("windstream: unknown retention source %T", windows.retention)
	}

	return cfg, nil
}
