package windstream

import (
	"fmt"

	"github.com/calluna/windstream/serde"
)

// buildWindowedTable materializes one windowed aggregation: it finalizes the
// Materialized config, resolves the store, and registers store and processor
// with the builder. All fallible checks run before the builder is touched,
// so a failed call leaves the topology unchanged.
func buildWindowedTable[K, V, VR any](
	ws *TimeWindowedStream[K, V],
	operation string,
	mat *Materialized[K, VR],
	apply func(k K, v V, acc VR, found bool) VR,
) (*WindowedTable[K, VR], error) {
	tb := ws.tb

	if mat.keySerde.IsZero() {
		mat.keySerde = ws.keySerde
	}
	if mat.valueSerde.IsZero() {
		mat.valueSerde = serde.JSON[VR]()
	}

	windows := ws.windows
	if mat.retentionSet {
		windows = windows.WithRetention(mat.retention)
	}
	if mat.storeName == "" && mat.supplier == nil {
		mat.storeName = tb.NextStoreName(operation)
	}

	cfg, err := resolveWindowStore(windows, mat)
	if err != nil {
		return nil, err
	}

	if _, found := tb.stores[cfg.Name]; found {
		return nil, fmt.Errorf("%w: %s", ErrStoreAlreadyExists, cfg.Name)
	}
	if !parentExists(tb, ws.parent) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, ws.parent)
	}

	backend := mat.backend
	if supplier := mat.supplier; supplier != nil {
		backend = func(cfg *WindowStoreConfig, partition int32) (StoreBackend, error) {
			return supplier.Backend(cfg.Name, partition)
		}
	}

	if err := RegisterWindowStore(tb, cfg, mat.keySerde, mat.valueSerde, backend); err != nil {
		return nil, err
	}

	nodeName := tb.NextName(operation)
	build := func() Processor[K, V, WindowKey[K], VR] {
		return &windowAggregateProcessor[K, V, VR]{
			storeName: cfg.Name,
			windows:   windows,
			apply:     apply,
			log:       tb.log.WithName(nodeName),
		}
	}
	if err := RegisterProcessor(tb, build, nodeName, ws.parent, cfg.Name); err != nil {
		return nil, err
	}

	return &WindowedTable[K, VR]{
		tb:         tb,
		registry:   tb.registry,
		storeName:  cfg.Name,
		nodeName:   nodeName,
		queryable:  mat.queryable,
		keySerde:   mat.keySerde,
		valueSerde: mat.valueSerde,
	}, nil
}

func parentExists(tb *TopologyBuilder, parent string) bool {
	if _, ok := tb.processors[parent]; ok {
		return true
	}
	for _, source := range tb.sources {
		if source.Name == parent {
			return true
		}
	}
	return false
}
