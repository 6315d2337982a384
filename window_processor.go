package windstream

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

// windowAggregateProcessor folds records into per-(key, window) cells of a
// window store and forwards the updated aggregate downstream. All windowed
// operations share it; the apply function carries the operation semantics.
type windowAggregateProcessor[K, V, VR any] struct {
	storeName string
	windows   TimeWindows
	apply     func(k K, v V, acc VR, found bool) VR
	log       logr.Logger

	pctx  ProcessorContext[WindowKey[K], VR]
	store *WindowedKeyValueStore[K, VR]
}

func (p *windowAggregateProcessor[K, V, VR]) Init(pctx ProcessorContext[WindowKey[K], VR]) error {
	p.pctx = pctx
	store, ok := pctx.GetStore(p.storeName).(*WindowedKeyValueStore[K, VR])
	if !ok {
		return fmt.Errorf("%w: window store %s", ErrStoreNotFound, p.storeName)
	}
	p.store = store
	return nil
}

func (p *windowAggregateProcessor[K, V, VR]) Process(ctx context.Context, k K, v V) error {
	ts := p.pctx.Timestamp()
	streamTime := p.pctx.StreamTime()

	for _, window := range p.windows.WindowsFor(ts) {
		// A window stops accepting records once stream time passes its
		// end plus the grace period.
		if !window.End.Add(p.windows.grace).After(streamTime) {
			p.log.V(1).Info("dropping late record",
				"window", window.String(),
				"timestamp", ts.UnixMilli(),
				"streamTime", streamTime.UnixMilli())
			continue
		}

		acc, found, err := p.store.Get(ctx, k, window.Start)
		if err != nil {
			return fmt.Errorf("read aggregate from %s: %w", p.storeName, err)
		}
		next := p.apply(k, v, acc, found)
		if err := p.store.Set(ctx, k, window.Start, next); err != nil {
			return fmt.Errorf("write aggregate to %s: %w", p.storeName, err)
		}
		p.pctx.Forward(ctx, WindowKey[K]{Key: k, Start: window.Start}, next)
	}

	p.store.AdvanceStreamTime(streamTime)
	return nil
}

func (p *windowAggregateProcessor[K, V, VR]) Close() error {
	return nil
}
