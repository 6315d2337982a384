package windstream

import (
	"context"

	"go.uber.org/multierr"
)

var _ = InputProcessor[any, any](&ProcessorNode[any, any, any, any]{})

// ProcessorNode wraps a user processor and wires it to its downstream
// nodes and state stores.
type ProcessorNode[Kin, Vin, Kout, Vout any] struct {
	userProcessor Processor[Kin, Vin, Kout, Vout]
	pctx          *internalProcessorContext[Kout, Vout]
}

func newProcessorNode[Kin, Vin, Kout, Vout any](
	build ProcessorBuilder[Kin, Vin, Kout, Vout],
	stores map[string]Store,
	clock *recordClock,
) *ProcessorNode[Kin, Vin, Kout, Vout] {
	return &ProcessorNode[Kin, Vin, Kout, Vout]{
		userProcessor: build(),
		pctx: &internalProcessorContext[Kout, Vout]{
			outputs: map[string]InputProcessor[Kout, Vout]{},
			stores:  stores,
			clock:   clock,
		},
	}
}

func (p *ProcessorNode[Kin, Vin, Kout, Vout]) Process(ctx context.Context, k Kin, v Vin) error {
	if err := p.userProcessor.Process(ctx, k, v); err != nil {
		return err
	}

	return multierr.Combine(p.pctx.drainErrors()...)
}

func (p *ProcessorNode[Kin, Vin, Kout, Vout]) Init() error {
	return p.userProcessor.Init(p.pctx)
}

func (p *ProcessorNode[Kin, Vin, Kout, Vout]) Close() error {
	return p.userProcessor.Close()
}

func (p *ProcessorNode[Kin, Vin, Kout, Vout]) addChild(name string, child InputProcessor[Kout, Vout]) {
	p.pctx.outputs[name] = child
}
