package windstream

import (
	"context"
	"fmt"
	"time"
)

type internalProcessorContext[Kout any, Vout any] struct {
	outputs map[string]InputProcessor[Kout, Vout]
	stores  map[string]Store
	clock   *recordClock

	outputErrors []error
}

func (c *internalProcessorContext[Kout, Vout]) drainErrors() []error {
	res := c.outputErrors
	c.outputErrors = nil
	return res
}

func (c *internalProcessorContext[Kout, Vout]) Forward(ctx context.Context, k Kout, v Vout) {
	for name, p := range c.outputs {
		if err := p.Process(ctx, k, v); err != nil {
			c.outputErrors = append(c.outputErrors, fmt.Errorf("forward to node %s: %w", name, err))
		}
	}
}

func (c *internalProcessorContext[Kout, Vout]) ForwardTo(ctx context.Context, k Kout, v Vout, childName string) {
	if p, ok := c.outputs[childName]; ok {
		if err := p.Process(ctx, k, v); err != nil {
			c.outputErrors = append(c.outputErrors, fmt.Errorf("forward to node %s: %w", childName, err))
		}
	}
}

func (c *internalProcessorContext[Kout, Vout]) GetStore(name string) Store {
	return c.stores[name]
}

func (c *internalProcessorContext[Kout, Vout]) Timestamp() time.Time {
	return c.clock.timestamp
}

func (c *internalProcessorContext[Kout, Vout]) StreamTime() time.Time {
	return c.clock.streamTime
}
