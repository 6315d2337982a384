package windstream

import (
	"context"
	"time"
)

// Node is the type-erased runtime node interface. Generic types are hidden
// inside the implementations; the task only needs lifecycle control.
type Node interface {
	Init() error
	Close() error
}

// InputProcessor covers only a node's input types, so parents can forward
// without knowing their child's output types.
type InputProcessor[K any, V any] interface {
	Process(ctx context.Context, k K, v V) error
}

// Processor is the user-facing processing interface. The implementation may
// retain the ProcessorContext passed into Init and use it to access state
// stores and forward records downstream.
type Processor[Kin, Vin, Kout, Vout any] interface {
	Init(pctx ProcessorContext[Kout, Vout]) error
	Process(ctx context.Context, k Kin, v Vin) error
	Close() error
}

// ProcessorBuilder creates a processor instance for one partition.
type ProcessorBuilder[Kin, Vin, Kout, Vout any] func() Processor[Kin, Vin, Kout, Vout]

// ProcessorContext is handed to a processor at Init time.
type ProcessorContext[Kout any, Vout any] interface {
	// Forward sends a record to all child nodes.
	Forward(ctx context.Context, k Kout, v Vout)
	// ForwardTo sends a record to one named child node.
	ForwardTo(ctx context.Context, k Kout, v Vout, childName string)
	// GetStore returns a state store by name, nil if not attached to
	// this processor.
	GetStore(name string) Store
	// Timestamp is the event time of the record being processed.
	Timestamp() time.Time
	// StreamTime is the highest event time observed by this task so
	// far. It never goes backwards.
	StreamTime() time.Time
}

// recordClock carries per-record event time through a task. The source node
// advances it before forwarding; processors read it through their context.
type recordClock struct {
	timestamp  time.Time
	streamTime time.Time
}

func (c *recordClock) observe(ts time.Time) {
	c.timestamp = ts
	if ts.After(c.streamTime) {
		c.streamTime = ts
	}
}
