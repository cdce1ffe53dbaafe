package progress

import "context"

// Sink consumes progress events one at a time in emission order.
// Implementations must honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// worker stays agnostic about how events are delivered or persisted.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}
