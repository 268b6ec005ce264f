package emit

import "context"

// Emitter receives observability events. Implementations must be
// non-blocking and thread-safe: Emit may be called concurrently from many
// engine goroutines and from the materializer's single command-processor
// goroutine alike, and must never slow either down.
type Emitter interface {
	// Emit sends a single event. Must not block or panic.
	Emit(event Event)

	// EmitBatch sends multiple events in original order. Returns error
	// only on catastrophic failure (e.g. misconfiguration); per-event
	// delivery failures should be logged internally, not returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are delivered, or ctx is
	// done. Safe to call more than once.
	Flush(ctx context.Context) error
}
