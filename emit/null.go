package emit

import "context"

// NullEmitter discards every event. Useful as the zero-overhead default
// for unit tests and for production deployments that drive observability
// from the shared metrics package instead.
type NullEmitter struct{}

func (NullEmitter) Emit(Event)                               {}
func (NullEmitter) EmitBatch(context.Context, []Event) error { return nil }
func (NullEmitter) Flush(context.Context) error              { return nil }
