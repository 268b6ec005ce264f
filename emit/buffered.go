package emit

import (
	"context"
	"sync"
)

// BufferedEmitter stores events in memory, keyed by Subsystem, for tests
// and interactive debugging. Not meant for long-running production use
// (unbounded growth) — see NewLogEmitter/NewOTelEmitter for those.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

func (b *BufferedEmitter) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[e.Subsystem] = append(b.events[e.Subsystem], e)
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of all events recorded for subsystem, in
// emission order.
func (b *BufferedEmitter) History(subsystem string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.events[subsystem]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Clear discards events for subsystem, or all events if subsystem is "".
func (b *BufferedEmitter) Clear(subsystem string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subsystem == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, subsystem)
}
