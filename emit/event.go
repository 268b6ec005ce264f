// Package emit provides event emission and observability for the engine
// and materializer.
package emit

import "time"

// Event is an observability event emitted by the engine or the
// materializer during a compute, transaction commit, or materialization.
type Event struct {
	// Subsystem identifies the emitting component: "dice" or
	// "materializer".
	Subsystem string

	// Key is the human-readable identity of the key or path this event
	// concerns (Key.String() or apath.Path.String()).
	Key string

	// Version is the engine version this event pertains to, or -1 if
	// not applicable.
	Version int64

	// Kind is a short event category, e.g. "early_cutoff", "cycle",
	// "invalidate", "materialize", "ttl_expired", "clean".
	Kind string

	// Msg is a human-readable description.
	Msg string

	// Meta carries structured fields specific to Kind.
	Meta map[string]interface{}

	// At is when the event occurred.
	At time.Time
}
