package version

import "sync"

// Tracker owns the engine's global version counter and hands out Guards
// that pin a version so a long-lived read view can be dropped without
// racing a concurrent commit. This supplements spec.md §3's "a read view
// holds a reference count on its version and releases it when dropped"
// with the actual bookkeeping (grounded in the original dice crate's
// impls/core/versions.rs, per SPEC_FULL.md §3).
type Tracker struct {
	mu       sync.Mutex
	current  Number
	refcount map[Number]int
}

// NewTracker creates a Tracker starting at version 0.
func NewTracker() *Tracker {
	return &Tracker{refcount: make(map[Number]int)}
}

// Current returns the current tip version.
func (t *Tracker) Current() Number {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Commit advances the version by one and returns the new tip. Called once
// per transaction commit.
func (t *Tracker) Commit() Number {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current++
	return t.current
}

// Guard pins a version alive for the duration of a read view.
type Guard struct {
	t *Tracker
	v Number
}

// AcquireGuard pins the current tip version and returns a Guard. Release
// must be called exactly once.
func (t *Tracker) AcquireGuard() *Guard {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.current
	t.refcount[v]++
	return &Guard{t: t, v: v}
}

// Version returns the version this guard pins.
func (g *Guard) Version() Number { return g.v }

// Release drops the guard's hold on its version.
func (g *Guard) Release() {
	t := g.t
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refcount[g.v]--
	if t.refcount[g.v] <= 0 {
		delete(t.refcount, g.v)
	}
}

// OldestOutstanding returns the oldest version still pinned by a live
// Guard, and true, or false if no guards are outstanding. Exposed for
// diagnostics and for a future history-compaction pass; the engine itself
// never discards CellHistory ranges (spec.md §3 Lifecycles: nodes persist
// for process lifetime).
func (t *Tracker) OldestOutstanding() (Number, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	found := false
	var oldest Number
	for v, n := range t.refcount {
		if n <= 0 {
			continue
		}
		if !found || v < oldest {
			oldest = v
			found = true
		}
	}
	return oldest, found
}
