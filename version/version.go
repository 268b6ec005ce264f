// Package version implements the engine's monotonic version counter and the
// per-node CellHistory that records which version ranges a node's current
// value is known to hold for.
package version

import (
	"fmt"
	"math"
)

// Number is a monotonically increasing version identifying a commit of the
// incremental graph. Versions start at 0 (the state before any transaction
// has committed).
type Number int64

// Unbounded is the sentinel upper bound meaning "valid at the current tip":
// a range [from, Unbounded) is still the node's live value.
const Unbounded Number = math.MaxInt64

func (n Number) String() string {
	if n == Unbounded {
		return "+inf"
	}
	return fmt.Sprintf("%d", int64(n))
}

// Range is a half-open version interval [From, To). To == Unbounded means
// the range extends to the current tip.
type Range struct {
	From Number
	To   Number
}

// Contains reports whether v falls within the range.
func (r Range) Contains(v Number) bool {
	if v < r.From {
		return false
	}
	return r.To == Unbounded || v < r.To
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.From, r.To)
}

// CellHistory is the per-node record of the verified version ranges in
// which a node's current value is known to hold (spec.md §3, invariant 4):
// the ranges are disjoint and sorted by From, and once a node has computed
// at least once the slice is never empty.
//
// A single Range always corresponds to exactly one computed value: a new
// Range is opened only when the value changes (OpenNewRange) or the first
// time the node computes; the CheckDeps fast path only ever extends the
// current Range's upper bound (ExtendOrOpen), never splits or merges two
// distinct values together.
type CellHistory struct {
	ranges []Range
}

// New returns an empty CellHistory (a node that has never computed).
func New() *CellHistory {
	return &CellHistory{}
}

// IsEmpty reports whether the node has never computed a value.
func (h *CellHistory) IsEmpty() bool { return len(h.ranges) == 0 }

// Contains reports whether v is covered by any range — the "Match" outcome
// of the engine's lookup algorithm.
func (h *CellHistory) Contains(v Number) bool {
	_, ok := h.RangeForVersion(v)
	return ok
}

// RangeForVersion returns the range containing v, if any.
func (h *CellHistory) RangeForVersion(v Number) (Range, bool) {
	// Ranges are few per node in practice (a node rarely flaps value many
	// times); linear scan from the end favors the common case of querying
	// the most recent range.
	for i := len(h.ranges) - 1; i >= 0; i-- {
		if h.ranges[i].Contains(v) {
			return h.ranges[i], true
		}
	}
	return Range{}, false
}

// CurrentFrom returns the From of the most recent range — the version at
// which the node's current value was (most recently) computed — and true,
// or false if the node has never computed.
func (h *CellHistory) CurrentFrom() (Number, bool) {
	if len(h.ranges) == 0 {
		return 0, false
	}
	return h.ranges[len(h.ranges)-1].From, true
}

// CloseAt closes the current open range's upper bound at v, if the most
// recent range is still open (To == Unbounded). No-op otherwise. Used when
// a transaction commits an Invalidate or UpdateValue against this node: the
// node's value is no longer trusted past v until the next compute confirms
// it one way or another.
func (h *CellHistory) CloseAt(v Number) {
	if len(h.ranges) == 0 {
		return
	}
	last := &h.ranges[len(h.ranges)-1]
	if last.To == Unbounded {
		last.To = v
	}
}

// OpenNewRange closes any open range at v and opens a fresh [v, Unbounded)
// range. Called when a Compute produces a value that differs (per the key's
// ValuesEqual predicate) from the node's previous value, or on a node's
// first ever computation.
func (h *CellHistory) OpenNewRange(v Number) {
	h.CloseAt(v)
	h.ranges = append(h.ranges, Range{From: v, To: Unbounded})
}

// ExtendOrOpen extends the current range to again cover up to Unbounded
// (including v), or opens a fresh range at v if none exists. Called when a
// recomputation at v reproduces the same value (per ValuesEqual) as the
// node's last known value, or when CheckDeps proves the value still holds
// at v without invoking the evaluator at all — in both cases the gap opened
// by an intervening CloseAt was spurious and is healed here.
func (h *CellHistory) ExtendOrOpen(v Number) {
	if len(h.ranges) == 0 {
		h.ranges = append(h.ranges, Range{From: v, To: Unbounded})
		return
	}
	last := &h.ranges[len(h.ranges)-1]
	if last.To == Unbounded {
		return // already covers v and beyond
	}
	last.To = Unbounded
}

// Ranges returns a copy of the current range list, oldest first. Used by
// diagnostics and by the materializer snapshot format's analog for the
// engine (not currently persisted, but exposed for tests and tooling).
func (h *CellHistory) Ranges() []Range {
	out := make([]Range, len(h.ranges))
	copy(out, h.ranges)
	return out
}
