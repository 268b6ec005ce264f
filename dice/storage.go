package dice

import (
	"sync"

	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/version"
)

// lookupOutcome is the result of classifying a key against a requested
// version, per spec.md §3's three-way lookup: Match (value already known
// good at v), CheckDeps (value known at an earlier version, dependencies
// must be reverified), or Compute (no usable history, must evaluate).
type lookupOutcome int

const (
	outcomeCompute lookupOutcome = iota
	outcomeMatch
	outcomeCheckDeps
)

// storage owns the graph's node table and the reverse-dependency ("who
// depends on me") edges needed to propagate an invalidation outward. It is
// accessed only through short, lock-held critical sections that never call
// back into evaluator code — the Go rendering of spec.md §5's "state actor
// accessed through request messages, never holding the graph lock across
// an await point" — so a plain Mutex-guarded map gives the same
// deadlock-avoidance guarantee a channel-based mailbox would, without the
// extra machinery (grounded in the teacher's own store.MemStore/Frontier
// mutex-guarded-map idiom; the materializer's command processor is where a
// genuine unbounded mailbox earns its keep, see materializer/processor.go).
type storage struct {
	mu         sync.Mutex
	nodes      map[dicekey.Index]*graphNode
	dependents map[dicekey.Index]map[dicekey.Index]struct{}
}

func newStorage() *storage {
	return &storage{
		nodes:      make(map[dicekey.Index]*graphNode),
		dependents: make(map[dicekey.Index]map[dicekey.Index]struct{}),
	}
}

func (s *storage) classify(idx dicekey.Index, v version.Number) (lookupOutcome, *graphNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[idx]
	if !ok || n.hist.IsEmpty() {
		return outcomeCompute, n
	}
	if n.hist.Contains(v) {
		return outcomeMatch, n
	}
	return outcomeCheckDeps, n
}

func (s *storage) get(idx dicekey.Index) (*graphNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[idx]
	return n, ok
}

func (s *storage) computedFrom(idx dicekey.Index) (version.Number, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[idx]
	if !ok {
		return 0, false
	}
	return n.hist.CurrentFrom()
}

// nodeLocked returns (creating if absent) idx's node. Caller must hold mu.
func (s *storage) nodeLocked(idx dicekey.Index) *graphNode {
	n, ok := s.nodes[idx]
	if !ok {
		n = newGraphNode()
		s.nodes[idx] = n
	}
	return n
}

// rewireDepsLocked updates the reverse-edge table for idx going from
// oldDeps to newDeps. Caller must hold mu.
func (s *storage) rewireDepsLocked(idx dicekey.Index, oldDeps, newDeps []dicekey.Index) {
	oldSet := make(map[dicekey.Index]struct{}, len(oldDeps))
	for _, d := range oldDeps {
		oldSet[d] = struct{}{}
	}
	newSet := make(map[dicekey.Index]struct{}, len(newDeps))
	for _, d := range newDeps {
		newSet[d] = struct{}{}
	}
	for d := range oldSet {
		if _, still := newSet[d]; !still {
			delete(s.dependents[d], idx)
		}
	}
	for d := range newSet {
		if s.dependents[d] == nil {
			s.dependents[d] = make(map[dicekey.Index]struct{})
		}
		s.dependents[d][idx] = struct{}{}
	}
}

// closeTransitiveLocked closes idx's current range at v and recurses into
// every known dependent, so that a change (or potential change) at idx is
// never hidden from a transitive consumer by a stale, still-open range.
// Caller must hold mu.
func (s *storage) closeTransitiveLocked(idx dicekey.Index, v version.Number, seen map[dicekey.Index]bool) {
	if seen[idx] {
		return
	}
	seen[idx] = true
	n := s.nodeLocked(idx)
	n.hist.CloseAt(v)
	for dep := range s.dependents[idx] {
		s.closeTransitiveLocked(dep, v, seen)
	}
}

// extendForCheckDeps marks idx's current value as still valid at v, without
// touching Value or Deps — the early-cutoff path, taken when every recorded
// dependency resolved to the same value it held when idx was last computed.
func (s *storage) extendForCheckDeps(idx dicekey.Index, v version.Number) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeLocked(idx).hist.ExtendOrOpen(v)
}

// commitResult stores the result of a fresh Compute at v. changed indicates
// whether the key's ValuesEqual predicate judged the new value different
// from the node's previous one: false extends the existing range and
// leaves dependents' histories untouched (nothing for them to recheck);
// true opens a new range and closes every transitive dependent's current
// range at v, forcing their next read through CheckDeps instead of a
// trivial Match.
func (s *storage) commitResult(idx dicekey.Index, v version.Number, val dicekey.Value, deps []dicekey.Index, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodeLocked(idx)
	oldDeps := n.deps
	n.value = val
	n.deps = deps
	s.rewireDepsLocked(idx, oldDeps, deps)
	if changed {
		n.hist.OpenNewRange(v)
		seen := map[dicekey.Index]bool{idx: true}
		for dep := range s.dependents[idx] {
			s.closeTransitiveLocked(dep, v, seen)
		}
	} else {
		n.hist.ExtendOrOpen(v)
	}
}

// invalidate marks idx's value as no longer trusted past v (spec.md §4.1.5
// Invalidate): the next read at or after v must run CheckDeps or Compute.
// Every transitive dependent is closed at v too, since whether idx's value
// actually ends up changing is unknown until someone recomputes it.
func (s *storage) invalidate(idx dicekey.Index, v version.Number) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeTransitiveLocked(idx, v, make(map[dicekey.Index]bool))
}

// updateValue seeds idx with a value supplied directly by a transaction
// (spec.md §4.1.5 UpdateValue) rather than computed by an evaluator: a base
// input with no recorded dependencies. key's ValuesEqual predicate decides
// whether this counts as a change for early-cutoff purposes, exactly as a
// fresh Compute would — an UpdateValue that resupplies the same value
// should not force dependents to recompute. Dependents are always closed
// at v regardless, so they run CheckDeps rather than trusting a stale Match.
func (s *storage) updateValue(idx dicekey.Index, v version.Number, key dicekey.Key, val dicekey.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodeLocked(idx)
	changed := true
	if !n.hist.IsEmpty() {
		changed = !key.ValuesEqual(n.value, val)
	}
	oldDeps := n.deps
	n.value = val
	n.deps = nil
	s.rewireDepsLocked(idx, oldDeps, nil)
	if changed {
		n.hist.OpenNewRange(v)
	} else {
		n.hist.ExtendOrOpen(v)
	}
	seen := map[dicekey.Index]bool{idx: true}
	for dep := range s.dependents[idx] {
		s.closeTransitiveLocked(dep, v, seen)
	}
}
