package dice

import (
	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/version"
)

// projectionCompositeKey is the engine-internal key a project() call is
// memoized under: the pair of the underlying key and the projection
// applied to it. Its node records the underlying key as its only
// dependency (see engine.go's runEvaluation), which lets invalidations
// reach it through the reverse-edge table; it is still never eligible for
// the CheckDeps fast path — every miss against its CellHistory goes straight to a fresh
// recompute, which simply re-reads the (likely already cached) underlying
// value and reapplies Project. That recompute is what makes fine-grained
// cutoff work: the composite key's own CellHistory only opens a new range
// when Project's *output* actually changes, regardless of how often the
// underlying key recomputes (spec.md §4.1.6, SPEC_FULL.md §3 scenario 3).
type projectionCompositeKey struct {
	underlying dicekey.Key
	proj       dicekey.ProjectionKey
}

func (k projectionCompositeKey) Equal(other dicekey.Key) bool {
	o, ok := other.(projectionCompositeKey)
	return ok && k.underlying.Equal(o.underlying) && k.proj.Equal(o.proj)
}

func (k projectionCompositeKey) Hash() uint64 {
	// Combine with a simple odd-constant mix; collisions are fine, the
	// interner's bucket already falls back to Equal.
	return k.underlying.Hash()*1099511628211 ^ k.proj.Hash()
}

func (k projectionCompositeKey) String() string {
	return k.underlying.String() + "::" + k.proj.String()
}

func (k projectionCompositeKey) ValuesEqual(a, b dicekey.Value) bool {
	return k.proj.ValuesEqual(a, b)
}

// Handle is an opaque reference to another key's computed value, obtained
// via Context.ComputeOpaque or View.ComputeOpaque. Holding a Handle records
// no dependency by itself (spec.md §4.1.6): a dependency is recorded only
// when the Handle is dereferenced with Value, or consumed through Project.
type Handle struct {
	engine *Engine
	owner  depRecorder
	v      version.Number
	idx    dicekey.Index
	key    dicekey.Key
	value  dicekey.Value
}

// Value dereferences the handle, recording a normal value-dependency on
// the underlying key exactly as if the caller had called Compute directly.
func (h *Handle) Value() dicekey.Value {
	h.owner.recordDep(h.idx)
	return h.value
}

// depRecorder is implemented by Context (records a dependency on the
// enclosing key's node) and by a no-op used for top-level View calls that
// have no enclosing key to attribute a dependency to.
type depRecorder interface {
	recordDep(idx dicekey.Index)
}

type noopRecorder struct{}

func (noopRecorder) recordDep(dicekey.Index) {}
