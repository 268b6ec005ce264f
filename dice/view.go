package dice

import (
	"context"

	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/version"
)

// View is a read-only handle pinned to one version of the graph: every
// Compute/ComputeOpaque/Project issued through it sees a stable snapshot
// even if other goroutines commit new transactions concurrently. Close
// releases the pinned version so the engine can eventually account for how
// far behind the oldest live reader is (version.Tracker.OldestOutstanding).
type View struct {
	engine *Engine
	guard  *version.Guard
}

// Version returns the version this view is pinned to.
func (v *View) Version() version.Number { return v.guard.Version() }

// Compute resolves key at the view's pinned version.
func (v *View) Compute(ctx context.Context, key dicekey.Key) (dicekey.Value, error) {
	val, _, err := v.engine.computeAt(ctx, v.guard.Version(), key, nil)
	return val, err
}

// ComputeOpaque resolves key without recording a dependency (there is no
// enclosing key at the top level to attribute one to).
func (v *View) ComputeOpaque(ctx context.Context, key dicekey.Key) (*Handle, error) {
	val, idx, err := v.engine.computeAt(ctx, v.guard.Version(), key, nil)
	if err != nil {
		return nil, err
	}
	return &Handle{engine: v.engine, owner: noopRecorder{}, v: v.guard.Version(), idx: idx, key: key, value: val}, nil
}

// Project derives a sub-value from h via pk.
func (v *View) Project(ctx context.Context, h *Handle, pk dicekey.ProjectionKey) (dicekey.Value, error) {
	val, _, err := v.engine.resolveProjection(ctx, v.guard.Version(), h, pk, nil)
	return val, err
}

// Close releases this view's pin on its version.
func (v *View) Close() { v.guard.Release() }
