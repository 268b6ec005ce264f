package dice

import (
	"context"
	"sync"

	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/version"
)

// Context is the handle an Evaluator uses to issue further requests.
// Every Compute call (and every Value/Project dereference of a Handle)
// appends to the dependency list the engine stores against the evaluating
// key's node once it finishes (spec.md §4.1.1).
type Context struct {
	engine *Engine
	v      version.Number
	chain  *chainNode

	mu   sync.Mutex
	deps []dicekey.Index
}

func (c *Context) recordDep(idx dicekey.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps = append(c.deps, idx)
}

func (c *Context) snapshotDeps() []dicekey.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dicekey.Index, len(c.deps))
	copy(out, c.deps)
	return out
}

// Compute resolves key at the enclosing evaluation's version and records a
// dependency on it.
func (c *Context) Compute(ctx context.Context, key dicekey.Key) (dicekey.Value, error) {
	val, idx, err := c.engine.computeAt(ctx, c.v, key, c.chain)
	if err != nil {
		return nil, err
	}
	c.recordDep(idx)
	return val, nil
}

// ComputeOpaque resolves key but does not record a dependency until the
// returned Handle is dereferenced or projected (spec.md §4.1.6).
func (c *Context) ComputeOpaque(ctx context.Context, key dicekey.Key) (*Handle, error) {
	val, idx, err := c.engine.computeAt(ctx, c.v, key, c.chain)
	if err != nil {
		return nil, err
	}
	return &Handle{engine: c.engine, owner: c, v: c.v, idx: idx, key: key, value: val}, nil
}

// Project derives a sub-value from h via pk, recording a fine-grained
// dependency on the (underlying key, projection) pair rather than on the
// underlying key's full value.
func (c *Context) Project(ctx context.Context, h *Handle, pk dicekey.ProjectionKey) (dicekey.Value, error) {
	val, idx, err := c.engine.resolveProjection(ctx, c.v, h, pk, c.chain)
	if err != nil {
		return nil, err
	}
	c.recordDep(idx)
	return val, nil
}

// Version returns the version this evaluation is pinned to.
func (c *Context) Version() version.Number { return c.v }
