package dice

import (
	"context"
	"sync"

	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/emit"
	"github.com/forgelab/dice/version"
)

// StatsSink receives engine instrumentation counters. Implemented by the
// shared metrics package so this package does not need to import
// Prometheus directly (the same dependency-inversion the teacher used for
// its own WithMetrics option).
type StatsSink interface {
	IncEvaluatorCall()
	IncEarlyCutoff()
	IncCheckDepsMiss()
	IncCycle()
	SetInFlight(n int)
}

type noopStats struct{}

func (noopStats) IncEvaluatorCall()  {}
func (noopStats) IncEarlyCutoff()    {}
func (noopStats) IncCheckDepsMiss()  {}
func (noopStats) IncCycle()          {}
func (noopStats) SetInFlight(int)    {}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithEmitter attaches an event sink for lifecycle diagnostics.
func WithEmitter(e emit.Emitter) Option {
	return func(eng *Engine) { eng.emitter = e }
}

// WithStats attaches an instrumentation sink.
func WithStats(s StatsSink) Option {
	return func(eng *Engine) { eng.stats = s }
}

// Engine is the incremental computation graph: a memoizing, versioned
// cache over an Evaluator, implementing spec.md §4's compute/compute_opaque
// /project contract and §4.1.5's transactional input updates.
type Engine struct {
	interner  *dicekey.Interner
	storage   *storage
	versions  *version.Tracker
	evaluator Evaluator
	emitter   emit.Emitter
	stats     StatsSink

	tasksMu sync.Mutex
	tasks   map[taskKey]*task
}

type taskKey struct {
	v   version.Number
	idx dicekey.Index
}

// New constructs an Engine driven by the given Evaluator.
func New(evaluator Evaluator, opts ...Option) *Engine {
	e := &Engine{
		interner:  dicekey.NewInterner(),
		storage:   newStorage(),
		versions:  version.NewTracker(),
		evaluator: evaluator,
		emitter:   emit.NullEmitter{},
		stats:     noopStats{},
		tasks:     make(map[taskKey]*task),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewView opens a read view pinned to the current tip version. Close must
// be called when the caller is done with it.
func (e *Engine) NewView() *View {
	return &View{engine: e, guard: e.versions.AcquireGuard()}
}

// NewUpdater opens a transaction for staging Invalidate/UpdateValue calls.
func (e *Engine) NewUpdater() *Updater {
	return &Updater{engine: e, changes: make(map[dicekey.Index]change)}
}

// computeAt resolves key at version v along request chain, returning its
// value, its interned index, and any error (including *CycleError and
// ErrCancelled).
func (e *Engine) computeAt(ctx context.Context, v version.Number, key dicekey.Key, chain *chainNode) (dicekey.Value, dicekey.Index, error) {
	idx := e.interner.Intern(key)
	newChain, err := pushChain(chain, key)
	if err != nil {
		e.stats.IncCycle()
		e.emitter.Emit(emit.Event{Subsystem: "dice", Key: key.String(), Version: int64(v), Kind: "cycle", Msg: err.Error()})
		return nil, idx, err
	}

	outcome, node := e.storage.classify(idx, v)
	switch outcome {
	case outcomeMatch:
		return node.value, idx, nil
	case outcomeCheckDeps:
		if _, isProjection := key.(projectionCompositeKey); !isProjection {
			if val, ok, cdErr := e.tryCheckDeps(ctx, v, idx, node, newChain); cdErr != nil {
				return nil, idx, cdErr
			} else if ok {
				e.stats.IncEarlyCutoff()
				e.emitter.Emit(emit.Event{Subsystem: "dice", Key: key.String(), Version: int64(v), Kind: "early_cutoff"})
				return val, idx, nil
			}
			e.stats.IncCheckDepsMiss()
		}
		// projections and CheckDeps misses fall through to a fresh compute.
	}
	return e.computeFresh(ctx, v, idx, key, newChain)
}

// tryCheckDeps recursively resolves each of node's recorded dependencies at
// v and asks whether each one's value is still the same one node saw when
// it last computed (spec.md §4.1.2's CheckDeps algorithm). If every
// dependency checks out, node's history is extended to cover v without
// invoking the evaluator and (val, true, nil) is returned.
func (e *Engine) tryCheckDeps(ctx context.Context, v version.Number, idx dicekey.Index, node *graphNode, chain *chainNode) (dicekey.Value, bool, error) {
	computedAt, ok := e.storage.computedFrom(idx)
	if !ok {
		return nil, false, nil
	}
	for _, depIdx := range node.deps {
		depKey, ok := e.interner.TryLookup(depIdx)
		if !ok {
			return nil, false, nil
		}
		if _, _, err := e.computeAt(ctx, v, depKey, chain); err != nil {
			return nil, false, err
		}
		depNode, ok := e.storage.get(depIdx)
		if !ok {
			return nil, false, nil
		}
		r, ok := depNode.hist.RangeForVersion(computedAt)
		if !ok || !r.Contains(v) {
			return nil, false, nil
		}
	}
	e.storage.extendForCheckDeps(idx, v)
	return node.value, true, nil
}

// computeFresh runs (or joins an already-running) evaluation of idx at v,
// guaranteeing at most one in-flight evaluator call per (key, version)
// (spec.md §4.1.2, invariant 1).
func (e *Engine) computeFresh(ctx context.Context, v version.Number, idx dicekey.Index, key dicekey.Key, chain *chainNode) (dicekey.Value, dicekey.Index, error) {
	tk := taskKey{v: v, idx: idx}

	e.tasksMu.Lock()
	t, exists := e.tasks[tk]
	if !exists {
		taskCtx, cancel := context.WithCancel(context.Background())
		t = newTask(cancel)
		e.tasks[tk] = t
		t.attach()
		e.tasksMu.Unlock()
		e.stats.SetInFlight(len(e.tasks))
		go e.runEvaluation(taskCtx, v, idx, key, chain, t, tk)
	} else {
		t.attach()
		e.tasksMu.Unlock()
	}
	defer t.detach()

	val, _, err := t.wait(ctx)
	if err != nil {
		return nil, idx, err
	}
	return val, idx, nil
}

func (e *Engine) runEvaluation(taskCtx context.Context, v version.Number, idx dicekey.Index, key dicekey.Key, chain *chainNode, t *task, tk taskKey) {
	defer func() {
		e.tasksMu.Lock()
		delete(e.tasks, tk)
		n := len(e.tasks)
		e.tasksMu.Unlock()
		e.stats.SetInFlight(n)
	}()
	if !t.markComputing() {
		return
	}

	var value dicekey.Value
	var deps []dicekey.Index
	var err error

	if pck, isProjection := key.(projectionCompositeKey); isProjection {
		value, err = e.computeProjectionValue(taskCtx, v, pck, chain)
		if err == nil {
			// Registering the underlying key as this node's sole recorded
			// dependency does not enable the CheckDeps fast path for
			// projections (computeAt always routes them straight to a
			// fresh recompute instead, see projection.go) — it exists
			// solely so storage's reverse-edge table closes this node's
			// range whenever the underlying key changes, the same way it
			// would for an ordinary dependent.
			deps = []dicekey.Index{e.interner.Intern(pck.underlying)}
		}
	} else {
		e.stats.IncEvaluatorCall()
		evalCtx := &Context{engine: e, v: v, chain: chain}
		value, err = e.evaluator.Evaluate(evalCtx, key)
		deps = evalCtx.snapshotDeps()
	}

	if taskCtx.Err() != nil {
		t.failOrCancel(nil)
		e.emitter.Emit(emit.Event{Subsystem: "dice", Key: key.String(), Version: int64(v), Kind: "cancelled"})
		return
	}
	if err != nil {
		t.failOrCancel(err)
		e.emitter.Emit(emit.Event{Subsystem: "dice", Key: key.String(), Version: int64(v), Kind: "evaluator_error", Msg: err.Error()})
		return
	}

	changed := true
	if prev, ok := e.storage.get(idx); ok && !prev.hist.IsEmpty() {
		changed = !key.ValuesEqual(prev.value, value)
	}
	e.storage.commitResult(idx, v, value, deps, changed)
	t.publish(value, deps)
}

// computeProjectionValue resolves a projection composite key by re-reading
// the (likely cached) underlying value and reapplying Project; see
// projection.go for why this key never gets a CheckDeps fast path.
func (e *Engine) computeProjectionValue(ctx context.Context, v version.Number, pck projectionCompositeKey, chain *chainNode) (dicekey.Value, error) {
	underlying, _, err := e.computeAt(ctx, v, pck.underlying, chain)
	if err != nil {
		return nil, err
	}
	return pck.proj.Project(underlying), nil
}

func (e *Engine) resolveProjection(ctx context.Context, v version.Number, h *Handle, pk dicekey.ProjectionKey, chain *chainNode) (dicekey.Value, dicekey.Index, error) {
	pck := projectionCompositeKey{underlying: h.key, proj: pk}
	return e.computeAt(ctx, v, pck, chain)
}
