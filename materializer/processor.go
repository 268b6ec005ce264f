package materializer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forgelab/dice/cas"
	"github.com/forgelab/dice/emit"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ioLimits bounds how many blocking filesystem/network calls the processor's
// spawned materialization goroutines may run at once (spec §5's "typical
// caps: 100 concurrent reads, 400 concurrent directory listings"). httpRate
// additionally paces HTTP fetch attempts: the concurrency semaphore bounds
// how many fetches run at once, but does nothing to stop them all re-hitting
// the same origin the instant a retry delay elapses, so a request-per-second
// limiter sits in front of it.
type ioLimits struct {
	reads    *semaphore.Weighted
	dirs     *semaphore.Weighted
	httpRate *rate.Limiter
}

func newIOLimits(reads, dirs int64) *ioLimits {
	return &ioLimits{
		reads:    semaphore.NewWeighted(reads),
		dirs:     semaphore.NewWeighted(dirs),
		httpRate: rate.NewLimiter(rate.Limit(50), 50),
	}
}

// processor is the materializer's single long-lived task owning the
// artifact tree (spec §4.2.3). Every public operation enqueues a command;
// the run loop is the tree's only writer, so node state never needs its
// own lock beyond what lets concurrent snapshot reads (status queries,
// walk-driven TTL/cleaner passes) avoid racing a write mid-flight.
type processor struct {
	tree    *tree
	fs      *ProjectFS
	casCli  cas.Client
	emitter emit.Emitter
	stats   StatsSink
	limits  *ioLimits

	// ttlBatchSize bounds how many digests one refresh_ttls pass sends to
	// the CAS client at once (spec §9: batching size is left to
	// implementers; config.TTLBatchSize is how it's tuned in practice).
	ttlBatchSize int

	// assumedCASTTL is how long a CAS-held digest is assumed to stay alive
	// after a successful fetch or extend_ttl, since the CAS client
	// interface never reports a remaining TTL back to the caller.
	assumedCASTTL time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []command
	closed bool
}

func newProcessor(fs *ProjectFS, casCli cas.Client, emitter emit.Emitter, stats StatsSink, limits *ioLimits, ttlBatchSize int, assumedCASTTL time.Duration) *processor {
	p := &processor{
		tree:          newTree(),
		fs:            fs,
		casCli:        casCli,
		emitter:       emitter,
		stats:         stats,
		limits:        limits,
		ttlBatchSize:  ttlBatchSize,
		assumedCASTTL: assumedCASTTL,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// send enqueues cmd. The queue is an unbounded slice rather than a
// fixed-capacity channel specifically so a materialization goroutine can
// enqueue an extensionCmd (a sub-declaration) without risking deadlock
// against the very processor it is waiting on (spec §4.2.3).
func (p *processor) send(cmd command) {
	p.mu.Lock()
	p.queue = append(p.queue, cmd)
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *processor) run() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		cmd := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		p.dispatch(cmd)
	}
}

func (p *processor) stop() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *processor) dispatch(cmd command) {
	switch c := cmd.(type) {
	case declareCmd:
		p.handleDeclare(c)
	case ensureCmd:
		p.handleEnsure(c)
	case invalidateCmd:
		p.handleInvalidate(c)
	case statusCmd:
		p.handleStatus(c)
	case refreshCmd:
		p.handleRefresh(c)
	case cleanCmd:
		p.handleClean(c)
	case extensionCmd:
		p.handleExtension(c)
	case completionCmd:
		p.handleCompletion(c)
	case dumpCmd:
		p.handleDump(c)
	}
}

func (p *processor) handleDeclare(c declareCmd) {
	n := p.tree.leafFor(c.path)
	n.mu.Lock()
	if n.stage == Materialized && methodKind(n.method) != methodKind(c.method) {
		// Declaring a different method over a materialized path means the
		// old on-disk content no longer matches the declaration; schedule
		// its removal so a later ensure doesn't serve stale bytes. Removal
		// happens here (we already hold no node lock during fs I/O? we do
		// hold it — AtomicWrite/Remove don't block on the node, only disk).
		_ = p.fs.Remove(c.path.String())
	}
	n.method = c.method
	n.priorMethod = c.method
	n.permanentErr = nil
	n.stage = Declared
	n.mu.Unlock()

	p.emitter.Emit(emit.Event{Subsystem: "materializer", Key: c.path.String(), Version: -1, Kind: "declare", Msg: methodKind(c.method)})
	c.reply <- nil
}

func (p *processor) handleEnsure(c ensureCmd) {
	n, ok := p.tree.lookup(c.path)
	if !ok {
		c.reply <- &UserError{Op: "ensure", Path: c.path.String(), Message: "path was never declared"}
		return
	}

	n.mu.Lock()
	switch n.stage {
	case Absent:
		n.mu.Unlock()
		c.reply <- &UserError{Op: "ensure", Path: c.path.String(), Message: "path was never declared"}
		return
	case Materialized:
		n.lastAccessTime = time.Now()
		n.mu.Unlock()
		c.reply <- nil
		return
	case Materializing:
		inf := n.inflight
		n.mu.Unlock()
		go p.awaitInflight(c.ctx, inf, c.reply)
		return
	case Declared:
		if n.permanentErr != nil {
			err := n.permanentErr
			n.mu.Unlock()
			c.reply <- err
			return
		}
		method := n.method
		inf := newInflight()
		n.inflight = inf
		n.stage = Materializing
		n.mu.Unlock()

		go p.runMethod(c.ctx, c.path, method)
		go p.awaitInflight(c.ctx, inf, c.reply)
		return
	}
	n.mu.Unlock()
	c.reply <- &InternalError{Op: "ensure", Message: "unreachable stage"}
}

// awaitInflight blocks until inf settles or ctx is cancelled, whichever
// comes first — a per-caller cancellation must not abort a materialization
// other callers are still waiting on (spec §8 scenario 6: two ensure calls
// share one download and both return once it completes).
func (p *processor) awaitInflight(ctx context.Context, inf *inflight, reply chan error) {
	select {
	case <-inf.done:
		reply <- inf.err
	case <-ctx.Done():
		reply <- ctx.Err()
	}
}

func (p *processor) handleInvalidate(c invalidateCmd) {
	n, ok := p.tree.lookup(c.path)
	if !ok {
		c.reply <- nil
		return
	}
	n.mu.Lock()
	switch n.stage {
	case Materialized:
		if n.priorMethod != nil {
			n.method = n.priorMethod
			n.stage = Declared
		} else {
			n.method = nil
			n.stage = Absent
		}
	case Declared, Materializing:
		// already not trusted / being redone; nothing to downgrade.
	case Absent:
	}
	n.permanentErr = nil
	n.mu.Unlock()

	p.emitter.Emit(emit.Event{Subsystem: "materializer", Key: c.path.String(), Version: -1, Kind: "invalidate"})
	c.reply <- nil
}

func (p *processor) handleStatus(c statusCmd) {
	n, ok := p.tree.lookup(c.path)
	if !ok {
		c.reply <- statusResult{stage: Absent}
		return
	}
	snap := n.snapshot()
	c.reply <- statusResult{stage: snap.stage, lastAccess: snap.lastAccessTime}
}

func (p *processor) handleExtension(c extensionCmd) {
	n := p.tree.leafFor(c.path)
	n.mu.Lock()
	if n.stage == Absent {
		n.method = c.method
		n.priorMethod = c.method
		n.stage = Declared
	}
	n.mu.Unlock()
}

func (p *processor) handleCompletion(c completionCmd) {
	n, ok := p.tree.lookup(c.path)
	if !ok {
		return
	}
	n.mu.Lock()
	inf := n.inflight
	if c.err != nil {
		var uerr *UserError
		if errors.As(c.err, &uerr) {
			n.permanentErr = uerr
		}
		n.stage = Declared
	} else {
		n.stage = Materialized
		n.digest = c.digest
		n.lastAccessTime = time.Now()
		n.permanentErr = nil
		if _, ok := n.method.(CasFetchMethod); ok {
			n.expiresAt = time.Now().Add(p.assumedCASTTL)
		}
	}
	n.inflight = nil
	n.mu.Unlock()

	if inf != nil {
		inf.finish(c.err)
	}

	kind := "materialize_error"
	msg := ""
	if c.err != nil {
		msg = c.err.Error()
	} else {
		kind = "materialize"
	}
	p.emitter.Emit(emit.Event{Subsystem: "materializer", Key: c.path.String(), Version: -1, Kind: kind, Msg: msg})
}

func (p *processor) handleRefresh(c refreshCmd) {
	c.reply <- p.runRefresh(c.ctx, c.minTTL)
}

func (p *processor) handleClean(c cleanCmd) {
	report, err := p.runClean(c.ctx, c.keepSince, c.dryRun, c.trackedOnly)
	c.reply <- cleanResult{report: report, err: err}
}

func (p *processor) handleDump(c dumpCmd) {
	entries := p.tree.walk()
	out := make([]PathSnapshot, 0, len(entries))
	for _, e := range entries {
		snap := e.n.snapshot()
		if snap.stage == Absent {
			continue
		}
		out = append(out, PathSnapshot{
			Path:           e.path,
			Stage:          snap.stage,
			Method:         snap.method,
			Digest:         snap.digest,
			LastAccessTime: snap.lastAccessTime,
			PermanentErr:   snap.permanentErr,
		})
	}
	c.reply <- out
}
