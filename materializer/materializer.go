// Package materializer implements the deferred artifact materializer: a
// content-addressed, lazily-realized filesystem view with TTL refresh and
// stale cleanup (spec §4.2). A single command-processor goroutine owns the
// artifact tree; every exported method here enqueues a command and blocks
// on its reply, keeping the tree's consistency enforced without per-node
// locking on every operation.
package materializer

import (
	"context"
	"time"

	"github.com/forgelab/dice/apath"
	"github.com/forgelab/dice/cas"
	"github.com/forgelab/dice/emit"
)

// Materializer is the public entry point: declare paths, ensure they're on
// disk, invalidate stale ones, refresh CAS-backed TTLs, and sweep what's
// gone cold.
type Materializer struct {
	p *processor
}

// config accumulates Option values before the processor starts. The
// concurrency/TTL defaults here match config.Config's defaults() so a
// Materializer built with no options behaves the same as one built from
// an unmodified config.Config.
type config struct {
	emitter emit.Emitter
	stats   StatsSink

	reads, dirs   int64
	ttlBatchSize  int
	assumedCASTTL time.Duration
}

// Option configures a Materializer at construction.
type Option func(*config)

// WithStats attaches a StatsSink; the zero value records nothing.
func WithStats(s StatsSink) Option {
	return func(c *config) { c.stats = s }
}

// WithEmitter attaches an Emitter; the zero value discards every event.
func WithEmitter(e emit.Emitter) Option {
	return func(c *config) { c.emitter = e }
}

// WithIOLimits overrides the default concurrent-read and
// concurrent-directory-listing caps (spec §5; config.ConcurrentReads and
// config.ConcurrentDirListings are how a caller typically derives reads
// and dirs).
func WithIOLimits(reads, dirs int64) Option {
	return func(c *config) { c.reads, c.dirs = reads, dirs }
}

// WithTTLBatchSize overrides how many digests one refresh_ttls pass sends
// to the CAS client at once (config.TTLBatchSize).
func WithTTLBatchSize(n int) Option {
	return func(c *config) { c.ttlBatchSize = n }
}

// WithAssumedCASTTL overrides how long a CAS-held digest is assumed to
// stay alive after a fetch or extend_ttl before refresh_ttls should
// consider it due for renewal again.
func WithAssumedCASTTL(d time.Duration) Option {
	return func(c *config) { c.assumedCASTTL = d }
}

// New constructs a Materializer rooted at root, fetching CAS content
// through casCli.
func New(root string, casCli cas.Client, opts ...Option) *Materializer {
	cfg := &config{
		emitter:       emit.NullEmitter{},
		stats:         noopStats{},
		reads:         100,
		dirs:          400,
		ttlBatchSize:  500,
		assumedCASTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	limits := newIOLimits(cfg.reads, cfg.dirs)
	p := newProcessor(&ProjectFS{Root: root}, casCli, cfg.emitter, cfg.stats, limits, cfg.ttlBatchSize, cfg.assumedCASTTL)
	return &Materializer{p: p}
}

// Declare attaches method to path, transitioning it to Declared. Declaring
// a different method over a path that is currently Materialized schedules
// the stale on-disk content for removal before the next ensure can see it.
func (m *Materializer) Declare(path apath.Path, method Method) error {
	reply := make(chan error, 1)
	m.p.send(declareCmd{path: path, method: method, reply: reply})
	return <-reply
}

// Ensure blocks until path is Materialized (or ctx is done, or its
// declared method fails). Concurrent Ensure calls on the same path share
// one underlying materialization.
func (m *Materializer) Ensure(ctx context.Context, path apath.Path) error {
	reply := make(chan error, 1)
	m.p.send(ensureCmd{ctx: ctx, path: path, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate downgrades a Materialized path back to Declared (or Absent, if
// it was never declared with a method that survives), clearing any cached
// permanent failure.
func (m *Materializer) Invalidate(path apath.Path) error {
	reply := make(chan error, 1)
	m.p.send(invalidateCmd{path: path, reply: reply})
	return <-reply
}

// GetMaterializationStatus reports path's current stage and, if
// Materialized, the time it was last accessed.
func (m *Materializer) GetMaterializationStatus(path apath.Path) (Stage, time.Time) {
	reply := make(chan statusResult, 1)
	m.p.send(statusCmd{path: path, reply: reply})
	r := <-reply
	return r.stage, r.lastAccess
}

// RefreshTTLs extends the CAS TTL of every Materialized, CAS-fetched path
// below minTTL remaining. Digests the CAS no longer holds demote their
// path back to Declared.
func (m *Materializer) RefreshTTLs(ctx context.Context, minTTL time.Duration) error {
	reply := make(chan error, 1)
	m.p.send(refreshCmd{ctx: ctx, minTTL: minTTL, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CleanStale removes (or, in dryRun mode, reports) every Materialized path
// whose last access predates keepSince.
func (m *Materializer) CleanStale(ctx context.Context, keepSince time.Time, dryRun, trackedOnly bool) (*CleanReport, error) {
	reply := make(chan cleanResult, 1)
	m.p.send(cleanCmd{ctx: ctx, keepSince: keepSince, dryRun: dryRun, trackedOnly: trackedOnly, reply: reply})
	select {
	case r := <-reply:
		return r.report, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns every declared path's current state, for persisting to
// a materializer/store.Store.
func (m *Materializer) Snapshot() []PathSnapshot {
	reply := make(chan []PathSnapshot, 1)
	m.p.send(dumpCmd{reply: reply})
	return <-reply
}

// Close stops the processor's run loop once the commands already queued
// have been handled. Outstanding in-flight materializations are not
// cancelled. Commands sent after the loop exits are never handled, so calls
// made after Close block (those taking a ctx until it is done).
func (m *Materializer) Close() {
	m.p.stop()
}
