package materializer

import (
	"sync"
	"time"
)

// Stage is one of the four materialization stages a tree leaf can occupy
// (spec §4.2.2).
type Stage int

const (
	Absent Stage = iota
	Declared
	Materializing
	Materialized
)

func (s Stage) String() string {
	switch s {
	case Absent:
		return "absent"
	case Declared:
		return "declared"
	case Materializing:
		return "materializing"
	case Materialized:
		return "materialized"
	default:
		return "unknown"
	}
}

// inflight tracks a single shared materialization future. Concurrent ensure
// calls on the same node attach to the same inflight instead of spawning a
// second method execution, the coalescing invariant from spec §4.2.3.
type inflight struct {
	done chan struct{}
	err  error
}

func newInflight() *inflight { return &inflight{done: make(chan struct{})} }

func (f *inflight) finish(err error) {
	f.err = err
	close(f.done)
}

// node is one leaf (or interior point, before it has ever been declared) of
// the artifact tree. Interior-only nodes (no declaration of their own, only
// children) stay at stage Absent with method == nil.
type node struct {
	mu sync.Mutex

	stage    Stage
	method   Method
	inflight *inflight

	digest         string // opaque content identity recorded once Materialized
	lastAccessTime time.Time

	// expiresAt is when the node's CAS-held content is assumed to lapse.
	// Only meaningful for a Materialized CasFetchMethod leaf: set on
	// successful fetch and bumped on every successful extend_ttl, since
	// the CAS client interface (spec §6) never reports a remaining TTL
	// back to the caller, only whether a digest is still present.
	expiresAt time.Time

	// permanentErr caches a permanent (checksum-mismatch class) failure so
	// repeated ensure calls do not re-download; cleared only by invalidate
	// or a fresh declare.
	permanentErr *UserError

	// priorMethod is restored by invalidate so that a Materialized path
	// returns to Declared with its last method rather than Absent.
	priorMethod Method
}

func newNode() *node {
	return &node{stage: Absent}
}

// snapshot returns the immutable fields a caller needs without holding the
// node's lock past the call (get_materialization_status, the tree walks
// driven by TTL refresh and the cleaner).
type snapshot struct {
	stage          Stage
	method         Method
	digest         string
	lastAccessTime time.Time
	expiresAt      time.Time
	permanentErr   *UserError
}

func (n *node) snapshot() snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return snapshot{
		stage:          n.stage,
		method:         n.method,
		digest:         n.digest,
		lastAccessTime: n.lastAccessTime,
		expiresAt:      n.expiresAt,
		permanentErr:   n.permanentErr,
	}
}
