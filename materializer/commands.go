package materializer

import (
	"context"
	"time"

	"github.com/forgelab/dice/apath"
)

// command is the mailbox envelope type every public operation enqueues
// (spec §4.2.3: "all public operations enqueue a command"). The processor
// goroutine is the tree's only writer.
type command interface{ isCommand() }

type declareCmd struct {
	path   apath.Path
	method Method
	reply  chan error
}

func (declareCmd) isCommand() {}

type ensureCmd struct {
	ctx   context.Context
	path  apath.Path
	reply chan error
}

func (ensureCmd) isCommand() {}

type invalidateCmd struct {
	path  apath.Path
	reply chan error
}

func (invalidateCmd) isCommand() {}

type statusResult struct {
	stage      Stage
	lastAccess time.Time
}

type statusCmd struct {
	path  apath.Path
	reply chan statusResult
}

func (statusCmd) isCommand() {}

type refreshCmd struct {
	ctx    context.Context
	minTTL time.Duration
	reply  chan error
}

func (refreshCmd) isCommand() {}

type cleanResult struct {
	report *CleanReport
	err    error
}

type cleanCmd struct {
	ctx         context.Context
	keepSince   time.Time
	dryRun      bool
	trackedOnly bool
	reply       chan cleanResult
}

func (cleanCmd) isCommand() {}

// extensionCmd lets a running materialization enqueue sub-declarations
// (e.g. a CasFetch of a directory digest that declares its children)
// without deadlocking the single mailbox — the reason the mailbox is
// unbounded rather than a fixed-capacity channel.
type extensionCmd struct {
	path   apath.Path
	method Method
}

func (extensionCmd) isCommand() {}

// completionCmd is enqueued by a materialization goroutine once its I/O
// finishes. It is the only way a node's stage actually advances past
// Materializing, keeping that mutation on the single processor goroutine.
type completionCmd struct {
	path   apath.Path
	digest string
	err    error
}

func (completionCmd) isCommand() {}

// dumpCmd asks the processor for a full snapshot of every declared leaf,
// used by Materializer.Snapshot (and so by PersistSnapshot on the demo's
// shutdown path).
type dumpCmd struct {
	reply chan []PathSnapshot
}

func (dumpCmd) isCommand() {}

// PathSnapshot is one declared leaf's state as of a dumpCmd, the shape
// persisted to and restored from a materializer/store.Store.
type PathSnapshot struct {
	Path           apath.Path
	Stage          Stage
	Method         Method
	Digest         string
	LastAccessTime time.Time
	PermanentErr   *UserError
}
