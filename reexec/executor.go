// Package reexec defines the action executor collaborator: given a hermetic
// command description, runs it locally or remotely and reports digests of
// everything it produced.
package reexec

import (
	"context"
	"time"

	"github.com/forgelab/dice/digest"
)

// ExecutionKind classifies where a Report's outputs actually came from.
type ExecutionKind int

const (
	Local ExecutionKind = iota
	Remote
	CacheHit
)

func (k ExecutionKind) String() string {
	switch k {
	case Local:
		return "local"
	case Remote:
		return "remote"
	case CacheHit:
		return "cache_hit"
	default:
		return "unknown"
	}
}

// Request describes one hermetic action (spec §6).
type Request struct {
	Command  []string
	Inputs   []string // paths or "digest:<algo>:<hex>:<size>" references
	Outputs  []string // declared output paths, relative to the action's sandbox
	Env      map[string]string
	Platform string
}

// Report is what an ActionExecutor returns after running (or serving from
// cache) a Request.
type Report struct {
	ExitCode      int
	StdoutDigest  digest.Digest
	StderrDigest  digest.Digest
	Outputs       map[string]digest.Digest // output path -> content digest
	Timing        time.Duration
	ExecutionKind ExecutionKind
}

// ActionExecutor runs a Request and returns its Report. The materializer
// consumes Report.Outputs to declare CasFetch artifacts for whatever the
// action produced.
type ActionExecutor interface {
	Execute(ctx context.Context, req Request) (Report, error)
}
