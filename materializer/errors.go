package materializer

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a materialization was abandoned because its
// context was cancelled before the artifact reached disk.
var ErrCancelled = errors.New("materializer: cancelled")

// UserError wraps a malformed request or a permanent, non-retryable failure
// such as a checksum mismatch on an HTTP fetch. It is cached on the path's
// node until invalidate clears it, per spec §7's "permanent until invalidate"
// policy for this error kind.
type UserError struct {
	Op      string
	Path    string
	Message string
	Cause   error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("materializer: user error during %s %s: %s: %v", e.Op, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("materializer: user error during %s %s: %s", e.Op, e.Path, e.Message)
}

func (e *UserError) Unwrap() error { return e.Cause }

// InfraError wraps a transient failure (CAS unreachable, HTTP connection
// reset) that was retried and ultimately exhausted its budget. It is never
// cached: the next ensure tries again from Declared.
type InfraError struct {
	Op      string
	Path    string
	Retries int
	Cause   error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("materializer: infra error during %s %s after %d retries: %v", e.Op, e.Path, e.Retries, e.Cause)
}

func (e *InfraError) Unwrap() error { return e.Cause }

// InternalError signals a violated invariant — a dependency missing from
// the tree during a recursive ensure, a state transition the machine does
// not recognize. It aborts the in-flight command with diagnostics and is
// never retried.
type InternalError struct {
	Op      string
	Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("materializer: internal error during %s: %s", e.Op, e.Message)
}

// Kind classifies an error into one of the four kinds spec §7 names, for
// callers that branch on retry policy rather than type-switching directly.
type Kind int

const (
	KindUser Kind = iota
	KindInfra
	KindCancelled
	KindInternal
)

// ClassifyError reports the Kind of err, defaulting to KindInternal for
// errors this package did not originate (an invariant violation upstream
// is still an internal error from the materializer's point of view).
func ClassifyError(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.As(err, new(*UserError)):
		return KindUser
	case errors.As(err, new(*InfraError)):
		return KindInfra
	case errors.As(err, new(*InternalError)):
		return KindInternal
	default:
		return KindInternal
	}
}
