package dice

import (
	"errors"
	"strings"

	"github.com/forgelab/dice/dicekey"
)

// ErrCancelled is returned when the enclosing task was cancelled before a
// value was published. Callers should treat it as a distinct kind from a
// regular failure (spec.md §7): it means the caller's own request chain was
// abandoned, not that the evaluator failed.
var ErrCancelled = errors.New("dice: computation cancelled")

// CycleError is raised when a request chain re-enters a key already on its
// own stack. Keys is the full chain in push order with Trigger appended
// last, so Error() renders a readable "A -> B -> C -> A" cycle report
// (spec.md §4.1.3, supplemented per SPEC_FULL.md §3 with push-order
// preservation grounded on the original dice crate's cycle detector).
type CycleError struct {
	Trigger dicekey.Key
	Keys    []dicekey.Key
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Keys))
	for _, k := range e.Keys {
		parts = append(parts, k.String())
	}
	return "dice: cycle detected: " + strings.Join(parts, " -> ")
}

// DuplicateError is raised when a transaction updater registers the same
// key twice in one pending transaction (spec.md §4.1.5).
type DuplicateError struct {
	Key dicekey.Key
}

func (e *DuplicateError) Error() string {
	return "dice: key already staged in this transaction: " + e.Key.String()
}
