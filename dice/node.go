package dice

import (
	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/version"
)

// graphNode is the per-key record the storage layer keeps: the most
// recently computed value, the ordered list of dependencies consulted to
// produce it, and the CellHistory of versions at which that value is known
// to hold (spec.md §3). Projection composite keys record the underlying key
// as their only dependency, but are never eligible for the CheckDeps fast
// path (see engine.go).
type graphNode struct {
	value dicekey.Value
	deps  []dicekey.Index
	hist  *version.CellHistory
}

func newGraphNode() *graphNode {
	return &graphNode{hist: version.New()}
}
