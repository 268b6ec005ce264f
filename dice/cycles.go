package dice

import "github.com/forgelab/dice/dicekey"

// chainNode is an immutable, singly-linked request chain: the sequence of
// keys a single causal path of compute() calls has entered, oldest first.
// It is deliberately immutable rather than a shared mutable stack, because
// a node's evaluator may fan out concurrent sub-requests for its
// dependencies (goroutines), and sibling branches of that fan-out must not
// observe each other's chain entries — only ancestor/descendant re-entry is
// a cycle, not re-entry across unrelated siblings.
//
// A useful side effect of immutability: a cancelled branch leaves no
// residue in any other branch's chain, since nothing is shared or mutated
// in place (SPEC_FULL.md §5, Open Question: cycle-state cleanup on cancel).
type chainNode struct {
	key    dicekey.Key
	parent *chainNode
}

// pushChain extends chain with k, or returns a *CycleError if k is already
// present anywhere on chain.
func pushChain(chain *chainNode, k dicekey.Key) (*chainNode, error) {
	for n := chain; n != nil; n = n.parent {
		if n.key.Equal(k) {
			return nil, &CycleError{Trigger: k, Keys: append(collectChain(chain), k)}
		}
	}
	return &chainNode{key: k, parent: chain}, nil
}

// collectChain renders chain oldest-first.
func collectChain(chain *chainNode) []dicekey.Key {
	var rev []dicekey.Key
	for n := chain; n != nil; n = n.parent {
		rev = append(rev, n.key)
	}
	out := make([]dicekey.Key, len(rev))
	for i, k := range rev {
		out[len(rev)-1-i] = k
	}
	return out
}
