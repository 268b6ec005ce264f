package materializer

import (
	"sync"

	"github.com/forgelab/dice/apath"
)

// treeNode is one segment of the artifact trie. Interior nodes (reached
// only while walking toward a deeper leaf) carry no materialization state
// of their own — leaf is nil until something declares a path ending here.
type treeNode struct {
	children map[string]*treeNode
	leaf     *node
}

func newTreeNode() *treeNode {
	return &treeNode{children: make(map[string]*treeNode)}
}

// tree is the artifact tree: a trie keyed by project-relative path segment,
// owned exclusively by the processor goroutine (spec §4.2.3's single-writer
// design) — every method here assumes the caller already holds the
// processor's serial execution context, so none of it takes its own lock
// beyond what's needed for snapshot reads from other goroutines (TTL
// refresh progress, status queries racing a concurrent ensure).
type tree struct {
	mu   sync.RWMutex
	root *treeNode
}

func newTree() *tree {
	return &tree{root: newTreeNode()}
}

// leafFor returns (creating intermediate segments as needed) the leaf node
// for p, creating its artifact node on first touch.
func (t *tree) leafFor(p apath.Path) *node {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.root
	for _, seg := range p.Segments() {
		child, ok := cur.children[seg]
		if !ok {
			child = newTreeNode()
			cur.children[seg] = child
		}
		cur = child
	}
	if cur.leaf == nil {
		cur.leaf = newNode()
	}
	return cur.leaf
}

// lookup returns the leaf node for p without creating it, or (nil, false)
// if p has never been declared.
func (t *tree) lookup(p apath.Path) (*node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur := t.root
	for _, seg := range p.Segments() {
		child, ok := cur.children[seg]
		if !ok {
			return nil, false
		}
		cur = child
	}
	if cur.leaf == nil {
		return nil, false
	}
	return cur.leaf, true
}

// walkEntry is one declared leaf visited by walk, paired with its path for
// TTL refresh and cleaner reporting.
type walkEntry struct {
	path apath.Path
	n    *node
}

// walk visits every declared leaf in the tree. Order is unspecified; the
// cleaner and TTL refresher do not depend on visitation order.
func (t *tree) walk() []walkEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []walkEntry
	var rec func(tn *treeNode, prefix []string)
	rec = func(tn *treeNode, prefix []string) {
		if tn.leaf != nil {
			joined := apath.MustNew(joinSegments(prefix))
			out = append(out, walkEntry{path: joined, n: tn.leaf})
		}
		for seg, child := range tn.children {
			rec(child, append(prefix, seg))
		}
	}
	rec(t.root, nil)
	return out
}

func joinSegments(segs []string) string {
	if len(segs) == 0 {
		return ""
	}
	out := segs[0]
	for _, s := range segs[1:] {
		out += "/" + s
	}
	return out
}
