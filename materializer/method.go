package materializer

import (
	"github.com/forgelab/dice/apath"
	"github.com/forgelab/dice/digest"
)

// Method describes how a Declared path is to be realized on disk. Exactly
// one of the concrete method types below is ever attached to a node.
type Method interface {
	methodName() string
}

// CopyMethod realizes dest by copying (or hard-linking) one or more already
// materialized source paths into position. Each source is copied to dest
// in order, so for plain file copies later sources in Sources overwrite
// earlier ones. Overlapping dests across Copy declarations are not
// detected, in symlink mode or otherwise.
type CopyMethod struct {
	Sources []apath.Path
	// AsDirSymlink requests the directory fast path, which applies only when
	// Sources has exactly one entry: if that source is a materialized
	// directory, dest is realized as a symlink to it instead of a file copy.
	// A loose-file source, or more than one source, is copied file by file.
	AsDirSymlink bool
}

func (CopyMethod) methodName() string { return "copy" }

// SymlinkMethod creates a symlink at dest pointing at Source. Source is
// either a path this materializer itself tracks (ensured first) or, when
// External is set, an absolute filesystem path outside the tree.
type SymlinkMethod struct {
	Source   apath.Path
	External string
}

func (SymlinkMethod) methodName() string { return "symlink" }

// CasFetchMethod downloads content identified by Digest from the CAS. When
// Children is non-empty, Digest identifies a directory manifest rather
// than a file: each entry is sub-declared under dest once the manifest
// itself lands, via the processor's extension command (spec §4.2.3).
type CasFetchMethod struct {
	Digest     digest.Digest
	Executable bool
	Children   map[string]CasFetchMethod
}

func (CasFetchMethod) methodName() string { return "cas_fetch" }

// HttpFetchMethod downloads content from URL, verifying it against SHA1
// (required) and SHA256 (optional, when the declaration supplied one).
type HttpFetchMethod struct {
	URL        string
	SHA1       digest.Digest
	SHA256     digest.Digest // zero value means "not checked"
	Executable bool
}

func (HttpFetchMethod) methodName() string { return "http_fetch" }

func methodKind(m Method) string {
	if m == nil {
		return ""
	}
	return m.methodName()
}
