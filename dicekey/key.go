// Package dicekey defines the opaque Key and Value abstractions the
// computation engine memoizes over, and the dense interner that maps keys
// to compact integer indices for O(1) edge storage.
package dicekey

import "fmt"

// Value is the type-erased result of evaluating a Key.
type Value any

// Key is an opaque, hashable, equatable, displayable token identifying a
// unit of computation. Implementations are supplied by the caller (the
// configuration-language interpreter, in the system this engine backs) and
// must be side-effect free to hash, compare, and print.
//
// ValuesEqual is the equality predicate for values produced by this key: the
// engine invokes it after a recomputation completes to decide whether
// downstream consumers must be invalidated (the early-cutoff optimization).
type Key interface {
	// Equal reports whether this key identifies the same computation as other.
	Equal(other Key) bool
	// Hash returns a hash stable across the process lifetime. Two equal keys
	// must return the same hash; unequal keys should, but are not required
	// to, return different hashes.
	Hash() uint64
	// String renders a human-readable identity, used in cycle reports and
	// event metadata.
	String() string
	// ValuesEqual decides whether two computed values for this key should be
	// considered identical for the purposes of early cutoff.
	ValuesEqual(a, b Value) bool
}

// ProjectionKey derives a sub-value synchronously from another key's
// already-computed value. Projections do not take a dependency on the
// underlying key's value, only on the projected slice: a projection's cache
// entry is invalidated only when Project's output actually changes, even if
// the underlying key recomputes.
type ProjectionKey interface {
	Key
	// Project computes the derived value from the underlying key's value.
	// Must be synchronous and must not issue further engine requests.
	Project(underlying Value) Value
}

// Index is the dense integer identity the Interner assigns to a Key. Edge
// lists and dependency sets are stored by Index, not by Key, for O(1)
// storage and comparison.
type Index uint32

// String satisfies fmt.Stringer for readable diagnostics.
func (i Index) String() string { return fmt.Sprintf("k%d", uint32(i)) }
