package dice

import (
	"sync"

	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/emit"
	"github.com/forgelab/dice/version"
)

type changeKind int

const (
	changeInvalidate changeKind = iota
	changeUpdateValue
)

type change struct {
	kind  changeKind
	value dicekey.Value
}

// Updater stages Invalidate and UpdateValue calls for atomic application on
// Commit (spec.md §4.1.5). A key may be staged at most once per Updater;
// registering it twice returns a *DuplicateError.
type Updater struct {
	engine *Engine

	mu        sync.Mutex
	changes   map[dicekey.Index]change
	keys      map[dicekey.Index]dicekey.Key
	committed bool
}

// Invalidate stages k to be marked no-longer-trusted on Commit, without
// supplying a replacement value: the next read re-derives it via CheckDeps
// or a fresh Compute.
func (u *Updater) Invalidate(k dicekey.Key) error {
	return u.stage(k, change{kind: changeInvalidate})
}

// UpdateValue stages k to be seeded with val directly on Commit, as a base
// input with no recorded dependencies.
func (u *Updater) UpdateValue(k dicekey.Key, val dicekey.Value) error {
	return u.stage(k, change{kind: changeUpdateValue, value: val})
}

func (u *Updater) stage(k dicekey.Key, c change) error {
	idx := u.engine.interner.Intern(k)
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.changes[idx]; exists {
		return &DuplicateError{Key: k}
	}
	if u.keys == nil {
		u.keys = make(map[dicekey.Index]dicekey.Key)
	}
	u.changes[idx] = c
	u.keys[idx] = k
	return nil
}

// Commit advances the engine's version and atomically applies every staged
// change against that new version, returning it. A committed Updater must
// not be reused.
func (u *Updater) Commit() version.Number {
	u.mu.Lock()
	defer u.mu.Unlock()
	v := u.engine.versions.Commit()
	for idx, c := range u.changes {
		key := u.keys[idx]
		switch c.kind {
		case changeInvalidate:
			u.engine.storage.invalidate(idx, v)
			u.engine.emitter.Emit(emit.Event{Subsystem: "dice", Key: key.String(), Version: int64(v), Kind: "invalidate"})
		case changeUpdateValue:
			u.engine.storage.updateValue(idx, v, key, c.value)
			u.engine.emitter.Emit(emit.Event{Subsystem: "dice", Key: key.String(), Version: int64(v), Kind: "update_value"})
		}
	}
	u.committed = true
	return v
}

// Undo discards all staged changes without committing.
func (u *Updater) Undo() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.changes = make(map[dicekey.Index]change)
	u.keys = nil
}
