// Package store provides persistence backends for the materializer's
// artifact-tree snapshot (spec.md §6): materializer.PersistSnapshot writes
// every declared leaf as one Record (path, stage tag, method kind, digest,
// last access) so a daemon restart can seed the tree without rescanning
// the workspace. Backends keep Records as rows or in memory; no
// length-prefixed byte encoding is produced.
package store

import (
	"context"
	"fmt"
)

// Record is one artifact-tree leaf as persisted to a Store. StageTag is a
// tagged-union discriminator ("declared", "materialized", or a tag this
// reader's version does not recognize); readers treat an unknown tag as
// Absent, the forward-compatibility rule spec §6 requires. MethodKind and
// Digest are only meaningful for the tags that use them.
type Record struct {
	Path           string
	StageTag       string
	MethodKind     string
	Digest         string
	LastAccessUnix int64
}

// Store persists and restores a full tree snapshot. Dump replaces whatever
// was previously stored; Load returns every record from the most recent
// Dump (or an empty slice on a store that has never been written to).
type Store interface {
	Dump(ctx context.Context, records []Record) error
	Load(ctx context.Context) ([]Record, error)
	Close() error
}

// Open builds the Store named by driver (config.Config.StoreDriver):
// "memory", "sqlite", or "mysql", passing dsn (config.Config.StoreDSN) to
// the backends that need one. An empty driver defaults to "memory", same
// as config.Config's own default; any other unrecognized driver is an
// error rather than a silent fallback to memory, since silently picking
// the wrong backend would mean a restart quietly loses its snapshot.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(dsn)
	case "mysql":
		return NewMySQL(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

// KnownStageTags are the tags this version of the package writes and
// recognizes on read. Any other tag a Load encounters is mapped to Absent
// by the caller (materializer.SeedFromStore), not by the Store itself —
// the Store's job is only to round-trip bytes.
var KnownStageTags = map[string]bool{
	"declared":     true,
	"materialized": true,
}
