package materializer

import (
	"context"
	"time"

	"github.com/forgelab/dice/apath"
	"github.com/forgelab/dice/digest"
	"github.com/forgelab/dice/emit"
	"github.com/forgelab/dice/materializer/store"
)

// PersistSnapshot dumps every declared leaf to s as a flat record list
// (spec §6). cmd/dicemat-demo calls it on clean shutdown; nothing calls it
// on a timer.
func PersistSnapshot(ctx context.Context, m *Materializer, s store.Store) error {
	snaps := m.Snapshot()
	records := make([]store.Record, 0, len(snaps))
	for _, sn := range snaps {
		tag := "declared"
		if sn.Stage == Materialized {
			tag = "materialized"
		}
		records = append(records, store.Record{
			Path:           sn.Path.String(),
			StageTag:       tag,
			MethodKind:     methodKind(sn.Method),
			Digest:         sn.Digest,
			LastAccessUnix: sn.LastAccessTime.Unix(),
		})
	}
	return s.Dump(ctx, records)
}

// SeedFromStore restores m's tree from s's most recent snapshot. Only
// materialized cas_fetch records carry enough information (a parseable
// digest) to be restored without rerunning their declaration; every other
// record is dropped silently — the next build's declare calls reestablish
// them, and spec §6 only promises avoiding a redundant re-download of
// already-fetched CAS content across a restart, not a full tree replay.
// Unknown stage tags are treated as Absent (i.e. skipped), the same
// forward-compatibility rule Load's caller is responsible for. Call it
// right after New, before any declare/ensure traffic begins.
func SeedFromStore(ctx context.Context, m *Materializer, s store.Store) error {
	records, err := s.Load(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if !store.KnownStageTags[r.StageTag] {
			continue
		}
		if r.StageTag != "materialized" || r.MethodKind != "cas_fetch" {
			continue
		}
		d, parseErr := digest.Parse(r.Digest)
		if parseErr != nil {
			continue
		}
		path, pathErr := apath.New(r.Path)
		if pathErr != nil {
			continue
		}
		method := CasFetchMethod{Digest: d}
		if err := m.Declare(path, method); err != nil {
			continue
		}
		n, ok := m.p.tree.lookup(path)
		if !ok {
			continue
		}
		n.mu.Lock()
		n.stage = Materialized
		n.digest = r.Digest
		n.lastAccessTime = time.Unix(r.LastAccessUnix, 0)
		n.expiresAt = time.Now().Add(m.p.assumedCASTTL)
		n.mu.Unlock()
	}
	m.p.emitter.Emit(emit.Event{Subsystem: "materializer", Key: "seed", Version: -1, Kind: "seed_from_store", Msg: ""})
	return nil
}
