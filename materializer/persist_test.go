package materializer

import (
	"context"
	"testing"

	"github.com/forgelab/dice/apath"
	"github.com/forgelab/dice/cas"
	"github.com/forgelab/dice/digest"
	"github.com/forgelab/dice/materializer/store"
)

// TestPersistSnapshotThenSeedFromStoreRestoresCASFetches is the spec §6
// round trip: a materialized cas_fetch path survives a dump/seed cycle
// without a second download.
func TestPersistSnapshotThenSeedFromStoreRestoresCASFetches(t *testing.T) {
	ctx := context.Background()
	mem := cas.NewMemoryClient()
	d, err := digest.FromBytes(digest.SHA256, []byte("persisted bytes"))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	mem.Seed(d, []byte("persisted bytes"))

	root1 := t.TempDir()
	m1 := New(root1, mem)
	p := apath.MustNew("out/artifact")
	if err := m1.Declare(p, CasFetchMethod{Digest: d}); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := m1.Ensure(ctx, p); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	st := store.NewMemory()
	defer st.Close()
	if err := PersistSnapshot(ctx, m1, st); err != nil {
		t.Fatalf("persist snapshot: %v", err)
	}
	m1.Close()

	downloadsBeforeSeed := mem.DownloadCount()

	root2 := t.TempDir()
	m2 := New(root2, mem)
	defer m2.Close()
	if err := SeedFromStore(ctx, m2, st); err != nil {
		t.Fatalf("seed from store: %v", err)
	}

	stage, _ := m2.GetMaterializationStatus(p)
	if stage != Materialized {
		t.Fatalf("stage after seed = %v, want Materialized", stage)
	}

	// Ensure on the seeded path must not trigger a redundant download.
	if err := m2.Ensure(ctx, p); err != nil {
		t.Fatalf("ensure after seed: %v", err)
	}
	if got := mem.DownloadCount(); got != downloadsBeforeSeed {
		t.Fatalf("DownloadCount() after seeded ensure = %d, want unchanged %d", got, downloadsBeforeSeed)
	}
}

// TestSeedFromStoreSkipsUnrestorableRecords confirms declared-only and
// non-cas_fetch records are dropped rather than restored as Materialized.
func TestSeedFromStoreSkipsUnrestorableRecords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()
	if err := st.Dump(ctx, []store.Record{
		{Path: "declared/only", StageTag: "declared", MethodKind: "copy"},
		{Path: "bad/digest", StageTag: "materialized", MethodKind: "cas_fetch", Digest: "not-a-digest"},
	}); err != nil {
		t.Fatalf("dump: %v", err)
	}

	m := New(t.TempDir(), cas.NewMemoryClient())
	defer m.Close()
	if err := SeedFromStore(ctx, m, st); err != nil {
		t.Fatalf("seed from store: %v", err)
	}

	if stage, _ := m.GetMaterializationStatus(apath.MustNew("declared/only")); stage != Absent {
		t.Fatalf("declared/only stage = %v, want Absent (never restored)", stage)
	}
	if stage, _ := m.GetMaterializationStatus(apath.MustNew("bad/digest")); stage != Absent {
		t.Fatalf("bad/digest stage = %v, want Absent (unparseable digest skipped)", stage)
	}
}
