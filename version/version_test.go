package version

import "testing"

func TestCellHistoryOpenAndContains(t *testing.T) {
	h := New()
	if h.Contains(0) {
		t.Fatal("empty history should contain nothing")
	}
	h.OpenNewRange(1)
	if !h.Contains(1) || !h.Contains(100) {
		t.Fatal("open range should cover everything from its start onward")
	}
	if h.Contains(0) {
		t.Fatal("range should not cover versions before From")
	}
}

func TestCellHistoryCloseAtAndReopen(t *testing.T) {
	h := New()
	h.OpenNewRange(1)
	h.CloseAt(5)
	if h.Contains(5) {
		t.Fatal("closed range should not contain its own To boundary")
	}
	if !h.Contains(4) {
		t.Fatal("closed range should still contain versions before To")
	}
	// CheckDeps confirms the value still holds at version 7: heal the gap.
	h.ExtendOrOpen(7)
	if !h.Contains(5) || !h.Contains(7) || !h.Contains(1000) {
		t.Fatal("ExtendOrOpen should re-open the range to Unbounded")
	}
	ranges := h.Ranges()
	if len(ranges) != 1 {
		t.Fatalf("expected a single merged range, got %v", ranges)
	}
}

func TestCellHistoryOpenNewRangeOnChange(t *testing.T) {
	h := New()
	h.OpenNewRange(1)
	h.OpenNewRange(10) // value changed at version 10
	ranges := h.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("expected two disjoint ranges, got %v", ranges)
	}
	if ranges[0].To != 10 {
		t.Fatalf("first range should close exactly at the new range's From, got %v", ranges[0])
	}
	if h.Contains(10) != true {
		t.Fatal("second range should cover its From version")
	}
	if h.Contains(9) != true {
		t.Fatal("first range should still cover version 9")
	}
}

func TestCellHistoryRangesDisjointAndSorted(t *testing.T) {
	h := New()
	h.OpenNewRange(1)
	h.CloseAt(3)
	h.OpenNewRange(5)
	ranges := h.Ranges()
	for i := 1; i < len(ranges); i++ {
		if ranges[i-1].To > ranges[i].From {
			t.Fatalf("ranges overlap: %v then %v", ranges[i-1], ranges[i])
		}
	}
}

func TestTrackerCommitAdvancesVersion(t *testing.T) {
	tr := NewTracker()
	if tr.Current() != 0 {
		t.Fatalf("initial version should be 0, got %v", tr.Current())
	}
	v1 := tr.Commit()
	if v1 != 1 {
		t.Fatalf("first commit should yield version 1, got %v", v1)
	}
}

func TestTrackerGuardPinsVersion(t *testing.T) {
	tr := NewTracker()
	tr.Commit() // now at version 1
	g := tr.AcquireGuard()
	if g.Version() != 1 {
		t.Fatalf("guard should pin current version 1, got %v", g.Version())
	}
	tr.Commit() // now at version 2; guard still pins 1
	oldest, ok := tr.OldestOutstanding()
	if !ok || oldest != 1 {
		t.Fatalf("OldestOutstanding() = %v, %v; want 1, true", oldest, ok)
	}
	g.Release()
	if _, ok := tr.OldestOutstanding(); ok {
		t.Fatal("no guards should be outstanding after release")
	}
}
