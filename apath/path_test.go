package apath

import "testing"

func TestNewRejectsInvalid(t *testing.T) {
	cases := []string{"", "/abs/path", "a/../b", ".."}
	for _, c := range cases {
		if _, err := New(c); err == nil {
			t.Errorf("New(%q) expected error", c)
		}
	}
}

func TestNewNormalizesDotSegments(t *testing.T) {
	p, err := New("./buck-out/./gen/foo.o")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := p.String(), "buck-out/gen/foo.o"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestSegments(t *testing.T) {
	p := MustNew("a/b/c")
	got := p.Segments()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Segments() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Segments()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParent(t *testing.T) {
	p := MustNew("a/b/c")
	parent, ok := p.Parent()
	if !ok || parent.String() != "a/b" {
		t.Fatalf("Parent() = %q, %v; want a/b, true", parent.String(), ok)
	}
	root := MustNew("a")
	if _, ok := root.Parent(); ok {
		t.Error("single-segment path should have no parent")
	}
}

func TestHasPrefix(t *testing.T) {
	p := MustNew("a/b/c")
	if !p.HasPrefix(MustNew("a/b")) {
		t.Error("expected a/b/c to have prefix a/b")
	}
	if !p.HasPrefix(p) {
		t.Error("a path should have itself as a prefix")
	}
	if p.HasPrefix(MustNew("a/bc")) {
		t.Error("a/b/c should not have prefix a/bc")
	}
}

func TestJoin(t *testing.T) {
	p := MustNew("a/b")
	joined, err := p.Join("c")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.String() != "a/b/c" {
		t.Errorf("Join() = %q, want a/b/c", joined.String())
	}
}
