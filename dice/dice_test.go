package dice

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/forgelab/dice/dicekey"
)

// testKey is a minimal string-identified Key used throughout this
// package's tests. ValuesEqual compares by Go equality, which is enough
// for the int/string values these tests compute.
type testKey struct{ name string }

func (k testKey) Equal(other dicekey.Key) bool {
	o, ok := other.(testKey)
	return ok && o.name == k.name
}

func (k testKey) Hash() uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(k.name); i++ {
		h ^= uint64(k.name[i])
		h *= 1099511628211
	}
	return h
}

func (k testKey) String() string { return k.name }

func (k testKey) ValuesEqual(a, b dicekey.Value) bool { return reflect.DeepEqual(a, b) }

// testProjection projects a field out of a map[string]int underlying
// value, used by the projection-isolation scenario.
type testProjection struct{ field string }

func (p testProjection) Equal(other dicekey.Key) bool {
	o, ok := other.(testProjection)
	return ok && o.field == p.field
}

func (p testProjection) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(p.field); i++ {
		h ^= uint64(p.field[i])
		h *= 1099511628211
	}
	return h
}

func (p testProjection) String() string { return "proj:" + p.field }

func (p testProjection) ValuesEqual(a, b dicekey.Value) bool { return a == b }

func (p testProjection) Project(underlying dicekey.Value) dicekey.Value {
	m := underlying.(map[string]int)
	return m[p.field]
}

// callCounter tracks evaluator invocation counts by key name, safe for
// concurrent use from evaluator goroutines.
type callCounter struct {
	mu sync.Mutex
	n  map[string]int
}

func newCallCounter() *callCounter { return &callCounter{n: make(map[string]int)} }

func (c *callCounter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[name]++
}

func (c *callCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

// scriptedEvaluator dispatches by key name to a table of functions,
// recording a call in counter before running each one.
type scriptedEvaluator struct {
	counter *callCounter
	fns     map[string]func(ctx *Context) (dicekey.Value, error)
}

func (s *scriptedEvaluator) Evaluate(ctx *Context, key dicekey.Key) (dicekey.Value, error) {
	tk, ok := key.(testKey)
	if !ok {
		return nil, fmt.Errorf("scriptedEvaluator: unexpected key type %T", key)
	}
	s.counter.inc(tk.name)
	fn, ok := s.fns[tk.name]
	if !ok {
		return nil, fmt.Errorf("scriptedEvaluator: no function registered for %q", tk.name)
	}
	return fn(ctx)
}

func TestComputeCachesWithinSameVersion(t *testing.T) {
	counter := newCallCounter()
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"a": func(ctx *Context) (dicekey.Value, error) { return 1, nil },
	}}
	e := New(ev)
	v := e.NewView()
	defer v.Close()

	ctx := context.Background()
	v1, err := v.Compute(ctx, testKey{"a"})
	if err != nil {
		t.Fatal(err)
	}
	v2, err := v.Compute(ctx, testKey{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Fatalf("expected equal values, got %v and %v", v1, v2)
	}
	if got := counter.get("a"); got != 1 {
		t.Fatalf("evaluator called %d times, want 1", got)
	}
}

func TestConcurrentComputeCoalescesIntoOneEvaluatorCall(t *testing.T) {
	counter := newCallCounter()
	start := make(chan struct{})
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"slow": func(ctx *Context) (dicekey.Value, error) {
			<-start
			return 42, nil
		},
	}}
	e := New(ev)
	v := e.NewView()
	defer v.Close()

	const n = 20
	var wg sync.WaitGroup
	results := make([]dicekey.Value, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = v.Compute(context.Background(), testKey{"slow"})
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d: %v", i, errs[i])
		}
		if results[i] != 42 {
			t.Fatalf("waiter %d: got %v, want 42", i, results[i])
		}
	}
	if got := counter.get("slow"); got != 1 {
		t.Fatalf("evaluator invoked %d times for %d concurrent callers, want 1", got, n)
	}
}

func TestEarlyCutoffSkipsDependentRecompute(t *testing.T) {
	counter := newCallCounter()
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"a": func(ctx *Context) (dicekey.Value, error) {
			bVal, err := ctx.Compute(context.Background(), testKey{"b"})
			if err != nil {
				return nil, err
			}
			return bVal.(int) + 1, nil
		},
	}}
	e := New(ev)

	u := e.NewUpdater()
	if err := u.UpdateValue(testKey{"b"}, 10); err != nil {
		t.Fatal(err)
	}
	u.Commit()

	v1 := e.NewView()
	got, err := v1.Compute(context.Background(), testKey{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if got != 11 {
		t.Fatalf("a = %v, want 11", got)
	}
	v1.Close()
	if got := counter.get("a"); got != 1 {
		t.Fatalf("a evaluated %d times, want 1", got)
	}

	// Re-supply the same value for b: its own value hasn't changed, so a's
	// evaluator must not run again (spec.md §4.1.2, early cutoff).
	u2 := e.NewUpdater()
	if err := u2.UpdateValue(testKey{"b"}, 10); err != nil {
		t.Fatal(err)
	}
	u2.Commit()

	v2 := e.NewView()
	defer v2.Close()
	got2, err := v2.Compute(context.Background(), testKey{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if got2 != 11 {
		t.Fatalf("a = %v, want 11 (unchanged)", got2)
	}
	if got := counter.get("a"); got != 1 {
		t.Fatalf("a evaluated %d times after a no-op update, want still 1 (early cutoff)", got)
	}
}

func TestRecomputeWhenDependencyActuallyChanges(t *testing.T) {
	counter := newCallCounter()
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"a": func(ctx *Context) (dicekey.Value, error) {
			bVal, err := ctx.Compute(context.Background(), testKey{"b"})
			if err != nil {
				return nil, err
			}
			return bVal.(int) + 1, nil
		},
	}}
	e := New(ev)

	u := e.NewUpdater()
	_ = u.UpdateValue(testKey{"b"}, 10)
	u.Commit()
	v1 := e.NewView()
	if _, err := v1.Compute(context.Background(), testKey{"a"}); err != nil {
		t.Fatal(err)
	}
	v1.Close()

	u2 := e.NewUpdater()
	_ = u2.UpdateValue(testKey{"b"}, 20)
	u2.Commit()

	v2 := e.NewView()
	defer v2.Close()
	got, err := v2.Compute(context.Background(), testKey{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if got != 21 {
		t.Fatalf("a = %v, want 21", got)
	}
	if got := counter.get("a"); got != 2 {
		t.Fatalf("a evaluated %d times, want 2 (dependency genuinely changed)", got)
	}
}

func TestCycleDetection(t *testing.T) {
	counter := newCallCounter()
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"a": func(ctx *Context) (dicekey.Value, error) {
			return ctx.Compute(context.Background(), testKey{"b"})
		},
		"b": func(ctx *Context) (dicekey.Value, error) {
			return ctx.Compute(context.Background(), testKey{"a"})
		},
	}}
	e := New(ev)
	v := e.NewView()
	defer v.Close()

	_, err := v.Compute(context.Background(), testKey{"a"})
	if err == nil {
		t.Fatal("expected a cycle error, got nil")
	}
	var cycleErr *CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T: %v", err, err)
	}
	if cycleErr.Trigger.String() != "a" {
		t.Fatalf("trigger = %v, want a", cycleErr.Trigger)
	}
}

func asCycleError(err error, target **CycleError) bool {
	ce, ok := err.(*CycleError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func TestDuplicateStageInSameTransaction(t *testing.T) {
	e := New(&scriptedEvaluator{counter: newCallCounter(), fns: map[string]func(ctx *Context) (dicekey.Value, error){}})
	u := e.NewUpdater()
	if err := u.UpdateValue(testKey{"x"}, 1); err != nil {
		t.Fatal(err)
	}
	err := u.Invalidate(testKey{"x"})
	if err == nil {
		t.Fatal("expected DuplicateError")
	}
	if _, ok := err.(*DuplicateError); !ok {
		t.Fatalf("expected *DuplicateError, got %T", err)
	}
}

func TestProjectionIsolatesInvalidation(t *testing.T) {
	counter := newCallCounter()
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"f": func(ctx *Context) (dicekey.Value, error) {
			h, err := ctx.ComputeOpaque(context.Background(), testKey{"cfg"})
			if err != nil {
				return nil, err
			}
			return ctx.Project(context.Background(), h, testProjection{field: "a"})
		},
	}}
	e := New(ev)

	u := e.NewUpdater()
	_ = u.UpdateValue(testKey{"cfg"}, map[string]int{"a": 1, "b": 1})
	u.Commit()

	v1 := e.NewView()
	got, err := v1.Compute(context.Background(), testKey{"f"})
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("f = %v, want 1", got)
	}
	v1.Close()
	if got := counter.get("f"); got != 1 {
		t.Fatalf("f evaluated %d times, want 1", got)
	}

	// Change cfg.b only — the field f's projection does NOT depend on.
	u2 := e.NewUpdater()
	_ = u2.UpdateValue(testKey{"cfg"}, map[string]int{"a": 1, "b": 9})
	u2.Commit()

	v2 := e.NewView()
	defer v2.Close()
	got2, err := v2.Compute(context.Background(), testKey{"f"})
	if err != nil {
		t.Fatal(err)
	}
	if got2 != 1 {
		t.Fatalf("f = %v, want 1 (unaffected by cfg.b change)", got2)
	}
	if got := counter.get("f"); got != 1 {
		t.Fatalf("f evaluated %d times after an unrelated field changed, want still 1", got)
	}
}

func TestProjectionRecomputesWhenProjectedFieldChanges(t *testing.T) {
	counter := newCallCounter()
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"f": func(ctx *Context) (dicekey.Value, error) {
			h, err := ctx.ComputeOpaque(context.Background(), testKey{"cfg"})
			if err != nil {
				return nil, err
			}
			return ctx.Project(context.Background(), h, testProjection{field: "a"})
		},
	}}
	e := New(ev)

	u := e.NewUpdater()
	_ = u.UpdateValue(testKey{"cfg"}, map[string]int{"a": 1})
	u.Commit()
	v1 := e.NewView()
	if _, err := v1.Compute(context.Background(), testKey{"f"}); err != nil {
		t.Fatal(err)
	}
	v1.Close()

	u2 := e.NewUpdater()
	_ = u2.UpdateValue(testKey{"cfg"}, map[string]int{"a": 2})
	u2.Commit()

	v2 := e.NewView()
	defer v2.Close()
	got, err := v2.Compute(context.Background(), testKey{"f"})
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Fatalf("f = %v, want 2", got)
	}
	if got := counter.get("f"); got != 2 {
		t.Fatalf("f evaluated %d times, want 2 (projected field actually changed)", got)
	}
}

func TestComputeOpaqueDoesNotRecordDependencyUntilDereferenced(t *testing.T) {
	counter := newCallCounter()
	ev := &scriptedEvaluator{counter: counter, fns: map[string]func(ctx *Context) (dicekey.Value, error){
		"f": func(ctx *Context) (dicekey.Value, error) {
			_, err := ctx.ComputeOpaque(context.Background(), testKey{"b"})
			return 7, err
		},
	}}
	e := New(ev)
	u := e.NewUpdater()
	_ = u.UpdateValue(testKey{"b"}, 1)
	u.Commit()

	v1 := e.NewView()
	if _, err := v1.Compute(context.Background(), testKey{"f"}); err != nil {
		t.Fatal(err)
	}
	v1.Close()

	// Change b AND force f through CheckDeps (rather than a trivial Match)
	// by invalidating f directly too: since f never dereferenced its
	// handle, its recorded dependency list is empty, so CheckDeps succeeds
	// vacuously and the evaluator must not run again.
	u2 := e.NewUpdater()
	_ = u2.UpdateValue(testKey{"b"}, 2)
	_ = u2.Invalidate(testKey{"f"})
	u2.Commit()

	v2 := e.NewView()
	defer v2.Close()
	if _, err := v2.Compute(context.Background(), testKey{"f"}); err != nil {
		t.Fatal(err)
	}
	if got := counter.get("f"); got != 1 {
		t.Fatalf("f evaluated %d times, want 1 (no dependency was ever recorded)", got)
	}
}
