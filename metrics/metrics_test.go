package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewNamespacesMetricsWithGivenPrefix(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg, "customns")

	p.IncEvaluatorCall()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "customns_evaluator_calls_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a customns_evaluator_calls_total metric, got %v", mfs)
	}
}

func TestIncEvaluatorCallIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg, "")

	p.IncEvaluatorCall()
	p.IncEvaluatorCall()

	if got := testutil.ToFloat64(p.evaluatorCalls); got != 2 {
		t.Fatalf("evaluator_calls_total = %v, want 2", got)
	}
}

func TestSetInFlightSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg, "")

	p.SetInFlight(3)
	if got := testutil.ToFloat64(p.inflight); got != 3 {
		t.Fatalf("inflight_evaluations = %v, want 3", got)
	}
	p.SetInFlight(0)
	if got := testutil.ToFloat64(p.inflight); got != 0 {
		t.Fatalf("inflight_evaluations = %v, want 0", got)
	}
}

func TestDisableSuppressesRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg, "")

	p.Disable()
	p.IncEvaluatorCall()
	p.IncCycle()
	p.SetInFlight(5)

	if got := testutil.ToFloat64(p.evaluatorCalls); got != 0 {
		t.Fatalf("evaluator_calls_total = %v, want 0 while disabled", got)
	}
	if got := testutil.ToFloat64(p.inflight); got != 0 {
		t.Fatalf("inflight_evaluations = %v, want 0 while disabled", got)
	}

	p.Enable()
	p.IncCycle()
	if got := testutil.ToFloat64(p.cyclesDetected); got != 1 {
		t.Fatalf("cycles_detected_total = %v, want 1 after re-enable", got)
	}
}

func TestResetZeroesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg, "")

	p.SetInFlight(7)
	p.Reset()

	if got := testutil.ToFloat64(p.inflight); got != 0 {
		t.Fatalf("inflight_evaluations = %v, want 0 after Reset", got)
	}
}

func TestMaterializeHelpersRecordAgainstLabeledSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg, "")

	p.RecordMaterializeLatency("cas_fetch", "success", 42)
	p.AddMaterializeBytes("cas_fetch", 1024)
	p.IncMaterializeRetry("checksum_mismatch")
	p.AddCleanerReclaimed(2048)

	if got := testutil.ToFloat64(p.materializeBytes.WithLabelValues("cas_fetch")); got != 1024 {
		t.Fatalf("materialize_bytes_total{method=cas_fetch} = %v, want 1024", got)
	}
	if got := testutil.ToFloat64(p.materializeRetries.WithLabelValues("checksum_mismatch")); got != 1 {
		t.Fatalf("materialize_retries_total{reason=checksum_mismatch} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.cleanerReclaimed); got != 2048 {
		t.Fatalf("cleaner_reclaimed_bytes_total = %v, want 2048", got)
	}
}
