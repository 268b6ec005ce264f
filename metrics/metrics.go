// Package metrics provides a Prometheus-backed implementation of the
// instrumentation sinks consumed by the dice and materializer packages,
// keeping both free of a direct Prometheus import (the same
// dependency-inversion shape the teacher used for its own WithMetrics
// option).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exposes counters and gauges for the incremental engine
// (dice.StatsSink) and the materializer, all namespaced under whatever
// New is given (config.Config.PrometheusNamespace; "dicemat_" by default).
//
// Metrics exposed:
//
//  1. evaluator_calls_total (counter): fresh Evaluate invocations.
//     Use: volume of real recompute work versus cache hits.
//  2. early_cutoffs_total (counter): CheckDeps passes that avoided a
//     recompute. Labels: none.
//     Use: effectiveness of fine-grained invalidation.
//  3. checkdeps_misses_total (counter): CheckDeps attempts that fell
//     through to a fresh Compute because some dependency had actually
//     changed.
//  4. cycles_detected_total (counter): request chains that closed a cycle.
//  5. inflight_evaluations (gauge): number of evaluator calls currently
//     running or awaited, across all versions.
//  6. materialize_latency_ms (histogram): duration of a materialize
//     operation for one artifact path. Labels: method (copy/symlink/
//     cas_fetch/http_fetch), status (success/error).
//  7. materialize_bytes_total (counter): bytes written by materialize
//     operations. Labels: method.
//  8. materialize_retries_total (counter): retry attempts during
//     materialize, labeled by reason (transient_error for HTTP fetch
//     retries; checksum mismatches are never retried).
//  9. cleaner_reclaimed_bytes_total (counter): bytes removed by clean_stale.
//
// Thread-safe: all methods use atomic Prometheus collector operations or
// the mutex around the enabled flag.
type Prometheus struct {
	evaluatorCalls  prometheus.Counter
	earlyCutoffs    prometheus.Counter
	checkDepsMisses prometheus.Counter
	cyclesDetected  prometheus.Counter
	inflight        prometheus.Gauge

	materializeLatency prometheus.HistogramVec
	materializeBytes   prometheus.CounterVec
	materializeRetries prometheus.CounterVec
	cleanerReclaimed   prometheus.Counter

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// New creates and registers every metric against registry, prefixed by
// namespace (config.Config.PrometheusNamespace). Passing nil for registry
// registers against prometheus.DefaultRegisterer; passing "" for namespace
// falls back to "dicemat".
func New(registry prometheus.Registerer, namespace string) *Prometheus {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "dicemat"
	}
	factory := promauto.With(registry)

	p := &Prometheus{
		registry: registry,
		enabled:  true,
	}

	p.evaluatorCalls = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluator_calls_total",
		Help:      "Cumulative count of fresh Evaluator.Evaluate invocations",
	})
	p.earlyCutoffs = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "early_cutoffs_total",
		Help:      "CheckDeps passes that avoided a recompute because all dependencies were unchanged",
	})
	p.checkDepsMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkdeps_misses_total",
		Help:      "CheckDeps attempts that fell through to a fresh Compute",
	})
	p.cyclesDetected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_detected_total",
		Help:      "Request chains that closed a dependency cycle",
	})
	p.inflight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_evaluations",
		Help:      "Current number of evaluator calls running or awaited",
	})
	p.materializeLatency = *factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "materialize_latency_ms",
		Help:      "Materialize operation duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"method", "status"})
	p.materializeBytes = *factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "materialize_bytes_total",
		Help:      "Cumulative bytes written by materialize operations",
	}, []string{"method"})
	p.materializeRetries = *factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "materialize_retries_total",
		Help:      "Cumulative retry attempts during materialize",
	}, []string{"reason"})
	p.cleanerReclaimed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleaner_reclaimed_bytes_total",
		Help:      "Cumulative bytes removed by clean_stale runs",
	})

	return p
}

// IncEvaluatorCall implements dice.StatsSink.
func (p *Prometheus) IncEvaluatorCall() {
	if !p.isEnabled() {
		return
	}
	p.evaluatorCalls.Inc()
}

// IncEarlyCutoff implements dice.StatsSink.
func (p *Prometheus) IncEarlyCutoff() {
	if !p.isEnabled() {
		return
	}
	p.earlyCutoffs.Inc()
}

// IncCheckDepsMiss implements dice.StatsSink.
func (p *Prometheus) IncCheckDepsMiss() {
	if !p.isEnabled() {
		return
	}
	p.checkDepsMisses.Inc()
}

// IncCycle implements dice.StatsSink.
func (p *Prometheus) IncCycle() {
	if !p.isEnabled() {
		return
	}
	p.cyclesDetected.Inc()
}

// SetInFlight implements dice.StatsSink.
func (p *Prometheus) SetInFlight(n int) {
	if !p.isEnabled() {
		return
	}
	p.inflight.Set(float64(n))
}

// RecordMaterializeLatency records how long a materialize operation for
// one path took, labeled by the method that performed it and its outcome.
func (p *Prometheus) RecordMaterializeLatency(method, status string, ms float64) {
	if !p.isEnabled() {
		return
	}
	p.materializeLatency.WithLabelValues(method, status).Observe(ms)
}

// AddMaterializeBytes records bytes written by a materialize operation.
func (p *Prometheus) AddMaterializeBytes(method string, n int64) {
	if !p.isEnabled() {
		return
	}
	p.materializeBytes.WithLabelValues(method).Add(float64(n))
}

// IncMaterializeRetry records one materialize retry attempt for reason.
func (p *Prometheus) IncMaterializeRetry(reason string) {
	if !p.isEnabled() {
		return
	}
	p.materializeRetries.WithLabelValues(reason).Inc()
}

// AddCleanerReclaimed records bytes reclaimed by a clean_stale run.
func (p *Prometheus) AddCleanerReclaimed(n int64) {
	if !p.isEnabled() {
		return
	}
	p.cleanerReclaimed.Add(float64(n))
}

func (p *Prometheus) isEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// Disable stops all metric recording; useful in tests that don't want
// cross-test registry collisions to matter.
func (p *Prometheus) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// Enable re-enables metric recording after Disable.
func (p *Prometheus) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

// Reset zeroes the gauges. Counters and histograms are cumulative by
// Prometheus design and cannot be reset in place.
func (p *Prometheus) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight.Set(0)
}
