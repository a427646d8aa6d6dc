package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zkrollup-network/batch-submitter/pkg/metrics"
)

// Metrics collects the pipeline-level counters and histograms. A single
// instance is shared process-wide because collectors register into the
// process registry exactly once.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	DeadLettered  prometheus.Counter
	BreakerOpens  prometheus.Counter
	TxSubmitted   *prometheus.CounterVec
	ArchivePosts  *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	BatchDuration prometheus.Histogram
	Pending       prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the shared orchestrator metrics, registering them on
// first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		reg := metrics.NewComponentRegistry("batch_submitter", "orchestrator")
		metricsInstance = &Metrics{
			Transitions: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "batch_transitions_total",
				Help: "Batch status transitions by edge.",
			}, []string{"from", "to"}),
			Failures: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "batch_failures_total",
				Help: "Step failures by the status they occurred in.",
			}, []string{"stage"}),
			DeadLettered: reg.NewCounter(prometheus.CounterOpts{
				Name: "batches_failed_permanent_total",
				Help: "Batches terminally failed by a permanent error or after exhausting attempts.",
			}),
			BreakerOpens: reg.NewCounter(prometheus.CounterOpts{
				Name: "prover_breaker_opens_total",
				Help: "Times the prover circuit breaker opened.",
			}),
			TxSubmitted: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "tx_submitted_total",
				Help: "Transactions broadcast to the L1 by DA mode.",
			}, []string{"mode"}),
			ArchivePosts: reg.NewCounterVec(prometheus.CounterOpts{
				Name: "archive_posts_total",
				Help: "Blob archive attempts by result.",
			}, []string{"result"}),
			StepDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "step_duration_seconds",
				Help:    "Duration of one status-step handler.",
				Buckets: metrics.DurationBuckets,
			}, []string{"step"}),
			BatchDuration: reg.NewHistogram(prometheus.HistogramOpts{
				Name:    "batch_e2e_duration_seconds",
				Help:    "Time from batch creation to confirmation.",
				Buckets: metrics.DurationBuckets,
			}),
			Pending: reg.NewGauge(prometheus.GaugeOpts{
				Name: "pending_batches",
				Help: "Non-terminal batches seen by the last tick.",
			}),
		}
	})
	return metricsInstance
}
