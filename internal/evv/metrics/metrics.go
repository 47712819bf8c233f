// Package metrics exposes the submission engine's Prometheus
// instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the engine emits. One instance is wired
// through the orchestrator and retry worker at startup.
type Metrics struct {
	SubmissionsTotal    *prometheus.CounterVec
	SubmissionDuration  *prometheus.HistogramVec
	ValidationFailures  *prometheus.CounterVec
	RetriesTotal        *prometheus.CounterVec
	RetriesExhausted    *prometheus.CounterVec
	PendingTransactions *prometheus.GaugeVec
	SequenceAllocations *prometheus.CounterVec
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evv",
			Name:      "submissions_total",
			Help:      "Submissions by record type and outcome.",
		}, []string{"record_type", "outcome"}),
		SubmissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evv",
			Name:      "submission_duration_seconds",
			Help:      "End-to-end submission latency including the aggregator round trip.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"record_type"}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evv",
			Name:      "validation_failures_total",
			Help:      "Pre-flight validation failures by record type and category code.",
		}, []string{"record_type", "code"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evv",
			Name:      "retries_total",
			Help:      "Retry attempts by record type.",
		}, []string{"record_type"}),
		RetriesExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evv",
			Name:      "retries_exhausted_total",
			Help:      "Transactions that ran out of retry budget.",
		}, []string{"record_type"}),
		PendingTransactions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "evv",
			Name:      "pending_transactions",
			Help:      "Transactions awaiting retry by record type.",
		}, []string{"record_type"}),
		SequenceAllocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evv",
			Name:      "sequence_allocations_total",
			Help:      "Sequence numbers handed out by record type.",
		}, []string{"record_type"}),
	}
}

// NewNop returns metrics on a throwaway registry for tests and optional
// wiring.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
