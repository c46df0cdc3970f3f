// Package metrics defines the Prometheus metrics exported by the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unknownLabel = "unknown"

var (
	// RequestsTotal counts inbound chat requests by final outcome
	// (admitted, too_fast, rate_limit_exceeded, volume_cap_exceeded,
	// unauthorized, service_disabled, upstream_error, internal_error).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "The total number of chat requests by outcome",
		},
		[]string{"outcome"},
	)

	// AdmissionDecisions counts admission gate decisions by outcome.
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admission_decisions_total",
			Help: "The total number of admission gate decisions by outcome",
		},
		[]string{"outcome"},
	)

	// StoreConflicts counts optimistic-concurrency conflicts hit while
	// updating caller counter records.
	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_store_conflicts_total",
			Help: "The total number of counter store update conflicts",
		},
	)

	// StoreRetriesExhausted counts admission decisions abandoned because
	// every update attempt conflicted.
	StoreRetriesExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_store_retries_exhausted_total",
			Help: "The total number of admission decisions that ran out of update attempts",
		},
	)

	// UpstreamLatency tracks the duration of upstream completion calls.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_latency_seconds",
			Help:    "The duration of upstream completion calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
)

// RecordRequest records the final outcome of an inbound request.
func RecordRequest(outcome string) {
	if outcome == "" {
		outcome = unknownLabel
	}
	RequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordAdmissionDecision records an admission gate outcome.
func RecordAdmissionDecision(outcome string) {
	if outcome == "" {
		outcome = unknownLabel
	}
	AdmissionDecisions.WithLabelValues(outcome).Inc()
}

// RecordStoreConflict records one optimistic-concurrency conflict.
func RecordStoreConflict() {
	StoreConflicts.Inc()
}

// RecordStoreRetriesExhausted records an admission decision that failed
// because all update attempts conflicted.
func RecordStoreRetriesExhausted() {
	StoreRetriesExhausted.Inc()
}

// RecordUpstreamCall records the duration and status of an upstream call.
func RecordUpstreamCall(status string, seconds float64) {
	if status == "" {
		status = unknownLabel
	}
	UpstreamLatency.WithLabelValues(status).Observe(seconds)
}
