// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package metrics holds the Prometheus collectors for featurestore.
// Collectors register with the default registry through promauto and are
// exposed by the ops HTTP server on /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/featurestore/internal/models"
)

// Assignment outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeExisting  = "existing"
	OutcomeExcluded  = "excluded"
	OutcomeInactive  = "inactive"
	OutcomeConflict  = "conflict_resolved"
	OutcomeStoreFail = "store_error"
)

var (
	// Assignment Metrics
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_assignments_total",
			Help: "Assignment calls by outcome",
		},
		[]string{"outcome"},
	)

	// Score Materializer Metrics
	ScoreReplacementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_score_replacements_total",
			Help: "Completed score-set replacements",
		},
		[]string{"backend"},
	)

	ScoreSetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "featurestore_score_set_size",
			Help:    "Number of candidates written per score-set replacement",
			Buckets: []float64{0, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Embedding Metrics
	EmbeddingUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_embedding_upserts_total",
			Help: "Embedding upserts by subject kind",
		},
		[]string{"kind"},
	)

	EmbeddingLookupMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_embedding_lookup_misses_total",
			Help: "Subjects requested from Latest with no stored embedding",
		},
		[]string{"kind"},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "featurestore_store_operation_duration_seconds",
			Help:    "Duration of storage backend operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_store_errors_total",
			Help: "Storage backend errors by kind",
		},
		[]string{"backend", "operation", "kind"}, // kind: unavailable, invalid, conflict, other
	)

	StoreUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "featurestore_store_up",
			Help: "Result of the last store health probe (1=up, 0=down)",
		},
		[]string{"backend"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Ops HTTP Metrics
	OpsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_ops_requests_total",
			Help: "Requests served by the ops listener",
		},
		[]string{"method", "route", "status"},
	)

	OpsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "featurestore_ops_request_duration_seconds",
			Help:    "Ops listener request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordAssignment counts one assignment outcome.
func RecordAssignment(outcome string) {
	AssignmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordScoreReplacement records a committed replacement of size n.
func RecordScoreReplacement(backend string, n int) {
	ScoreReplacementsTotal.WithLabelValues(backend).Inc()
	ScoreSetSize.Observe(float64(n))
}

// RecordStoreOperation records latency and, on failure, the error kind.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(backend, operation, errorKind(err)).Inc()
	}
}

// RecordOpsRequest records one ops listener request. route is the matched
// pattern, not the raw path.
func RecordOpsRequest(method, route, status string, duration time.Duration) {
	OpsRequestsTotal.WithLabelValues(method, route, status).Inc()
	OpsRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrAssignmentConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrDimensionMismatch):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
