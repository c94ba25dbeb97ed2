// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/featurestore/internal/models"
)

func TestRecordAssignment(t *testing.T) {
	before := testutil.ToFloat64(AssignmentsTotal.WithLabelValues(OutcomeCreated))
	RecordAssignment(OutcomeCreated)
	RecordAssignment(OutcomeCreated)

	if got := testutil.ToFloat64(AssignmentsTotal.WithLabelValues(OutcomeCreated)); got != before+2 {
		t.Errorf("assignments_total{created} = %v, want %v", got, before+2)
	}
}

func TestRecordScoreReplacement(t *testing.T) {
	before := testutil.ToFloat64(ScoreReplacementsTotal.WithLabelValues("duckdb"))
	RecordScoreReplacement("duckdb", 40)

	if got := testutil.ToFloat64(ScoreReplacementsTotal.WithLabelValues("duckdb")); got != before+1 {
		t.Errorf("score_replacements_total{duckdb} = %v, want %v", got, before+1)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"unavailable", models.NewStoreError("postgres", "top_scores", errors.New("dial tcp: refused")), "unavailable"},
		{"conflict", fmt.Errorf("insert: %w", models.ErrAssignmentConflict), "conflict"},
		{"dimension", models.ErrDimensionMismatch, "invalid"},
		{"not found", models.ErrNotFound, "not_found"},
		{"other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := "op_" + tt.kind
			before := testutil.ToFloat64(StoreErrors.WithLabelValues("test", op, tt.kind))
			RecordStoreOperation("test", op, 3*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(StoreErrors.WithLabelValues("test", op, tt.kind)); got != before+1 {
				t.Errorf("store_errors_total{%s} = %v, want %v", tt.kind, got, before+1)
			}
		})
	}
}

func TestRecordStoreOperation_SuccessCountsNoError(t *testing.T) {
	RecordStoreOperation("test", "ping", time.Millisecond, nil)
	if got := testutil.ToFloat64(StoreErrors.WithLabelValues("test", "ping", "other")); got != 0 {
		t.Errorf("store_errors_total after success = %v, want 0", got)
	}
}
