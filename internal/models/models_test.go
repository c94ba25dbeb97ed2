// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSubjectKey(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("7f3e1c2a-9b8d-4e6f-a1b2-c3d4e5f60718")

	tests := []struct {
		name    string
		subject Subject
		want    string
		source  string
	}{
		{"email normalized", Subject{ID: id, Email: "  Alice@Example.COM "}, "alice@example.com", "email"},
		{"id fallback", Subject{ID: id}, "7f3e1c2a-9b8d-4e6f-a1b2-c3d4e5f60718", "id"},
		{"blank email falls back", Subject{ID: id, Email: "   "}, id.String(), "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.subject.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
			if got := tt.subject.KeySource(); got != tt.source {
				t.Errorf("KeySource() = %q, want %q", got, tt.source)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	t.Parallel()

	for _, s := range AllStatuses() {
		if _, err := ParseExperimentStatus(string(s)); err != nil {
			t.Errorf("ParseExperimentStatus(%q) error = %v", s, err)
		}
	}
	if _, err := ParseExperimentStatus("archived"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseExperimentStatus(archived) error = %v, want ErrInvalidInput", err)
	}

	for _, v := range []string{"control", "treatment", "holdout"} {
		if _, err := ParseVariant(v); err != nil {
			t.Errorf("ParseVariant(%q) error = %v", v, err)
		}
	}
	if _, err := ParseVariant("variant_c"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseVariant(variant_c) error = %v, want ErrInvalidInput", err)
	}

	if k, err := ParseSubjectKind("item"); err != nil || k != KindItem {
		t.Errorf("ParseSubjectKind(item) = %v, %v", k, err)
	}
	if _, err := ParseSubjectKind("session"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseSubjectKind(session) error = %v, want ErrInvalidInput", err)
	}
}

func TestExperimentActiveAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name string
		exp  Experiment
		want bool
	}{
		{"running no window", Experiment{Status: StatusRunning}, true},
		{"paused", Experiment{Status: StatusPaused}, false},
		{"draft", Experiment{Status: StatusDraft}, false},
		{"not started", Experiment{Status: StatusRunning, StartAt: &after}, false},
		{"started", Experiment{Status: StatusRunning, StartAt: &before}, true},
		{"ended", Experiment{Status: StatusRunning, EndAt: &before}, false},
		{"end is exclusive", Experiment{Status: StatusRunning, EndAt: &now}, false},
		{"inside window", Experiment{Status: StatusRunning, StartAt: &before, EndAt: &after}, true},
	}

	for _, tt := range tests {
		if got := tt.exp.ActiveAt(now); got != tt.want {
			t.Errorf("%s: ActiveAt() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestVariantConfig(t *testing.T) {
	t.Parallel()

	exp := Experiment{
		VariantAConfig: map[string]string{"model_version": "cf-v0.9"},
		VariantBConfig: map[string]string{"model_version": "hybrid-v1.0"},
	}
	if got := exp.VariantConfig(VariantControl)["model_version"]; got != "cf-v0.9" {
		t.Errorf("control config = %q, want cf-v0.9", got)
	}
	if got := exp.VariantConfig(VariantTreatment)["model_version"]; got != "hybrid-v1.0" {
		t.Errorf("treatment config = %q, want hybrid-v1.0", got)
	}
	if got := exp.VariantConfig(VariantHoldout); got != nil {
		t.Errorf("holdout config = %v, want nil", got)
	}
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := fmt.Errorf("replace scores: %w", NewStoreError("postgres", "replace_scores", cause))

	if !errors.Is(err, ErrStoreUnavailable) {
		t.Error("errors.Is(err, ErrStoreUnavailable) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Backend != "postgres" || se.Op != "replace_scores" {
		t.Errorf("errors.As StoreError = %+v", se)
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
	if IsRetryable(ErrDimensionMismatch) {
		t.Error("IsRetryable(ErrDimensionMismatch) = true, want false")
	}
	if NewStoreError("duckdb", "ping", nil) != nil {
		t.Error("NewStoreError(nil) != nil")
	}
}

func TestCheckScoreSet(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	row := func(item uuid.UUID, rank int) RecommendationScore {
		return RecommendationScore{ItemID: item, Rank: rank}
	}

	tests := []struct {
		name    string
		scores  []RecommendationScore
		wantErr error
	}{
		{"empty", nil, nil},
		{"distinct", []RecommendationScore{row(a, 1), row(b, 2)}, nil},
		{"duplicate item", []RecommendationScore{row(a, 1), row(a, 2)}, ErrDuplicateItem},
		{"duplicate rank", []RecommendationScore{row(a, 1), row(b, 1)}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScoreSet(tt.scores)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckScoreSet() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrInvalidInput) {
				t.Errorf("CheckScoreSet() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStorageTime(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := time.FixedZone("CET", 3600)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"whole microseconds", base.Add(7 * time.Microsecond), base.Add(7 * time.Microsecond)},
		{"sub-microsecond dropped", base.Add(1500 * time.Nanosecond), base.Add(time.Microsecond)},
		{"converted to UTC", base.In(local).Add(999 * time.Nanosecond), base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StorageTime(tt.in)
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("StorageTime(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	start := base.Add(42 * time.Nanosecond)
	exp := Experiment{StartAt: &start}
	exp.NormalizeTimes()
	if !exp.StartAt.Equal(base) || exp.EndAt != nil {
		t.Errorf("NormalizeTimes() = %v/%v, want %v/nil", exp.StartAt, exp.EndAt, base)
	}
	if !start.Equal(base.Add(42 * time.Nanosecond)) {
		t.Errorf("NormalizeTimes() mutated the caller's time: %v", start)
	}
}
