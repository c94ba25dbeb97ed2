// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package validation

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

func validEmbedding() models.Embedding {
	return models.Embedding{
		ID:           uuid.New(),
		SubjectID:    uuid.New(),
		ModelVersion: "two-tower-v3",
		Vector:       []float64{0.1, 0.2, 0.3},
		Dimension:    3,
		ComputedAt:   time.Now().UTC(),
	}
}

func TestValidateStruct_Embedding(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *models.Embedding)
		wantTag string
	}{
		{"valid", func(e *models.Embedding) {}, ""},
		{"missing model version", func(e *models.Embedding) { e.ModelVersion = "" }, "required"},
		{"model version too long", func(e *models.Embedding) { e.ModelVersion = strings.Repeat("v", 65) }, "max"},
		{"empty vector", func(e *models.Embedding) { e.Vector = []float64{} }, "min"},
		{"nan component", func(e *models.Embedding) { e.Vector[1] = math.NaN() }, "finite"},
		{"inf component", func(e *models.Embedding) { e.Vector[0] = math.Inf(1) }, "finite"},
		{"zero subject", func(e *models.Embedding) { e.SubjectID = uuid.Nil }, "required"},
		{"zero computed_at", func(e *models.Embedding) { e.ComputedAt = time.Time{} }, "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEmbedding()
			tt.mutate(&e)

			err := ValidateStruct(&e)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() = nil, want %s failure", tt.wantTag)
			}
			if !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("errors.Is(err, ErrInvalidInput) = false")
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if verr.Fields[0].Tag != tt.wantTag {
				t.Errorf("tag = %q, want %q (%v)", verr.Fields[0].Tag, tt.wantTag, err)
			}
		})
	}
}

func TestValidateStruct_Experiment(t *testing.T) {
	exp := models.Experiment{
		Name:              "Hybrid ranking",
		Slug:              "hybrid-ranking",
		Status:            models.StatusRunning,
		TrafficPercentage: 50,
	}
	if err := ValidateStruct(&exp); err != nil {
		t.Fatalf("ValidateStruct() error = %v", err)
	}

	exp.TrafficPercentage = 0
	exp.Status = "archived"
	err := ValidateStruct(&exp)
	if err == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "TrafficPercentage must be at least 1") {
		t.Errorf("message missing traffic bound: %s", msg)
	}
	if !strings.Contains(msg, "Status must be one of") {
		t.Errorf("message missing status enum: %s", msg)
	}
}

func TestValidateStruct_ScoreFinite(t *testing.T) {
	s := models.RecommendationScore{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		ItemID:       uuid.New(),
		ModelVersion: "mf-v1",
		Score:        math.NaN(),
		Rank:         1,
		ComputedAt:   time.Now(),
	}
	if err := ValidateStruct(&s); err == nil {
		t.Error("ValidateStruct() = nil for NaN score")
	}
}
