// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package database

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/models"
)

func TestUpsertExperiment_CreateAndReplace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	startAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in := runningExperiment("hybrid-ranking", 40)
	in.Description = "Hybrid ranker vs baseline"
	in.SecondaryMetrics = []string{"dwell_time", "conversions"}
	in.StartAt = &startAt

	created, err := db.UpsertExperiment(ctx, in)
	if err != nil {
		t.Fatalf("UpsertExperiment() error = %v", err)
	}
	if created.ID == uuid.Nil || created.CreatedAt.IsZero() {
		t.Fatalf("UpsertExperiment() = %+v, want id and created_at", created)
	}
	if created.PrimaryMetric != models.DefaultPrimaryMetric {
		t.Errorf("PrimaryMetric = %q, want default %q", created.PrimaryMetric, models.DefaultPrimaryMetric)
	}

	got, err := db.GetExperiment(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetExperiment() error = %v", err)
	}
	if got.Slug != "hybrid-ranking" || got.TrafficPercentage != 40 || got.Status != models.StatusRunning {
		t.Errorf("GetExperiment() = %+v", got)
	}
	if !reflect.DeepEqual(got.SecondaryMetrics, in.SecondaryMetrics) {
		t.Errorf("SecondaryMetrics = %v, want %v", got.SecondaryMetrics, in.SecondaryMetrics)
	}
	if got.VariantConfig(models.VariantTreatment)["ranker"] != "hybrid" {
		t.Errorf("VariantBConfig = %v", got.VariantBConfig)
	}
	if got.StartAt == nil || !got.StartAt.Equal(startAt) {
		t.Errorf("StartAt = %v, want %v", got.StartAt, startAt)
	}
	if got.EndAt != nil {
		t.Errorf("EndAt = %v, want nil", got.EndAt)
	}

	update := runningExperiment("hybrid-ranking", 80)
	update.Status = models.StatusPaused
	replaced, err := db.UpsertExperiment(ctx, update)
	if err != nil {
		t.Fatalf("UpsertExperiment(update) error = %v", err)
	}
	if replaced.ID != created.ID {
		t.Errorf("replace changed id: %s -> %s", created.ID, replaced.ID)
	}
	if !replaced.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("replace changed created_at: %v -> %v", created.CreatedAt, replaced.CreatedAt)
	}

	bySlug, err := db.GetExperimentBySlug(ctx, "hybrid-ranking")
	if err != nil {
		t.Fatalf("GetExperimentBySlug() error = %v", err)
	}
	if bySlug.Status != models.StatusPaused || bySlug.TrafficPercentage != 80 || bySlug.StartAt != nil {
		t.Errorf("GetExperimentBySlug() after replace = %+v", bySlug)
	}
}

func TestUpsertExperiment_Invalid(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		name string
		mut  func(*models.Experiment)
	}{
		{"no slug", func(e *models.Experiment) { e.Slug = "" }},
		{"traffic zero", func(e *models.Experiment) { e.TrafficPercentage = 0 }},
		{"traffic over 100", func(e *models.Experiment) { e.TrafficPercentage = 101 }},
		{"unknown status", func(e *models.Experiment) { e.Status = "archived" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := runningExperiment("invalid", 10)
			tt.mut(exp)
			if _, err := db.UpsertExperiment(context.Background(), exp); !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("UpsertExperiment() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestGetExperiment_NotFound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetExperiment(ctx, uuid.New()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetExperiment() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetExperimentBySlug(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetExperimentBySlug() error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteExperiment(ctx, uuid.New()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("DeleteExperiment() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteExperiment_Cascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	exp, err := db.UpsertExperiment(ctx, runningExperiment("doomed", 100))
	if err != nil {
		t.Fatalf("UpsertExperiment() error = %v", err)
	}
	survivor, err := db.UpsertExperiment(ctx, runningExperiment("survivor", 100))
	if err != nil {
		t.Fatalf("UpsertExperiment() error = %v", err)
	}

	subject := uuid.New()
	for _, e := range []*models.Experiment{exp, survivor} {
		a := &models.Assignment{ID: uuid.New(), ExperimentID: e.ID, SubjectID: subject, Variant: models.VariantTreatment, AssignedAt: time.Now()}
		if _, _, err := db.CreateAssignment(ctx, a); err != nil {
			t.Fatalf("CreateAssignment() error = %v", err)
		}
	}

	if err := db.DeleteExperiment(ctx, exp.ID); err != nil {
		t.Fatalf("DeleteExperiment() error = %v", err)
	}

	if _, err := db.GetExperimentBySlug(ctx, "doomed"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("deleted experiment still readable: %v", err)
	}
	if _, err := db.GetAssignment(ctx, exp.ID, subject); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("assignment survived experiment delete: %v", err)
	}
	if events, _ := db.ListEvents(ctx, exp.ID, 10); len(events) != 0 {
		t.Errorf("events survived experiment delete: %v", events)
	}
	if _, err := db.GetAssignment(ctx, survivor.ID, subject); err != nil {
		t.Errorf("other experiment's assignment removed: %v", err)
	}
}
