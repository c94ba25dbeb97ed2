// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/featurestore"
	"github.com/tomtom215/featurestore/internal/models"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Database:   config.DatabaseConfig{Driver: config.DriverMemory},
		Scores:     config.ScoresConfig{Backend: config.ScoreBackendDatabase, DefaultLimit: 5, MaxLimit: 50},
		Embeddings: config.EmbeddingsConfig{MaxSubjects: 100},
		Assignment: config.AssignmentConfig{MaxConflictRetries: 3},
		Breaker: config.BreakerConfig{
			Enabled:      true,
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      time.Second,
			MinRequests:  5,
			FailureRatio: 0.5,
		},
	}
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	_, err := OpenBackend(context.Background(), &config.DatabaseConfig{Driver: "sqlite"})
	if err == nil {
		t.Fatal("OpenBackend(sqlite) error = nil, want error")
	}
}

func TestOpen_MemoryStack(t *testing.T) {
	ctx := context.Background()
	stack, err := Open(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = stack.Close() })

	if stack.Backend.Name() != "memory" {
		t.Errorf("Backend.Name() = %q, want memory", stack.Backend.Name())
	}
	if len(stack.Breakers) != 1 {
		t.Errorf("Breakers = %d, want 1 shared by all repositories", len(stack.Breakers))
	}
	if stack.ScoreStore != nil {
		t.Error("ScoreStore set for database score backend")
	}

	exp, err := stack.Backend.UpsertExperiment(ctx, &models.Experiment{
		Name:              "Hybrid ranking",
		Slug:              "hybrid-ranking",
		Status:            models.StatusRunning,
		TrafficPercentage: 50,
	})
	if err != nil {
		t.Fatalf("UpsertExperiment() error = %v", err)
	}

	erin := models.Subject{ID: uuid.New(), Email: "erin@example.com"}
	res, err := stack.Assigner.AssignBySlug(ctx, exp.Slug, erin)
	if err != nil {
		t.Fatalf("AssignBySlug() error = %v", err)
	}
	if !res.Included || res.Bucket != 30 || res.Variant != models.VariantTreatment {
		t.Errorf("result = %+v, want included bucket 30 treatment", res)
	}

	if err := stack.Scores.Replace(ctx, erin.ID, "als-v3", []featurestore.Candidate{
		{ItemID: uuid.New(), Score: 0.8},
	}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if err := stack.DeleteSubject(ctx, erin.ID); err != nil {
		t.Fatalf("DeleteSubject() error = %v", err)
	}
	if _, err := stack.Backend.GetAssignment(ctx, exp.ID, erin.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetAssignment() after delete error = %v, want ErrNotFound", err)
	}
	versions, err := stack.Scores.ModelVersions(ctx, erin.ID)
	if err != nil {
		t.Fatalf("ModelVersions() error = %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("ModelVersions() = %v, want none", versions)
	}
}

func TestOpen_BreakerDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.Breaker.Enabled = false
	stack, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = stack.Close() }()
	if len(stack.Breakers) != 0 {
		t.Errorf("Breakers = %d, want 0", len(stack.Breakers))
	}
}
