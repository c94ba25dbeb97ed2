// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/featurestore/internal/abtest"
	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/featurestore"
	"github.com/tomtom215/featurestore/internal/memstore"
	"github.com/tomtom215/featurestore/internal/models"
)

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      50 * time.Millisecond,
		MinRequests:  3,
		FailureRatio: 0.5,
	}
}

// flakyScores fails every call with err until healthy is set.
type flakyScores struct {
	err     error
	healthy bool
	calls   int
}

func (f *flakyScores) Name() string { return "flaky" }

func (f *flakyScores) ReplaceScores(context.Context, uuid.UUID, string, []models.RecommendationScore) error {
	f.calls++
	if f.healthy {
		return nil
	}
	return f.err
}

func (f *flakyScores) TopScores(context.Context, uuid.UUID, string, int) ([]models.RankedItem, error) {
	f.calls++
	if f.healthy {
		return []models.RankedItem{{ItemID: uuid.New(), Score: 1, Rank: 1}}, nil
	}
	return nil, f.err
}

func (f *flakyScores) ModelVersions(context.Context, uuid.UUID) ([]string, error) {
	f.calls++
	if f.healthy {
		return []string{"v1"}, nil
	}
	return nil, f.err
}

func TestBreaker_OpensOnStoreFailures(t *testing.T) {
	flaky := &flakyScores{err: models.NewStoreError("flaky", "top_scores", errors.New("connection reset"))}
	b := NewBreaker("test-open", testBreakerConfig())
	s := WrapScores(flaky, b)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.TopScores(ctx, uuid.New(), "v1", 5); !models.IsRetryable(err) {
			t.Fatalf("call %d error = %v, want retryable", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State() = %q, want open", b.State())
	}

	callsBefore := flaky.calls
	_, err := s.TopScores(ctx, uuid.New(), "v1", 5)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
	if flaky.calls != callsBefore {
		t.Errorf("inner called %d times while open, want 0", flaky.calls-callsBefore)
	}
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	flaky := &flakyScores{err: models.NewStoreError("flaky", "model_versions", errors.New("timeout"))}
	b := NewBreaker("test-recover", testBreakerConfig())
	s := WrapScores(flaky, b)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = s.ModelVersions(ctx, uuid.New())
	}
	if b.State() != "open" {
		t.Fatalf("State() = %q, want open", b.State())
	}

	flaky.healthy = true
	time.Sleep(80 * time.Millisecond)

	versions, err := s.ModelVersions(ctx, uuid.New())
	if err != nil {
		t.Fatalf("ModelVersions() after timeout error = %v", err)
	}
	if len(versions) != 1 || versions[0] != "v1" {
		t.Errorf("ModelVersions() = %v, want [v1]", versions)
	}
	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed", b.State())
	}
}

func TestBreaker_DomainErrorsDoNotTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", models.ErrNotFound},
		{"invalid input", models.ErrInvalidInput},
		{"conflict", models.ErrAssignmentConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyScores{err: tt.err}
			b := NewBreaker("test-domain-"+tt.name, testBreakerConfig())
			s := WrapScores(flaky, b)

			for i := 0; i < 10; i++ {
				err := s.ReplaceScores(context.Background(), uuid.New(), "v1", nil)
				if !errors.Is(err, tt.err) {
					t.Fatalf("ReplaceScores() error = %v, want %v", err, tt.err)
				}
			}
			if b.State() != "closed" {
				t.Errorf("State() = %q, want closed", b.State())
			}
		})
	}
}

func TestWrappers_PassThrough(t *testing.T) {
	store := memstore.New()
	b := NewBreaker("test-pass", testBreakerConfig())
	ctx := context.Background()

	assignments := WrapAssignments(store, b)
	if assignments.Name() != "memory" {
		t.Errorf("Name() = %q, want memory", assignments.Name())
	}

	exp, err := store.UpsertExperiment(ctx, &models.Experiment{
		Name:              "Hybrid ranking",
		Slug:              "hybrid-ranking",
		Status:            models.StatusRunning,
		TrafficPercentage: 100,
	})
	if err != nil {
		t.Fatalf("UpsertExperiment() error = %v", err)
	}

	assigner := abtest.NewAssigner(assignments, assignments, abtest.AssignerConfig{})
	res, err := assigner.AssignBySlug(ctx, exp.Slug, models.Subject{ID: uuid.New(), Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if res.Variant != models.VariantTreatment {
		t.Errorf("Variant = %v, want treatment (bucket 16)", res.Variant)
	}

	if _, err := assignments.GetExperimentBySlug(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetExperimentBySlug(missing) error = %v, want ErrNotFound", err)
	}

	embeddings := featurestore.NewEmbeddingStore(WrapEmbeddings(store, b), featurestore.EmbeddingConfig{})
	subject := uuid.New()
	if _, err := embeddings.Upsert(ctx, models.KindUser, models.Embedding{
		SubjectID:    subject,
		ModelVersion: "two-tower-v1",
		Vector:       []float64{0.1, 0.2},
		Dimension:    2,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	latest, err := embeddings.Latest(ctx, models.KindUser, []uuid.UUID{subject}, "")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if _, ok := latest[subject]; !ok {
		t.Errorf("Latest() missing subject %v", subject)
	}

	scores := featurestore.NewScoreMaterializer(WrapScores(store, b), featurestore.ScoreConfig{})
	if err := scores.Replace(ctx, subject, "als-v3", []featurestore.Candidate{
		{ItemID: uuid.New(), Score: 0.9},
		{ItemID: uuid.New(), Score: 0.4},
	}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	top, err := scores.TopK(ctx, subject, "", 1)
	if err != nil {
		t.Fatalf("TopK() error = %v", err)
	}
	if len(top) != 1 || top[0].Rank != 1 {
		t.Errorf("TopK() = %+v, want one item at rank 1", top)
	}

	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed", b.State())
	}
}
