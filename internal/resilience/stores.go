// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package resilience

import (
	"context"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/abtest"
	"github.com/tomtom215/featurestore/internal/featurestore"
	"github.com/tomtom215/featurestore/internal/models"
)

// AssignmentBackend is what the assigner reads and writes.
type AssignmentBackend interface {
	abtest.ExperimentRegistry
	abtest.AssignmentRepository
}

type named interface {
	Name() string
}

func innerName(v any) string {
	if n, ok := v.(named); ok {
		return n.Name()
	}
	return "unknown"
}

// Assignments guards an AssignmentBackend.
type Assignments struct {
	inner AssignmentBackend
	b     *Breaker
}

// WrapAssignments returns inner guarded by b.
func WrapAssignments(inner AssignmentBackend, b *Breaker) *Assignments {
	return &Assignments{inner: inner, b: b}
}

// Name reports the wrapped backend.
func (a *Assignments) Name() string { return innerName(a.inner) }

func (a *Assignments) GetExperiment(ctx context.Context, id uuid.UUID) (*models.Experiment, error) {
	return run(a.b, "get_experiment", func() (*models.Experiment, error) {
		return a.inner.GetExperiment(ctx, id)
	})
}

func (a *Assignments) GetExperimentBySlug(ctx context.Context, slug string) (*models.Experiment, error) {
	return run(a.b, "get_experiment", func() (*models.Experiment, error) {
		return a.inner.GetExperimentBySlug(ctx, slug)
	})
}

func (a *Assignments) GetAssignment(ctx context.Context, experimentID, subjectID uuid.UUID) (*models.Assignment, error) {
	return run(a.b, "get_assignment", func() (*models.Assignment, error) {
		return a.inner.GetAssignment(ctx, experimentID, subjectID)
	})
}

type createResult struct {
	a       *models.Assignment
	created bool
}

func (a *Assignments) CreateAssignment(ctx context.Context, in *models.Assignment) (*models.Assignment, bool, error) {
	res, err := run(a.b, "create_assignment", func() (createResult, error) {
		out, created, err := a.inner.CreateAssignment(ctx, in)
		return createResult{a: out, created: created}, err
	})
	return res.a, res.created, err
}

// Embeddings guards a featurestore.EmbeddingRepository.
type Embeddings struct {
	inner featurestore.EmbeddingRepository
	b     *Breaker
}

// WrapEmbeddings returns inner guarded by b.
func WrapEmbeddings(inner featurestore.EmbeddingRepository, b *Breaker) *Embeddings {
	return &Embeddings{inner: inner, b: b}
}

// Name reports the wrapped backend.
func (e *Embeddings) Name() string { return innerName(e.inner) }

func (e *Embeddings) UpsertEmbedding(ctx context.Context, kind models.SubjectKind, emb *models.Embedding) error {
	return exec(e.b, "upsert_embedding", func() error {
		return e.inner.UpsertEmbedding(ctx, kind, emb)
	})
}

func (e *Embeddings) LatestEmbeddings(ctx context.Context, kind models.SubjectKind, subjectIDs []uuid.UUID, modelVersion string) (map[uuid.UUID]models.Embedding, error) {
	return run(e.b, "latest_embeddings", func() (map[uuid.UUID]models.Embedding, error) {
		return e.inner.LatestEmbeddings(ctx, kind, subjectIDs, modelVersion)
	})
}

// Scores guards a featurestore.ScoreRepository.
type Scores struct {
	inner featurestore.ScoreRepository
	b     *Breaker
}

// WrapScores returns inner guarded by b.
func WrapScores(inner featurestore.ScoreRepository, b *Breaker) *Scores {
	return &Scores{inner: inner, b: b}
}

// Name reports the wrapped backend.
func (s *Scores) Name() string { return innerName(s.inner) }

func (s *Scores) ReplaceScores(ctx context.Context, userID uuid.UUID, modelVersion string, scores []models.RecommendationScore) error {
	return exec(s.b, "replace_scores", func() error {
		return s.inner.ReplaceScores(ctx, userID, modelVersion, scores)
	})
}

func (s *Scores) TopScores(ctx context.Context, userID uuid.UUID, modelVersion string, limit int) ([]models.RankedItem, error) {
	return run(s.b, "top_scores", func() ([]models.RankedItem, error) {
		return s.inner.TopScores(ctx, userID, modelVersion, limit)
	})
}

func (s *Scores) ModelVersions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return run(s.b, "model_versions", func() ([]string, error) {
		return s.inner.ModelVersions(ctx, userID)
	})
}

var (
	_ AssignmentBackend                = (*Assignments)(nil)
	_ featurestore.EmbeddingRepository = (*Embeddings)(nil)
	_ featurestore.ScoreRepository     = (*Scores)(nil)
)
