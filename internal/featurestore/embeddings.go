// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package featurestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/metrics"
	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

// EmbeddingRepository is the storage contract for embeddings.
type EmbeddingRepository interface {
	// UpsertEmbedding replaces the row for (e.SubjectID, e.ModelVersion).
	UpsertEmbedding(ctx context.Context, kind models.SubjectKind, e *models.Embedding) error

	// LatestEmbeddings returns at most one embedding per requested subject:
	// greatest ComputedAt, ties broken by greatest ID. An empty
	// modelVersion considers every version. Subjects with no row are absent.
	LatestEmbeddings(ctx context.Context, kind models.SubjectKind, subjectIDs []uuid.UUID, modelVersion string) (map[uuid.UUID]models.Embedding, error)
}

// EmbeddingConfig tunes an EmbeddingStore.
type EmbeddingConfig struct {
	// MaxSubjects bounds a single Latest call.
	MaxSubjects int
	Now         func() time.Time
}

// EmbeddingStore validates and serves user and item embeddings.
type EmbeddingStore struct {
	repo        EmbeddingRepository
	maxSubjects int
	now         func() time.Time
}

// NewEmbeddingStore creates an EmbeddingStore over repo.
func NewEmbeddingStore(repo EmbeddingRepository, cfg EmbeddingConfig) *EmbeddingStore {
	if cfg.MaxSubjects < 1 {
		cfg.MaxSubjects = 1000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EmbeddingStore{
		repo:        repo,
		maxSubjects: cfg.MaxSubjects,
		now:         cfg.Now,
	}
}

// Upsert stores e as the embedding for (e.SubjectID, e.ModelVersion),
// replacing any previous row entirely. A zero ID or ComputedAt is filled
// in. A Dimension that differs from len(Vector) fails with
// models.ErrDimensionMismatch and nothing is written.
func (s *EmbeddingStore) Upsert(ctx context.Context, kind models.SubjectKind, e models.Embedding) (*models.Embedding, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("upsert embedding: %w: kind %q", models.ErrInvalidInput, kind)
	}
	if e.Dimension != len(e.Vector) {
		return nil, fmt.Errorf("upsert %s embedding for %s: %w: dimension %d, vector length %d",
			kind, e.SubjectID, models.ErrDimensionMismatch, e.Dimension, len(e.Vector))
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ComputedAt.IsZero() {
		e.ComputedAt = s.now()
	}
	e.ComputedAt = models.StorageTime(e.ComputedAt)
	e.Vector = append([]float64(nil), e.Vector...)

	if err := validation.ValidateStruct(&e); err != nil {
		return nil, fmt.Errorf("upsert %s embedding: %w", kind, err)
	}

	if err := s.repo.UpsertEmbedding(ctx, kind, &e); err != nil {
		return nil, fmt.Errorf("upsert %s embedding for %s: %w", kind, e.SubjectID, err)
	}

	metrics.EmbeddingUpsertsTotal.WithLabelValues(string(kind)).Inc()
	return &e, nil
}

// Latest returns the newest embedding for each subject in subjectIDs,
// optionally restricted to modelVersion. Duplicate IDs are collapsed and
// subjects without an embedding are omitted.
func (s *EmbeddingStore) Latest(ctx context.Context, kind models.SubjectKind, subjectIDs []uuid.UUID, modelVersion string) (map[uuid.UUID]models.Embedding, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("latest embeddings: %w: kind %q", models.ErrInvalidInput, kind)
	}
	if len(modelVersion) > models.MaxModelVersionLength {
		return nil, fmt.Errorf("latest embeddings: %w: model version longer than %d", models.ErrInvalidInput, models.MaxModelVersionLength)
	}

	ids := dedupe(subjectIDs)
	if len(ids) == 0 {
		return map[uuid.UUID]models.Embedding{}, nil
	}
	if len(ids) > s.maxSubjects {
		return nil, fmt.Errorf("latest embeddings: %w: %d subjects exceeds limit %d", models.ErrInvalidInput, len(ids), s.maxSubjects)
	}

	found, err := s.repo.LatestEmbeddings(ctx, kind, ids, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("latest %s embeddings: %w", kind, err)
	}

	if misses := len(ids) - len(found); misses > 0 {
		metrics.EmbeddingLookupMisses.WithLabelValues(string(kind)).Add(float64(misses))
		logging.Component("embeddings").Debug().
			Str("kind", string(kind)).
			Int("requested", len(ids)).
			Int("missing", misses).
			Msg("Embeddings missing for some subjects")
	}
	return found, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
