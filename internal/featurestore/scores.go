// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package featurestore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/metrics"
	"github.com/tomtom215/featurestore/internal/models"
)

// ScoreRepository is the storage contract for materialized score sets.
type ScoreRepository interface {
	// ReplaceScores atomically swaps the (userID, modelVersion) set for
	// scores. Readers observe the old set or the new set, never a mix.
	// An empty scores slice clears the set.
	ReplaceScores(ctx context.Context, userID uuid.UUID, modelVersion string, scores []models.RecommendationScore) error

	// TopScores returns up to limit rows in ascending rank.
	TopScores(ctx context.Context, userID uuid.UUID, modelVersion string, limit int) ([]models.RankedItem, error)

	// ModelVersions lists the versions with a stored set for userID, sorted.
	ModelVersions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Candidate is one scored item supplied by the scoring job, in rank order.
type Candidate struct {
	ItemID      uuid.UUID          `json:"item_id"`
	Score       float64            `json:"score"`
	Explanation map[string]float64 `json:"explanation,omitempty"`
}

// ScoreConfig tunes a ScoreMaterializer.
type ScoreConfig struct {
	DefaultLimit int
	MaxLimit     int
	Now          func() time.Time
}

// ScoreMaterializer validates and serves ranked score sets.
type ScoreMaterializer struct {
	repo         ScoreRepository
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// NewScoreMaterializer creates a ScoreMaterializer over repo.
func NewScoreMaterializer(repo ScoreRepository, cfg ScoreConfig) *ScoreMaterializer {
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ScoreMaterializer{
		repo:         repo,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		now:          cfg.Now,
	}
}

// Replace makes candidates the user's complete score set for modelVersion.
// Candidate i receives rank i+1; the slice must already be ordered by
// non-increasing score and is never re-sorted. Validation failures leave
// the stored set untouched.
func (m *ScoreMaterializer) Replace(ctx context.Context, userID uuid.UUID, modelVersion string, candidates []Candidate) error {
	if err := validateKey(userID, modelVersion); err != nil {
		return fmt.Errorf("replace scores: %w", err)
	}
	if err := validateCandidates(candidates); err != nil {
		return fmt.Errorf("replace scores for %s/%s: %w", userID, modelVersion, err)
	}

	computedAt := models.StorageTime(m.now())
	rows := make([]models.RecommendationScore, len(candidates))
	for i, c := range candidates {
		rows[i] = models.RecommendationScore{
			ID:           uuid.New(),
			UserID:       userID,
			ItemID:       c.ItemID,
			ModelVersion: modelVersion,
			Score:        c.Score,
			Rank:         i + 1,
			Explanation:  c.Explanation,
			ComputedAt:   computedAt,
		}
	}

	if err := m.repo.ReplaceScores(ctx, userID, modelVersion, rows); err != nil {
		return fmt.Errorf("replace scores for %s/%s: %w", userID, modelVersion, err)
	}

	metrics.RecordScoreReplacement(backendName(m.repo), len(rows))
	logging.Ctx(ctx).Debug().
		Str("user_id", userID.String()).
		Str("model_version", modelVersion).
		Int("candidates", len(rows)).
		Msg("Score set replaced")
	return nil
}

// TopK returns the user's top items in ascending rank. limit <= 0 uses the
// configured default and larger values are clamped to the maximum.
//
// An empty modelVersion is resolved from what is stored: no versions
// yields an empty result, a single version is used, and several versions
// fail with models.ErrModelVersionRequired.
func (m *ScoreMaterializer) TopK(ctx context.Context, userID uuid.UUID, modelVersion string, limit int) ([]models.RankedItem, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("top scores: %w: user id is required", models.ErrInvalidInput)
	}
	if len(modelVersion) > models.MaxModelVersionLength {
		return nil, fmt.Errorf("top scores: %w: model version longer than %d", models.ErrInvalidInput, models.MaxModelVersionLength)
	}

	if modelVersion == "" {
		versions, err := m.repo.ModelVersions(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("top scores for %s: %w", userID, err)
		}
		switch len(versions) {
		case 0:
			return []models.RankedItem{}, nil
		case 1:
			modelVersion = versions[0]
		default:
			return nil, fmt.Errorf("top scores for %s (versions %v): %w", userID, versions, models.ErrModelVersionRequired)
		}
	}

	items, err := m.repo.TopScores(ctx, userID, modelVersion, m.EffectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("top scores for %s/%s: %w", userID, modelVersion, err)
	}
	if items == nil {
		items = []models.RankedItem{}
	}
	return items, nil
}

// ModelVersions lists the versions with a stored score set for userID.
func (m *ScoreMaterializer) ModelVersions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("model versions: %w: user id is required", models.ErrInvalidInput)
	}
	versions, err := m.repo.ModelVersions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("model versions for %s: %w", userID, err)
	}
	return versions, nil
}

// EffectiveLimit applies the default and maximum to a requested limit.
func (m *ScoreMaterializer) EffectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return m.defaultLimit
	case limit > m.maxLimit:
		return m.maxLimit
	default:
		return limit
	}
}

func validateKey(userID uuid.UUID, modelVersion string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidInput)
	}
	if modelVersion == "" {
		return fmt.Errorf("%w: model version is required", models.ErrInvalidInput)
	}
	if len(modelVersion) > models.MaxModelVersionLength {
		return fmt.Errorf("%w: model version longer than %d", models.ErrInvalidInput, models.MaxModelVersionLength)
	}
	return nil
}

func validateCandidates(candidates []Candidate) error {
	seen := make(map[uuid.UUID]int, len(candidates))
	for i, c := range candidates {
		if c.ItemID == uuid.Nil {
			return fmt.Errorf("%w: candidate %d has no item id", models.ErrInvalidInput, i)
		}
		if !finite(c.Score) {
			return fmt.Errorf("%w: candidate %d score %v is not finite", models.ErrInvalidInput, i, c.Score)
		}
		for k, v := range c.Explanation {
			if !finite(v) {
				return fmt.Errorf("%w: candidate %d explanation %q is not finite", models.ErrInvalidInput, i, k)
			}
		}
		if j, dup := seen[c.ItemID]; dup {
			return fmt.Errorf("%w: %w: item %s at positions %d and %d", models.ErrInvalidInput, models.ErrDuplicateItem, c.ItemID, j, i)
		}
		seen[c.ItemID] = i
		if i > 0 && c.Score > candidates[i-1].Score {
			return fmt.Errorf("%w: %w: candidate %d score %v exceeds predecessor %v",
				models.ErrInvalidInput, models.ErrRankOrder, i, c.Score, candidates[i-1].Score)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
