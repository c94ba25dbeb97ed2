// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubjectKind selects the embedding table: user or item.
type SubjectKind string

// Embedding subject kinds.
const (
	KindUser SubjectKind = "user"
	KindItem SubjectKind = "item"
)

// Valid reports whether k is user or item.
func (k SubjectKind) Valid() bool {
	return k == KindUser || k == KindItem
}

// ParseSubjectKind converts a CLI or config value into a SubjectKind.
func ParseSubjectKind(s string) (SubjectKind, error) {
	k := SubjectKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: subject kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// MaxModelVersionLength bounds ModelVersion on every record.
const MaxModelVersionLength = 64

// Embedding is a precomputed vector for a user or item under one model
// version. Dimension must equal len(Vector).
type Embedding struct {
	ID           uuid.UUID         `json:"id" validate:"required"`
	SubjectID    uuid.UUID         `json:"subject_id" validate:"required"`
	ModelVersion string            `json:"model_version" validate:"required,max=64"`
	Vector       []float64         `json:"vector" validate:"required,min=1,dive,finite"`
	Dimension    int               `json:"dimension" validate:"min=1"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ComputedAt   time.Time         `json:"computed_at" validate:"required"`
}

// RecommendationScore is one row of a user's materialized ranked set.
type RecommendationScore struct {
	ID           uuid.UUID          `json:"id" validate:"required"`
	UserID       uuid.UUID          `json:"user_id" validate:"required"`
	ItemID       uuid.UUID          `json:"item_id" validate:"required"`
	ModelVersion string             `json:"model_version" validate:"required,max=64"`
	Score        float64            `json:"score" validate:"finite"`
	Rank         int                `json:"rank" validate:"min=1"`
	Explanation  map[string]float64 `json:"explanation,omitempty"`
	ComputedAt   time.Time          `json:"computed_at" validate:"required"`
}

// RankedItem is the read projection returned by TopK.
type RankedItem struct {
	ItemID      uuid.UUID          `json:"item_id"`
	Score       float64            `json:"score"`
	Rank        int                `json:"rank"`
	Explanation map[string]float64 `json:"explanation,omitempty"`
}

// Newer reports whether e supersedes o as the latest embedding: a later
// ComputedAt wins, and equal timestamps fall back to the greater ID in
// canonical string order.
func (e *Embedding) Newer(o *Embedding) bool {
	if !e.ComputedAt.Equal(o.ComputedAt) {
		return e.ComputedAt.After(o.ComputedAt)
	}
	return e.ID.String() > o.ID.String()
}

// CheckScoreSet rejects a set that repeats an item or a rank.
func CheckScoreSet(scores []RecommendationScore) error {
	items := make(map[uuid.UUID]int, len(scores))
	ranks := make(map[int]int, len(scores))
	for i := range scores {
		s := &scores[i]
		if j, ok := items[s.ItemID]; ok {
			return fmt.Errorf("%w: %w: item %s at positions %d and %d", ErrInvalidInput, ErrDuplicateItem, s.ItemID, j, i)
		}
		if j, ok := ranks[s.Rank]; ok {
			return fmt.Errorf("%w: rank %d at positions %d and %d", ErrInvalidInput, s.Rank, j, i)
		}
		items[s.ItemID] = i
		ranks[s.Rank] = i
	}
	return nil
}
