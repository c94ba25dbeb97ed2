// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package memstore is an in-process implementation of every featurestore
// repository. It backs the "memory" database driver for local development
// and the unit tests of the service packages. Data is lost on exit.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

type assignmentKey struct {
	experimentID uuid.UUID
	subjectID    uuid.UUID
}

type embeddingKey struct {
	subjectID    uuid.UUID
	modelVersion string
}

type scoreKey struct {
	userID       uuid.UUID
	modelVersion string
}

// Store holds all records behind a single RWMutex, so every method is
// atomic with respect to every other.
type Store struct {
	mu          sync.RWMutex
	experiments map[uuid.UUID]models.Experiment
	slugs       map[string]uuid.UUID
	assignments map[assignmentKey]models.Assignment
	events      []models.EventLog
	embeddings  map[models.SubjectKind]map[embeddingKey]models.Embedding
	scores      map[scoreKey][]models.RecommendationScore
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		experiments: make(map[uuid.UUID]models.Experiment),
		slugs:       make(map[string]uuid.UUID),
		assignments: make(map[assignmentKey]models.Assignment),
		embeddings: map[models.SubjectKind]map[embeddingKey]models.Embedding{
			models.KindUser: {},
			models.KindItem: {},
		},
		scores: make(map[scoreKey][]models.RecommendationScore),
	}
}

// Name identifies the backend in metrics.
func (s *Store) Name() string { return "memory" }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// UpsertExperiment creates or replaces an experiment keyed by slug.
func (s *Store) UpsertExperiment(_ context.Context, exp *models.Experiment) (*models.Experiment, error) {
	if exp.PrimaryMetric == "" {
		exp.PrimaryMetric = models.DefaultPrimaryMetric
	}
	if err := validation.ValidateStruct(exp); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := models.StorageTime(time.Now())
	stored := *exp
	stored.NormalizeTimes()
	if id, ok := s.slugs[exp.Slug]; ok {
		stored.ID = id
		stored.CreatedAt = s.experiments[id].CreatedAt
	} else {
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.experiments[stored.ID] = stored
	s.slugs[stored.Slug] = stored.ID

	out := stored
	return &out, nil
}

// GetExperiment returns models.ErrNotFound for unknown IDs.
func (s *Store) GetExperiment(_ context.Context, id uuid.UUID) (*models.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &exp, nil
}

// GetExperimentBySlug returns models.ErrNotFound for unknown slugs.
func (s *Store) GetExperimentBySlug(ctx context.Context, slug string) (*models.Experiment, error) {
	s.mu.RLock()
	id, ok := s.slugs[slug]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.GetExperiment(ctx, id)
}

// DeleteExperiment removes an experiment with its assignments and events.
func (s *Store) DeleteExperiment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(s.experiments, id)
	delete(s.slugs, exp.Slug)
	for k := range s.assignments {
		if k.experimentID == id {
			delete(s.assignments, k)
		}
	}
	events := s.events[:0]
	for _, ev := range s.events {
		if ev.ExperimentID == nil || *ev.ExperimentID != id {
			events = append(events, ev)
		}
	}
	s.events = events
	return nil
}

// DeleteSubject removes every assignment, event, embedding and score row
// that references subjectID, as user or as item.
func (s *Store) DeleteSubject(_ context.Context, subjectID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.assignments {
		if k.subjectID == subjectID {
			delete(s.assignments, k)
		}
	}
	events := s.events[:0]
	for _, ev := range s.events {
		if ev.SubjectID == nil || *ev.SubjectID != subjectID {
			events = append(events, ev)
		}
	}
	s.events = events
	for _, byKey := range s.embeddings {
		for k := range byKey {
			if k.subjectID == subjectID {
				delete(byKey, k)
			}
		}
	}
	for k, rows := range s.scores {
		if k.userID == subjectID {
			delete(s.scores, k)
			continue
		}
		kept := rows[:0:0]
		for _, r := range rows {
			if r.ItemID != subjectID {
				kept = append(kept, r)
			}
		}
		// surviving ranks keep their numbers until the next replace
		switch {
		case len(kept) == 0:
			delete(s.scores, k)
		case len(kept) != len(rows):
			s.scores[k] = kept
		}
	}
	return nil
}

// GetAssignment returns models.ErrNotFound when the subject is unassigned.
func (s *Store) GetAssignment(_ context.Context, experimentID, subjectID uuid.UUID) (*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentKey{experimentID, subjectID}]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

// CreateAssignment inserts a unless a row already exists, and records an
// assignment event alongside the insert.
func (s *Store) CreateAssignment(_ context.Context, a *models.Assignment) (*models.Assignment, bool, error) {
	if err := validation.ValidateStruct(a); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{a.ExperimentID, a.SubjectID}
	if existing, ok := s.assignments[key]; ok {
		return &existing, false, nil
	}
	stored := *a
	stored.AssignedAt = models.StorageTime(a.AssignedAt)
	s.assignments[key] = stored

	expID, subID := a.ExperimentID, a.SubjectID
	s.events = append(s.events, models.EventLog{
		ID:           uuid.New(),
		EventType:    models.EventTypeAssignment,
		ExperimentID: &expID,
		SubjectID:    &subID,
		Payload:      map[string]string{"variant": string(a.Variant), "bucket": a.Metadata["bucket"]},
		OccurredAt:   stored.AssignedAt,
	})
	return &stored, true, nil
}

// ListAssignments returns the assignments of an experiment ordered by time.
func (s *Store) ListAssignments(_ context.Context, experimentID uuid.UUID) ([]models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Assignment
	for k, a := range s.assignments {
		if k.experimentID == experimentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out, nil
}

// ListEvents returns up to limit events for an experiment, oldest first.
func (s *Store) ListEvents(_ context.Context, experimentID uuid.UUID, limit int) ([]models.EventLog, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.EventLog
	for _, ev := range s.events {
		if ev.ExperimentID != nil && *ev.ExperimentID == experimentID {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Events returns a copy of the event log.
func (s *Store) Events() []models.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EventLog(nil), s.events...)
}

// UpsertEmbedding replaces the (subject, model version) embedding.
func (s *Store) UpsertEmbedding(_ context.Context, kind models.SubjectKind, e *models.Embedding) error {
	if !kind.Valid() {
		return models.ErrInvalidInput
	}
	if e.Dimension != len(e.Vector) {
		return models.ErrDimensionMismatch
	}
	if err := validation.ValidateStruct(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *e
	stored.Vector = append([]float64(nil), e.Vector...)
	stored.ComputedAt = models.StorageTime(e.ComputedAt)
	s.embeddings[kind][embeddingKey{e.SubjectID, e.ModelVersion}] = stored
	return nil
}

// LatestEmbeddings picks the newest embedding per subject.
func (s *Store) LatestEmbeddings(_ context.Context, kind models.SubjectKind, subjectIDs []uuid.UUID, modelVersion string) (map[uuid.UUID]models.Embedding, error) {
	if !kind.Valid() {
		return nil, models.ErrInvalidInput
	}

	wanted := make(map[uuid.UUID]struct{}, len(subjectIDs))
	for _, id := range subjectIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]models.Embedding)
	for k, e := range s.embeddings[kind] {
		if _, ok := wanted[k.subjectID]; !ok {
			continue
		}
		if modelVersion != "" && k.modelVersion != modelVersion {
			continue
		}
		cur, ok := out[k.subjectID]
		if !ok || e.Newer(&cur) {
			out[k.subjectID] = e
		}
	}
	return out, nil
}

// ReplaceScores swaps the whole (user, version) set under the write lock.
func (s *Store) ReplaceScores(_ context.Context, userID uuid.UUID, modelVersion string, scores []models.RecommendationScore) error {
	for i := range scores {
		if err := validation.ValidateStruct(&scores[i]); err != nil {
			return err
		}
	}
	if err := models.CheckScoreSet(scores); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := scoreKey{userID, modelVersion}
	if len(scores) == 0 {
		delete(s.scores, key)
		return nil
	}
	rows := append([]models.RecommendationScore(nil), scores...)
	for i := range rows {
		rows[i].ComputedAt = models.StorageTime(rows[i].ComputedAt)
	}
	s.scores[key] = rows
	return nil
}

// TopScores returns up to limit items in rank order.
func (s *Store) TopScores(_ context.Context, userID uuid.UUID, modelVersion string, limit int) ([]models.RankedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.scores[scoreKey{userID, modelVersion}]
	limit = max(0, min(limit, len(rows)))
	out := make([]models.RankedItem, 0, limit)
	for _, r := range rows[:limit] {
		out = append(out, models.RankedItem{ItemID: r.ItemID, Score: r.Score, Rank: r.Rank, Explanation: r.Explanation})
	}
	return out, nil
}

// ModelVersions lists versions with a stored set for userID.
func (s *Store) ModelVersions(_ context.Context, userID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var versions []string
	for k := range s.scores {
		if k.userID == userID {
			versions = append(versions, k.modelVersion)
		}
	}
	sort.Strings(versions)
	return versions, nil
}
