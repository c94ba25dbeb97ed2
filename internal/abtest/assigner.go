// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package abtest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/metrics"
	"github.com/tomtom215/featurestore/internal/models"
)

// ExperimentRegistry is the read-only view of experiment definitions.
// Lookups return models.ErrNotFound for unknown experiments.
type ExperimentRegistry interface {
	GetExperiment(ctx context.Context, id uuid.UUID) (*models.Experiment, error)
	GetExperimentBySlug(ctx context.Context, slug string) (*models.Experiment, error)
}

// AssignmentRepository persists sticky assignments.
type AssignmentRepository interface {
	// GetAssignment returns models.ErrNotFound when no row exists.
	GetAssignment(ctx context.Context, experimentID, subjectID uuid.UUID) (*models.Assignment, error)

	// CreateAssignment inserts a if no row exists for its
	// (ExperimentID, SubjectID). It returns the row that is stored after
	// the call and whether this call created it. A lost race that the
	// backend cannot resolve in-statement surfaces as
	// models.ErrAssignmentConflict.
	CreateAssignment(ctx context.Context, a *models.Assignment) (*models.Assignment, bool, error)
}

// Result is the outcome of one Assign call.
type Result struct {
	Variant    models.Variant
	Included   bool
	Created    bool
	Bucket     int
	Assignment *models.Assignment // nil when not included
}

// AssignerConfig tunes an Assigner.
type AssignerConfig struct {
	// MaxConflictRetries bounds re-read attempts after a lost insert race.
	MaxConflictRetries int

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Assigner produces deterministic, sticky variant assignments.
// It is safe for concurrent use.
type Assigner struct {
	assignments AssignmentRepository
	registry    ExperimentRegistry
	maxRetries  int
	now         func() time.Time
}

// NewAssigner creates an Assigner. registry may be nil when callers only
// use Assign with an experiment they already hold.
func NewAssigner(assignments AssignmentRepository, registry ExperimentRegistry, cfg AssignerConfig) *Assigner {
	if cfg.MaxConflictRetries < 1 {
		cfg.MaxConflictRetries = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Assigner{
		assignments: assignments,
		registry:    registry,
		maxRetries:  cfg.MaxConflictRetries,
		now:         cfg.Now,
	}
}

// AssignBySlug resolves the experiment through the registry and assigns.
func (a *Assigner) AssignBySlug(ctx context.Context, slug string, subject models.Subject) (*Result, error) {
	if a.registry == nil {
		return nil, fmt.Errorf("assign %s: no experiment registry configured", slug)
	}
	exp, err := a.registry.GetExperimentBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("assign %s: %w", slug, err)
	}
	return a.Assign(ctx, exp, subject)
}

// Assign returns the subject's variant in exp, creating the sticky record
// on first call. A subject outside the traffic percentage gets
// Included=false and nothing is written. Experiments that are not active
// return models.ErrExperimentNotActive and nothing is written.
func (a *Assigner) Assign(ctx context.Context, exp *models.Experiment, subject models.Subject) (*Result, error) {
	if exp == nil {
		return nil, fmt.Errorf("assign: %w: nil experiment", models.ErrInvalidInput)
	}
	if subject.ID == uuid.Nil {
		return nil, fmt.Errorf("assign %s: %w: subject id is required", exp.Slug, models.ErrInvalidInput)
	}

	now := models.StorageTime(a.now())
	if !exp.ActiveAt(now) {
		metrics.RecordAssignment(metrics.OutcomeInactive)
		return nil, fmt.Errorf("assign %s (status %s): %w", exp.Slug, exp.Status, models.ErrExperimentNotActive)
	}

	existing, err := a.assignments.GetAssignment(ctx, exp.ID, subject.ID)
	switch {
	case err == nil:
		metrics.RecordAssignment(metrics.OutcomeExisting)
		return existingResult(exp, subject, existing), nil
	case !errors.Is(err, models.ErrNotFound):
		metrics.RecordAssignment(metrics.OutcomeStoreFail)
		return nil, fmt.Errorf("assign %s: %w", exp.Slug, err)
	}

	decision := Evaluate(exp, subject)
	if !decision.Included {
		metrics.RecordAssignment(metrics.OutcomeExcluded)
		return &Result{Included: false, Bucket: decision.Bucket}, nil
	}

	candidate := &models.Assignment{
		ID:           uuid.New(),
		ExperimentID: exp.ID,
		SubjectID:    subject.ID,
		Variant:      decision.Variant,
		AssignedAt:   now,
		Metadata: map[string]string{
			"bucket":             strconv.Itoa(decision.Bucket),
			"traffic_percentage": strconv.Itoa(exp.TrafficPercentage),
			"subject_key":        subject.KeySource(),
		},
	}

	stored, created, err := a.insertOnce(ctx, candidate)
	if err != nil {
		metrics.RecordAssignment(metrics.OutcomeStoreFail)
		return nil, fmt.Errorf("assign %s: %w", exp.Slug, err)
	}

	if created {
		metrics.RecordAssignment(metrics.OutcomeCreated)
		logging.Ctx(ctx).Debug().
			Str("experiment", exp.Slug).
			Str("subject_id", subject.ID.String()).
			Str("variant", string(stored.Variant)).
			Int("bucket", decision.Bucket).
			Msg("Assignment created")
		return &Result{
			Variant:    stored.Variant,
			Included:   true,
			Created:    true,
			Bucket:     decision.Bucket,
			Assignment: stored,
		}, nil
	}

	metrics.RecordAssignment(metrics.OutcomeExisting)
	return existingResult(exp, subject, stored), nil
}

// insertOnce converges concurrent first calls on a single stored row.
func (a *Assigner) insertOnce(ctx context.Context, candidate *models.Assignment) (*models.Assignment, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		stored, created, err := a.assignments.CreateAssignment(ctx, candidate)
		if err == nil {
			return stored, created, nil
		}
		if !errors.Is(err, models.ErrAssignmentConflict) {
			return nil, false, err
		}
		lastErr = err

		winner, getErr := a.assignments.GetAssignment(ctx, candidate.ExperimentID, candidate.SubjectID)
		if getErr == nil {
			metrics.RecordAssignment(metrics.OutcomeConflict)
			logging.Component("assigner").Debug().
				Str("experiment_id", candidate.ExperimentID.String()).
				Int("attempt", attempt+1).
				Msg("Assignment race resolved by re-read")
			return winner, false, nil
		}
		if !errors.Is(getErr, models.ErrNotFound) {
			return nil, false, getErr
		}

		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
	}

	logging.Component("assigner").Warn().Err(lastErr).
		Str("experiment_id", candidate.ExperimentID.String()).
		Int("retries", a.maxRetries).
		Msg("Assignment conflict retries exhausted")
	return nil, false, models.NewStoreError("assigner", "create_assignment", lastErr)
}

func existingResult(exp *models.Experiment, subject models.Subject, stored *models.Assignment) *Result {
	bucket, err := strconv.Atoi(stored.Metadata["bucket"])
	if err != nil {
		bucket = Bucket(exp.Slug, subject.Key())
	}
	return &Result{
		Variant:    stored.Variant,
		Included:   true,
		Created:    false,
		Bucket:     bucket,
		Assignment: stored,
	}
}
