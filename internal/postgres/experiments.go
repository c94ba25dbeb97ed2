// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

const experimentColumns = `id, name, slug, description, hypothesis, status, primary_metric,
	secondary_metrics, variant_a_config, variant_b_config, traffic_percentage,
	start_at, end_at, created_at, updated_at`

// UpsertExperiment inserts or updates an experiment by slug.
func (s *Store) UpsertExperiment(ctx context.Context, exp *models.Experiment) (out *models.Experiment, err error) {
	if exp.PrimaryMetric == "" {
		exp.PrimaryMetric = models.DefaultPrimaryMetric
	}
	if err := validation.ValidateStruct(exp); err != nil {
		return nil, err
	}
	exp.NormalizeTimes()
	variantA, err := encodeJSON(exp.VariantAConfig, "{}")
	if err != nil {
		return nil, err
	}
	variantB, err := encodeJSON(exp.VariantBConfig, "{}")
	if err != nil {
		return nil, err
	}
	secondary := exp.SecondaryMetrics
	if secondary == nil {
		secondary = []string{}
	}

	id := exp.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	start := time.Now()
	defer func() { observe("upsert_experiment", start, err) }()

	query := `
		INSERT INTO experiments (id, name, slug, description, hypothesis, status, primary_metric,
			secondary_metrics, variant_a_config, variant_b_config, traffic_percentage, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			hypothesis = EXCLUDED.hypothesis,
			status = EXCLUDED.status,
			primary_metric = EXCLUDED.primary_metric,
			secondary_metrics = EXCLUDED.secondary_metrics,
			variant_a_config = EXCLUDED.variant_a_config,
			variant_b_config = EXCLUDED.variant_b_config,
			traffic_percentage = EXCLUDED.traffic_percentage,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			updated_at = NOW()
		RETURNING ` + experimentColumns

	row := s.db.QueryRowContext(ctx, query,
		id, exp.Name, exp.Slug, exp.Description, exp.Hypothesis, string(exp.Status), exp.PrimaryMetric,
		pq.Array(secondary), variantA, variantB, exp.TrafficPercentage, nullTime(exp.StartAt), nullTime(exp.EndAt))
	out, err = scanExperiment(row)
	return out, storeErr("upsert_experiment", err)
}

// GetExperiment returns models.ErrNotFound for unknown IDs.
func (s *Store) GetExperiment(ctx context.Context, id uuid.UUID) (exp *models.Experiment, err error) {
	start := time.Now()
	defer func() { observe("get_experiment", start, err) }()

	exp, err = scanExperiment(s.db.QueryRowContext(ctx,
		"SELECT "+experimentColumns+" FROM experiments WHERE id = $1", id))
	return exp, storeErr("get_experiment", err)
}

// GetExperimentBySlug returns models.ErrNotFound for unknown slugs.
func (s *Store) GetExperimentBySlug(ctx context.Context, slug string) (exp *models.Experiment, err error) {
	start := time.Now()
	defer func() { observe("get_experiment", start, err) }()

	exp, err = scanExperiment(s.db.QueryRowContext(ctx,
		"SELECT "+experimentColumns+" FROM experiments WHERE slug = $1", slug))
	return exp, storeErr("get_experiment", err)
}

// DeleteExperiment removes an experiment; assignments and events follow by
// ON DELETE CASCADE.
func (s *Store) DeleteExperiment(ctx context.Context, id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { observe("delete_experiment", start, err) }()

	res, err := s.db.ExecContext(ctx, "DELETE FROM experiments WHERE id = $1", id)
	if err != nil {
		return storeErr("delete_experiment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanExperiment(row rowScanner) (*models.Experiment, error) {
	var (
		exp                models.Experiment
		status             string
		secondary          []string
		variantA, variantB []byte
		startAt, endAt     sql.NullTime
	)
	err := row.Scan(&exp.ID, &exp.Name, &exp.Slug, &exp.Description, &exp.Hypothesis, &status,
		&exp.PrimaryMetric, pq.Array(&secondary), &variantA, &variantB, &exp.TrafficPercentage,
		&startAt, &endAt, &exp.CreatedAt, &exp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if exp.Status, err = models.ParseExperimentStatus(status); err != nil {
		return nil, err
	}
	if len(secondary) > 0 {
		exp.SecondaryMetrics = secondary
	}
	if exp.VariantAConfig, err = decodeStringMap(variantA); err != nil {
		return nil, err
	}
	if exp.VariantBConfig, err = decodeStringMap(variantB); err != nil {
		return nil, err
	}
	if startAt.Valid {
		t := startAt.Time
		exp.StartAt = &t
	}
	if endAt.Valid {
		t := endAt.Time
		exp.EndAt = &t
	}
	return &exp, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
