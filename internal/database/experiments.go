// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

const experimentColumns = `id, name, slug, description, hypothesis, status, primary_metric,
	secondary_metrics, variant_a_config, variant_b_config, traffic_percentage,
	start_at, end_at, created_at, updated_at`

// UpsertExperiment creates or replaces the experiment with exp.Slug. An
// existing experiment keeps its ID and CreatedAt.
func (db *DB) UpsertExperiment(ctx context.Context, exp *models.Experiment) (out *models.Experiment, err error) {
	if exp.PrimaryMetric == "" {
		exp.PrimaryMetric = models.DefaultPrimaryMetric
	}
	if err := validation.ValidateStruct(exp); err != nil {
		return nil, err
	}

	secondary, err := encodeJSON(exp.SecondaryMetrics, "[]")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	variantA, err := encodeJSON(exp.VariantAConfig, "{}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	variantB, err := encodeJSON(exp.VariantBConfig, "{}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	start := time.Now()
	defer func() { observe("upsert_experiment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("upsert_experiment", err)
	}
	defer rollbackQuietly(tx)

	stored := *exp
	stored.NormalizeTimes()
	now := models.StorageTime(time.Now())
	stored.UpdatedAt = now

	var existingID uuid.UUID
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, "SELECT id, created_at FROM experiments WHERE slug = ?", exp.Slug).
		Scan(&existingID, &createdAt)
	switch {
	case err == nil:
		stored.ID = existingID
		stored.CreatedAt = createdAt
		_, err = tx.ExecContext(ctx, `UPDATE experiments SET
			name = ?, description = ?, hypothesis = ?, status = ?, primary_metric = ?,
			secondary_metrics = ?, variant_a_config = ?, variant_b_config = ?,
			traffic_percentage = ?, start_at = ?, end_at = ?, updated_at = ?
			WHERE id = ?`,
			stored.Name, stored.Description, stored.Hypothesis, string(stored.Status), stored.PrimaryMetric,
			secondary, variantA, variantB, stored.TrafficPercentage,
			nullTime(stored.StartAt), nullTime(stored.EndAt), now, stored.ID)
	case errors.Is(err, sql.ErrNoRows):
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		stored.CreatedAt = now
		_, err = tx.ExecContext(ctx, `INSERT INTO experiments (`+experimentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.Name, stored.Slug, stored.Description, stored.Hypothesis,
			string(stored.Status), stored.PrimaryMetric, secondary, variantA, variantB,
			stored.TrafficPercentage, nullTime(stored.StartAt), nullTime(stored.EndAt), now, now)
	}
	if err != nil {
		return nil, storeErr("upsert_experiment", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, storeErr("upsert_experiment", err)
	}
	return &stored, nil
}

// GetExperiment returns models.ErrNotFound for unknown IDs.
func (db *DB) GetExperiment(ctx context.Context, id uuid.UUID) (exp *models.Experiment, err error) {
	start := time.Now()
	defer func() { observe("get_experiment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, "SELECT "+experimentColumns+" FROM experiments WHERE id = ?", id)
	exp, err = scanExperiment(row)
	return exp, storeErr("get_experiment", err)
}

// GetExperimentBySlug returns models.ErrNotFound for unknown slugs.
func (db *DB) GetExperimentBySlug(ctx context.Context, slug string) (exp *models.Experiment, err error) {
	start := time.Now()
	defer func() { observe("get_experiment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, "SELECT "+experimentColumns+" FROM experiments WHERE slug = ?", slug)
	exp, err = scanExperiment(row)
	return exp, storeErr("get_experiment", err)
}

// DeleteExperiment removes an experiment with its assignments and events.
func (db *DB) DeleteExperiment(ctx context.Context, id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { observe("delete_experiment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete_experiment", err)
	}
	defer rollbackQuietly(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM experiment_assignments WHERE experiment_id = ?", id); err != nil {
		return storeErr("delete_experiment", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM event_logs WHERE experiment_id = ?", id); err != nil {
		return storeErr("delete_experiment", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM experiments WHERE id = ?", id)
	if err != nil {
		return storeErr("delete_experiment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	if err = tx.Commit(); err != nil {
		return storeErr("delete_experiment", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*models.Experiment, error) {
	var (
		exp                           models.Experiment
		status                        string
		secondary, variantA, variantB string
		startAt, endAt                sql.NullTime
	)
	err := row.Scan(&exp.ID, &exp.Name, &exp.Slug, &exp.Description, &exp.Hypothesis, &status,
		&exp.PrimaryMetric, &secondary, &variantA, &variantB, &exp.TrafficPercentage,
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
	if err := decodeJSON(secondary, &exp.SecondaryMetrics); err != nil {
		return nil, err
	}
	if len(exp.SecondaryMetrics) == 0 {
		exp.SecondaryMetrics = nil
	}
	if exp.VariantAConfig, err = decodeStringMap(variantA); err != nil {
		return nil, err
	}
	if exp.VariantBConfig, err = decodeStringMap(variantB); err != nil {
		return nil, err
	}
	exp.StartAt = timePtr(startAt)
	exp.EndAt = timePtr(endAt)
	return &exp, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
