// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package postgres

import (
	"context"
	"fmt"

	"github.com/tomtom215/featurestore/internal/logging"
)

// migration is one versioned schema change. Append only.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{1, "experiments", `
CREATE TABLE IF NOT EXISTS experiments (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	hypothesis TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK (status IN ('draft', 'running', 'paused', 'completed', 'cancelled')),
	primary_metric TEXT NOT NULL DEFAULT 'ctr',
	secondary_metrics TEXT[] NOT NULL DEFAULT '{}',
	variant_a_config JSONB NOT NULL DEFAULT '{}',
	variant_b_config JSONB NOT NULL DEFAULT '{}',
	traffic_percentage INTEGER NOT NULL CHECK (traffic_percentage BETWEEN 1 AND 100),
	start_at TIMESTAMPTZ,
	end_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS experiment_assignments (
	id UUID PRIMARY KEY,
	experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
	subject_id UUID NOT NULL,
	variant TEXT NOT NULL CHECK (variant IN ('control', 'treatment', 'holdout')),
	assigned_at TIMESTAMPTZ NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	UNIQUE (experiment_id, subject_id)
);
CREATE INDEX IF NOT EXISTS idx_assignments_subject ON experiment_assignments(subject_id);

CREATE TABLE IF NOT EXISTS event_logs (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	subject_id UUID,
	experiment_id UUID REFERENCES experiments(id) ON DELETE CASCADE,
	payload JSONB NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_logs_experiment ON event_logs(experiment_id);
CREATE INDEX IF NOT EXISTS idx_event_logs_subject ON event_logs(subject_id);
`},
	{2, "embeddings", `
CREATE TABLE IF NOT EXISTS user_embeddings (
	id UUID NOT NULL,
	subject_id UUID NOT NULL,
	model_version VARCHAR(64) NOT NULL,
	vector DOUBLE PRECISION[] NOT NULL,
	dimension INTEGER NOT NULL CHECK (dimension > 0),
	metadata JSONB NOT NULL DEFAULT '{}',
	computed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_id, model_version)
);

CREATE TABLE IF NOT EXISTS item_embeddings (
	id UUID NOT NULL,
	subject_id UUID NOT NULL,
	model_version VARCHAR(64) NOT NULL,
	vector DOUBLE PRECISION[] NOT NULL,
	dimension INTEGER NOT NULL CHECK (dimension > 0),
	metadata JSONB NOT NULL DEFAULT '{}',
	computed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_id, model_version)
);
`},
	{3, "recommendation_scores", `
CREATE TABLE IF NOT EXISTS recommendation_scores (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	item_id UUID NOT NULL,
	model_version VARCHAR(64) NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	rank INTEGER NOT NULL CHECK (rank > 0),
	explanation JSONB NOT NULL DEFAULT '{}',
	computed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, model_version, item_id),
	UNIQUE (user_id, model_version, rank)
);
CREATE INDEX IF NOT EXISTS idx_scores_item ON recommendation_scores(item_id);
`},
}

// Migrate applies pending migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		m.Version, m.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
	return nil
}

// AppliedVersions lists the recorded migration versions in order.
func (s *Store) AppliedVersions(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, storeErr("applied_versions", err)
	}
	defer closeQuietly(rows)

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, storeErr("applied_versions", err)
		}
		out = append(out, v)
	}
	return out, storeErr("applied_versions", rows.Err())
}
