// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/featurestore/internal/logging"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int       // Unique, monotonically increasing
	Name        string    // Human-readable migration name
	Description string    // What this migration does
	SQL         string    // Statements to execute
	AppliedAt   time.Time // Populated by AppliedMigrations
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// migrations is append-only: never edit or remove an entry once released.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "experiments",
		Description: "Experiment registry, sticky assignments and the event log",
		SQL: `
CREATE TABLE IF NOT EXISTS experiments (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	hypothesis TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	primary_metric TEXT NOT NULL DEFAULT 'ctr',
	secondary_metrics TEXT NOT NULL DEFAULT '[]',
	variant_a_config TEXT NOT NULL DEFAULT '{}',
	variant_b_config TEXT NOT NULL DEFAULT '{}',
	traffic_percentage INTEGER NOT NULL CHECK (traffic_percentage BETWEEN 1 AND 100),
	start_at TIMESTAMPTZ,
	end_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS experiment_assignments (
	id UUID PRIMARY KEY,
	experiment_id UUID NOT NULL,
	subject_id UUID NOT NULL,
	variant TEXT NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	UNIQUE (experiment_id, subject_id)
);
CREATE INDEX IF NOT EXISTS idx_assignments_subject ON experiment_assignments(subject_id);

CREATE TABLE IF NOT EXISTS event_logs (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	subject_id UUID,
	experiment_id UUID,
	payload TEXT NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_logs_experiment ON event_logs(experiment_id);
`,
	},
	{
		Version:     2,
		Name:        "embeddings",
		Description: "User and item embeddings keyed by (subject, model version)",
		SQL: `
CREATE TABLE IF NOT EXISTS user_embeddings (
	id UUID NOT NULL,
	subject_id UUID NOT NULL,
	model_version TEXT NOT NULL,
	vector TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	computed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_id, model_version)
);

CREATE TABLE IF NOT EXISTS item_embeddings (
	id UUID NOT NULL,
	subject_id UUID NOT NULL,
	model_version TEXT NOT NULL,
	vector TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	computed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_id, model_version)
);
`,
	},
	{
		Version:     3,
		Name:        "recommendation_scores",
		Description: "Generation-swapped recommendation score sets",
		SQL: `
CREATE TABLE IF NOT EXISTS score_sets (
	user_id UUID NOT NULL,
	model_version TEXT NOT NULL,
	generation BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, model_version)
);

CREATE TABLE IF NOT EXISTS recommendation_scores (
	id UUID NOT NULL,
	user_id UUID NOT NULL,
	item_id UUID NOT NULL,
	model_version TEXT NOT NULL,
	generation BIGINT NOT NULL,
	score DOUBLE NOT NULL,
	rank INTEGER NOT NULL,
	explanation TEXT NOT NULL DEFAULT '{}',
	computed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scores_user_version ON recommendation_scores(user_id, model_version, generation);
CREATE INDEX IF NOT EXISTS idx_scores_item ON recommendation_scores(item_id);
`,
	},
	{
		Version:     4,
		Name:        "recommendation_scores_unique",
		Description: "One row per item and per rank within a score set generation",
		SQL: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_scores_generation_item
	ON recommendation_scores(user_id, model_version, generation, item_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_scores_generation_rank
	ON recommendation_scores(user_id, model_version, generation, rank);
`,
	},
}

// Migrations returns the registered migrations in version order.
func Migrations() []Migration {
	return append([]Migration(nil), migrations...)
}

func (db *DB) runMigrations(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		logging.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer closeQuietly(rows)

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)",
		m.Version, m.Name, m.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// AppliedMigrations lists the migrations recorded in schema_migrations.
func (db *DB) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		"SELECT version, name, COALESCE(description, ''), applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, storeErr("applied_migrations", err)
	}
	defer closeQuietly(rows)

	var out []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, storeErr("applied_migrations", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("applied_migrations", err)
	}
	return out, nil
}

// AppliedVersions lists the recorded migration versions in order.
func (db *DB) AppliedVersions(ctx context.Context) ([]int, error) {
	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]int, len(applied))
	for i, m := range applied {
		versions[i] = m.Version
	}
	return versions, nil
}
