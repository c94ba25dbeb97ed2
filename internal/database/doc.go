// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

/*
Package database is the embedded DuckDB backend. A single *DB implements
every repository contract of the service packages:

  - abtest.ExperimentRegistry and abtest.AssignmentRepository
  - featurestore.EmbeddingRepository
  - featurestore.ScoreRepository

plus the operator writes UpsertExperiment, DeleteExperiment and
DeleteSubject.

# Schema

Tables are created by the versioned migrations in migrations.go and tracked
in schema_migrations. DuckDB does not cascade foreign keys, so the schema
declares none and deletes remove dependent rows explicitly inside one
transaction.

Score sets are versioned through score_sets, which points each
(user_id, model_version) at its live generation. ReplaceScores writes the
next generation, repoints score_sets and drops older generations in one
transaction. Readers always join through score_sets.

Map-valued columns (metadata, explanation, variant configs) and embedding
vectors are stored as JSON text encoded with goccy/go-json.

# Errors

Driver failures are wrapped in *models.StoreError with backend "duckdb".
DuckDB transaction conflicts and duplicate-key errors on the assignment
insert surface as models.ErrAssignmentConflict so that the assigner can
re-read the winning row.

# Usage

	db, err := database.New(&cfg.Database)
	if err != nil {
	    return err
	}
	defer db.Close()

	assigner := abtest.NewAssigner(db, db, abtest.AssignerConfig{})
*/
package database
