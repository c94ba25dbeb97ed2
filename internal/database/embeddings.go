// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

func embeddingTable(kind models.SubjectKind) (string, error) {
	switch kind {
	case models.KindUser:
		return "user_embeddings", nil
	case models.KindItem:
		return "item_embeddings", nil
	default:
		return "", fmt.Errorf("%w: subject kind %q", models.ErrInvalidInput, kind)
	}
}

// UpsertEmbedding replaces the (subject, model version) embedding of kind.
func (db *DB) UpsertEmbedding(ctx context.Context, kind models.SubjectKind, e *models.Embedding) (err error) {
	table, err := embeddingTable(kind)
	if err != nil {
		return err
	}
	if e.Dimension != len(e.Vector) {
		return fmt.Errorf("%w: dimension %d, vector length %d", models.ErrDimensionMismatch, e.Dimension, len(e.Vector))
	}
	if err := validation.ValidateStruct(e); err != nil {
		return err
	}
	e.ComputedAt = models.StorageTime(e.ComputedAt)
	vector, err := encodeJSON(e.Vector, "[]")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	metadata, err := encodeJSON(e.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	start := time.Now()
	defer func() { observe("upsert_embedding", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err = db.conn.ExecContext(ctx, `INSERT INTO `+table+`
		(id, subject_id, model_version, vector, dimension, metadata, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id, model_version) DO UPDATE SET
			id = excluded.id,
			vector = excluded.vector,
			dimension = excluded.dimension,
			metadata = excluded.metadata,
			computed_at = excluded.computed_at`,
		e.ID, e.SubjectID, e.ModelVersion, vector, e.Dimension, metadata, e.ComputedAt)
	return storeErr("upsert_embedding", err)
}

// LatestEmbeddings returns the newest embedding per subject, optionally
// restricted to modelVersion. Ties on computed_at go to the greatest id.
func (db *DB) LatestEmbeddings(ctx context.Context, kind models.SubjectKind, subjectIDs []uuid.UUID, modelVersion string) (out map[uuid.UUID]models.Embedding, err error) {
	table, err := embeddingTable(kind)
	if err != nil {
		return nil, err
	}
	out = make(map[uuid.UUID]models.Embedding)
	if len(subjectIDs) == 0 {
		return out, nil
	}

	start := time.Now()
	defer func() { observe("latest_embeddings", start, err) }()

	placeholders := make([]string, len(subjectIDs))
	args := make([]any, 0, len(subjectIDs)+1)
	for i, id := range subjectIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	filter := ""
	if modelVersion != "" {
		filter = " AND model_version = ?"
		args = append(args, modelVersion)
	}

	query := `SELECT id, subject_id, model_version, vector, dimension, metadata, computed_at
		FROM ` + table + `
		WHERE subject_id IN (` + strings.Join(placeholders, ", ") + `)` + filter + `
		QUALIFY ROW_NUMBER() OVER (
			PARTITION BY subject_id
			ORDER BY computed_at DESC, CAST(id AS VARCHAR) DESC
		) = 1`

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("latest_embeddings", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			e                models.Embedding
			vector, metadata string
		)
		if err = rows.Scan(&e.ID, &e.SubjectID, &e.ModelVersion, &vector, &e.Dimension, &metadata, &e.ComputedAt); err != nil {
			return nil, storeErr("latest_embeddings", err)
		}
		if err = decodeJSON(vector, &e.Vector); err != nil {
			return nil, storeErr("latest_embeddings", err)
		}
		if e.Metadata, err = decodeStringMap(metadata); err != nil {
			return nil, storeErr("latest_embeddings", err)
		}
		out[e.SubjectID] = e
	}
	if err = rows.Err(); err != nil {
		return nil, storeErr("latest_embeddings", err)
	}
	return out, nil
}
