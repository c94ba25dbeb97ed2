// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

func embeddingTable(kind models.SubjectKind) (string, error) {
	switch kind {
	case models.KindUser:
		return "user_embeddings", nil
	case models.KindItem:
		return "item_embeddings", nil
	}
	return "", fmt.Errorf("%w: subject kind %q", models.ErrInvalidInput, kind)
}

// UpsertEmbedding replaces the (subject, model version) embedding of kind.
func (s *Store) UpsertEmbedding(ctx context.Context, kind models.SubjectKind, e *models.Embedding) (err error) {
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
	metadata, err := encodeJSON(e.Metadata, "{}")
	if err != nil {
		return err
	}

	start := time.Now()
	defer func() { observe("upsert_embedding", start, err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, subject_id, model_version, vector, dimension, metadata, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_id, model_version) DO UPDATE SET
			id = EXCLUDED.id,
			vector = EXCLUDED.vector,
			dimension = EXCLUDED.dimension,
			metadata = EXCLUDED.metadata,
			computed_at = EXCLUDED.computed_at`,
		e.ID, e.SubjectID, e.ModelVersion, pq.Array(e.Vector), e.Dimension, metadata, e.ComputedAt)
	return storeErr("upsert_embedding", err)
}

// LatestEmbeddings returns the newest embedding per subject. Ties on
// computed_at go to the greatest id.
func (s *Store) LatestEmbeddings(ctx context.Context, kind models.SubjectKind, subjectIDs []uuid.UUID, modelVersion string) (out map[uuid.UUID]models.Embedding, err error) {
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

	ids := make([]string, len(subjectIDs))
	for i, id := range subjectIDs {
		ids[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (subject_id)
			id, subject_id, model_version, vector, dimension, metadata, computed_at
		FROM `+table+`
		WHERE subject_id = ANY($1::uuid[]) AND ($2::text = '' OR model_version = $2::text)
		ORDER BY subject_id, computed_at DESC, id::text DESC`,
		pq.Array(ids), modelVersion)
	if err != nil {
		return nil, storeErr("latest_embeddings", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			e        models.Embedding
			vector   pq.Float64Array
			metadata []byte
		)
		if err = rows.Scan(&e.ID, &e.SubjectID, &e.ModelVersion, &vector, &e.Dimension, &metadata, &e.ComputedAt); err != nil {
			return nil, storeErr("latest_embeddings", err)
		}
		e.Vector = []float64(vector)
		if e.Metadata, err = decodeStringMap(metadata); err != nil {
			return nil, storeErr("latest_embeddings", err)
		}
		out[e.SubjectID] = e
	}
	err = storeErr("latest_embeddings", rows.Err())
	return out, err
}

// ReplaceScores deletes the (userID, modelVersion) set and inserts scores
// in one transaction, so readers observe the old or the new set.
func (s *Store) ReplaceScores(ctx context.Context, userID uuid.UUID, modelVersion string, scores []models.RecommendationScore) (err error) {
	explanations := make([]string, len(scores))
	for i := range scores {
		if err := validation.ValidateStruct(&scores[i]); err != nil {
			return err
		}
		if explanations[i], err = encodeJSON(scores[i].Explanation, "{}"); err != nil {
			return err
		}
	}
	if err := models.CheckScoreSet(scores); err != nil {
		return err
	}

	start := time.Now()
	defer func() { observe("replace_scores", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("replace_scores", err)
	}
	defer rollback(tx)

	if _, err = tx.ExecContext(ctx,
		"DELETE FROM recommendation_scores WHERE user_id = $1 AND model_version = $2", userID, modelVersion); err != nil {
		return storeErr("replace_scores", err)
	}

	if len(scores) > 0 {
		stmt, prepErr := tx.PrepareContext(ctx, `
			INSERT INTO recommendation_scores (id, user_id, item_id, model_version, score, rank, explanation, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
		if prepErr != nil {
			err = storeErr("replace_scores", prepErr)
			return err
		}
		defer closeQuietly(stmt)

		for i, sc := range scores {
			if _, err = stmt.ExecContext(ctx, sc.ID, userID, sc.ItemID, modelVersion,
				sc.Score, sc.Rank, explanations[i], models.StorageTime(sc.ComputedAt)); err != nil {
				return storeErr("replace_scores", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return storeErr("replace_scores", err)
	}
	return nil
}

// TopScores returns up to limit items in rank order.
func (s *Store) TopScores(ctx context.Context, userID uuid.UUID, modelVersion string, limit int) (out []models.RankedItem, err error) {
	start := time.Now()
	defer func() { observe("top_scores", start, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, score, rank, explanation
		FROM recommendation_scores
		WHERE user_id = $1 AND model_version = $2
		ORDER BY rank
		LIMIT $3`, userID, modelVersion, limit)
	if err != nil {
		return nil, storeErr("top_scores", err)
	}
	defer closeQuietly(rows)

	out = make([]models.RankedItem, 0, limit)
	for rows.Next() {
		var (
			it          models.RankedItem
			explanation []byte
		)
		if err = rows.Scan(&it.ItemID, &it.Score, &it.Rank, &explanation); err != nil {
			return nil, storeErr("top_scores", err)
		}
		if it.Explanation, err = decodeFloatMap(explanation); err != nil {
			return nil, storeErr("top_scores", err)
		}
		out = append(out, it)
	}
	err = storeErr("top_scores", rows.Err())
	return out, err
}

// ModelVersions lists versions with a stored set for userID, sorted.
func (s *Store) ModelVersions(ctx context.Context, userID uuid.UUID) (versions []string, err error) {
	start := time.Now()
	defer func() { observe("model_versions", start, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT model_version FROM recommendation_scores
		WHERE user_id = $1 ORDER BY model_version`, userID)
	if err != nil {
		return nil, storeErr("model_versions", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var v string
		if err = rows.Scan(&v); err != nil {
			return nil, storeErr("model_versions", err)
		}
		versions = append(versions, v)
	}
	err = storeErr("model_versions", rows.Err())
	return versions, err
}

// DeleteSubject removes every row referencing subjectID in one
// transaction. Surviving ranks are not renumbered.
func (s *Store) DeleteSubject(ctx context.Context, subjectID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { observe("delete_subject", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete_subject", err)
	}
	defer rollback(tx)

	for _, q := range []string{
		"DELETE FROM experiment_assignments WHERE subject_id = $1",
		"DELETE FROM event_logs WHERE subject_id = $1",
		"DELETE FROM user_embeddings WHERE subject_id = $1",
		"DELETE FROM item_embeddings WHERE subject_id = $1",
		"DELETE FROM recommendation_scores WHERE user_id = $1 OR item_id = $1",
	} {
		if _, err = tx.ExecContext(ctx, q, subjectID); err != nil {
			return storeErr("delete_subject", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return storeErr("delete_subject", err)
	}
	return nil
}
