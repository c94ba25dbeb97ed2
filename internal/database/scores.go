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

// ReplaceScores swaps the (userID, modelVersion) set in one transaction:
// the rows are written under the next generation, score_sets is repointed
// and older generations are dropped. An empty scores slice removes the set.
func (db *DB) ReplaceScores(ctx context.Context, userID uuid.UUID, modelVersion string, scores []models.RecommendationScore) (err error) {
	explanations := make([]string, len(scores))
	for i := range scores {
		if err := validation.ValidateStruct(&scores[i]); err != nil {
			return err
		}
		if explanations[i], err = encodeJSON(scores[i].Explanation, "{}"); err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
	}
	if err := models.CheckScoreSet(scores); err != nil {
		return err
	}

	start := time.Now()
	defer func() { observe("replace_scores", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("replace_scores", err)
	}
	defer rollbackQuietly(tx)

	if len(scores) == 0 {
		if _, err = tx.ExecContext(ctx,
			"DELETE FROM score_sets WHERE user_id = ? AND model_version = ?", userID, modelVersion); err != nil {
			return storeErr("replace_scores", err)
		}
		if _, err = tx.ExecContext(ctx,
			"DELETE FROM recommendation_scores WHERE user_id = ? AND model_version = ?", userID, modelVersion); err != nil {
			return storeErr("replace_scores", err)
		}
		return storeErr("replace_scores", tx.Commit())
	}

	var current int64
	err = tx.QueryRowContext(ctx,
		"SELECT generation FROM score_sets WHERE user_id = ? AND model_version = ?", userID, modelVersion).
		Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storeErr("replace_scores", err)
	}
	next := current + 1

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO recommendation_scores
		(id, user_id, item_id, model_version, generation, score, rank, explanation, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storeErr("replace_scores", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i, s := range scores {
		if _, err = stmt.ExecContext(ctx, s.ID, userID, s.ItemID, modelVersion, next,
			s.Score, s.Rank, explanations[i], models.StorageTime(s.ComputedAt)); err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
			}
			return storeErr("replace_scores", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO score_sets (user_id, model_version, generation, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, model_version) DO UPDATE SET
			generation = excluded.generation,
			updated_at = excluded.updated_at`,
		userID, modelVersion, next, time.Now().UTC()); err != nil {
		return storeErr("replace_scores", err)
	}
	if _, err = tx.ExecContext(ctx,
		"DELETE FROM recommendation_scores WHERE user_id = ? AND model_version = ? AND generation < ?",
		userID, modelVersion, next); err != nil {
		return storeErr("replace_scores", err)
	}

	if err = tx.Commit(); err != nil {
		return storeErr("replace_scores", err)
	}
	return nil
}

// TopScores returns up to limit items of the live generation in rank order.
func (db *DB) TopScores(ctx context.Context, userID uuid.UUID, modelVersion string, limit int) (out []models.RankedItem, err error) {
	start := time.Now()
	defer func() { observe("top_scores", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT r.item_id, r.score, r.rank, r.explanation
		FROM recommendation_scores r
		JOIN score_sets s
			ON s.user_id = r.user_id
			AND s.model_version = r.model_version
			AND s.generation = r.generation
		WHERE r.user_id = ? AND r.model_version = ?
		ORDER BY r.rank
		LIMIT ?`, userID, modelVersion, limit)
	if err != nil {
		return nil, storeErr("top_scores", err)
	}
	defer closeQuietly(rows)

	out = make([]models.RankedItem, 0, limit)
	for rows.Next() {
		var (
			it          models.RankedItem
			explanation string
		)
		if err = rows.Scan(&it.ItemID, &it.Score, &it.Rank, &explanation); err != nil {
			return nil, storeErr("top_scores", err)
		}
		if it.Explanation, err = decodeFloatMap(explanation); err != nil {
			return nil, storeErr("top_scores", err)
		}
		out = append(out, it)
	}
	if err = rows.Err(); err != nil {
		return nil, storeErr("top_scores", err)
	}
	return out, nil
}

// ModelVersions lists versions with a live score set for userID, sorted.
func (db *DB) ModelVersions(ctx context.Context, userID uuid.UUID) (versions []string, err error) {
	start := time.Now()
	defer func() { observe("model_versions", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		"SELECT model_version FROM score_sets WHERE user_id = ? ORDER BY model_version", userID)
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
	if err = rows.Err(); err != nil {
		return nil, storeErr("model_versions", err)
	}
	return versions, nil
}
