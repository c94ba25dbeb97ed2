// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeleteSubject removes every row that references subjectID: assignments,
// events, embeddings of either kind, the subject's own score sets and its
// appearances as an item in other users' sets. Surviving ranks are left as
// they are; a set emptied this way is removed.
func (db *DB) DeleteSubject(ctx context.Context, subjectID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { observe("delete_subject", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete_subject", err)
	}
	defer rollbackQuietly(tx)

	statements := []string{
		"DELETE FROM experiment_assignments WHERE subject_id = ?",
		"DELETE FROM event_logs WHERE subject_id = ?",
		"DELETE FROM user_embeddings WHERE subject_id = ?",
		"DELETE FROM item_embeddings WHERE subject_id = ?",
		"DELETE FROM score_sets WHERE user_id = ?",
		"DELETE FROM recommendation_scores WHERE user_id = ? OR item_id = ?",
	}
	for _, stmt := range statements {
		args := []any{subjectID}
		if stmt == statements[len(statements)-1] {
			args = append(args, subjectID)
		}
		if _, err = tx.ExecContext(ctx, stmt, args...); err != nil {
			return storeErr("delete_subject", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM score_sets
		WHERE NOT EXISTS (
			SELECT 1 FROM recommendation_scores r
			WHERE r.user_id = score_sets.user_id
				AND r.model_version = score_sets.model_version
				AND r.generation = score_sets.generation
		)`); err != nil {
		return storeErr("delete_subject", err)
	}

	if err = tx.Commit(); err != nil {
		return storeErr("delete_subject", err)
	}
	return nil
}
