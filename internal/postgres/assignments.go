// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package postgres

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

const assignmentColumns = "id, experiment_id, subject_id, variant, assigned_at, metadata"

// GetAssignment returns models.ErrNotFound when the subject is unassigned.
func (s *Store) GetAssignment(ctx context.Context, experimentID, subjectID uuid.UUID) (a *models.Assignment, err error) {
	start := time.Now()
	defer func() { observe("get_assignment", start, err) }()

	a, err = scanAssignment(s.db.QueryRowContext(ctx,
		"SELECT "+assignmentColumns+" FROM experiment_assignments WHERE experiment_id = $1 AND subject_id = $2",
		experimentID, subjectID))
	return a, storeErr("get_assignment", err)
}

// CreateAssignment inserts a unless a row exists and records the
// assignment event in the same transaction.
func (s *Store) CreateAssignment(ctx context.Context, a *models.Assignment) (out *models.Assignment, created bool, err error) {
	if err := validation.ValidateStruct(a); err != nil {
		return nil, false, err
	}
	metadata, err := encodeJSON(a.Metadata, "{}")
	if err != nil {
		return nil, false, err
	}
	payload, err := encodeJSON(map[string]string{"variant": string(a.Variant), "bucket": a.Metadata["bucket"]}, "{}")
	if err != nil {
		return nil, false, err
	}

	assignedAt := models.StorageTime(a.AssignedAt)

	start := time.Now()
	defer func() { observe("create_assignment", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storeErr("create_assignment", err)
	}
	defer rollback(tx)

	row := tx.QueryRowContext(ctx, `
		INSERT INTO experiment_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (experiment_id, subject_id) DO NOTHING
		RETURNING id`,
		a.ID, a.ExperimentID, a.SubjectID, string(a.Variant), assignedAt, metadata)
	var inserted uuid.UUID
	switch err = row.Scan(&inserted); {
	case errors.Is(err, sql.ErrNoRows):
		existing, getErr := scanAssignment(tx.QueryRowContext(ctx,
			"SELECT "+assignmentColumns+" FROM experiment_assignments WHERE experiment_id = $1 AND subject_id = $2",
			a.ExperimentID, a.SubjectID))
		if getErr != nil {
			err = conflictErr(getErr)
			return nil, false, err
		}
		err = nil
		return existing, false, nil
	case err != nil:
		err = conflictErr(err)
		return nil, false, err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO event_logs (id, event_type, subject_id, experiment_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), models.EventTypeAssignment, a.SubjectID, a.ExperimentID, payload, assignedAt); err != nil {
		err = conflictErr(err)
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		err = conflictErr(err)
		return nil, false, err
	}
	stored := *a
	stored.AssignedAt = assignedAt
	return &stored, true, nil
}

func conflictErr(err error) error {
	if isRace(err) || errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: %v", models.ErrAssignmentConflict, err)
	}
	return storeErr("create_assignment", err)
}

// ListAssignments returns the assignments of an experiment ordered by time.
func (s *Store) ListAssignments(ctx context.Context, experimentID uuid.UUID) (out []models.Assignment, err error) {
	start := time.Now()
	defer func() { observe("list_assignments", start, err) }()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM experiment_assignments WHERE experiment_id = $1 ORDER BY assigned_at, id",
		experimentID)
	if err != nil {
		return nil, storeErr("list_assignments", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		a, scanErr := scanAssignment(rows)
		if scanErr != nil {
			err = storeErr("list_assignments", scanErr)
			return nil, err
		}
		out = append(out, *a)
	}
	err = storeErr("list_assignments", rows.Err())
	return out, err
}

// ListEvents returns up to limit events for an experiment, oldest first.
func (s *Store) ListEvents(ctx context.Context, experimentID uuid.UUID, limit int) (out []models.EventLog, err error) {
	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	defer func() { observe("list_events", start, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, subject_id, experiment_id, payload, occurred_at
		FROM event_logs WHERE experiment_id = $1
		ORDER BY occurred_at, id LIMIT $2`, experimentID, limit)
	if err != nil {
		return nil, storeErr("list_events", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			ev               models.EventLog
			subjectID, expID uuid.NullUUID
			payload          []byte
		)
		if err = rows.Scan(&ev.ID, &ev.EventType, &subjectID, &expID, &payload, &ev.OccurredAt); err != nil {
			return nil, storeErr("list_events", err)
		}
		if subjectID.Valid {
			ev.SubjectID = &subjectID.UUID
		}
		if expID.Valid {
			ev.ExperimentID = &expID.UUID
		}
		if ev.Payload, err = decodeStringMap(payload); err != nil {
			return nil, storeErr("list_events", err)
		}
		out = append(out, ev)
	}
	err = storeErr("list_events", rows.Err())
	return out, err
}

func scanAssignment(row rowScanner) (*models.Assignment, error) {
	var (
		a        models.Assignment
		variant  string
		metadata []byte
	)
	err := row.Scan(&a.ID, &a.ExperimentID, &a.SubjectID, &variant, &a.AssignedAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Variant, err = models.ParseVariant(variant); err != nil {
		return nil, err
	}
	if a.Metadata, err = decodeStringMap(metadata); err != nil {
		return nil, err
	}
	return &a, nil
}
