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
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

const assignmentColumns = "id, experiment_id, subject_id, variant, assigned_at, metadata"

// GetAssignment returns models.ErrNotFound when the subject is unassigned.
func (db *DB) GetAssignment(ctx context.Context, experimentID, subjectID uuid.UUID) (a *models.Assignment, err error) {
	start := time.Now()
	defer func() { observe("get_assignment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		"SELECT "+assignmentColumns+" FROM experiment_assignments WHERE experiment_id = ? AND subject_id = ?",
		experimentID, subjectID)
	a, err = scanAssignment(row)
	return a, storeErr("get_assignment", err)
}

// CreateAssignment inserts a unless a row for (experiment, subject) exists.
// The assignment event is written in the same transaction. created is false
// when an existing row is returned. A concurrent writer committing first
// yields models.ErrAssignmentConflict.
func (db *DB) CreateAssignment(ctx context.Context, a *models.Assignment) (out *models.Assignment, created bool, err error) {
	if err := validation.ValidateStruct(a); err != nil {
		return nil, false, err
	}
	metadata, err := encodeJSON(a.Metadata, "{}")
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	payload, err := encodeJSON(map[string]string{
		"variant": string(a.Variant),
		"bucket":  a.Metadata["bucket"],
	}, "{}")
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	assignedAt := models.StorageTime(a.AssignedAt)

	start := time.Now()
	defer func() { observe("create_assignment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storeErr("create_assignment", err)
	}
	defer rollbackQuietly(tx)

	res, err := tx.ExecContext(ctx, `INSERT INTO experiment_assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (experiment_id, subject_id) DO NOTHING`,
		a.ID, a.ExperimentID, a.SubjectID, string(a.Variant), assignedAt, metadata)
	if err != nil {
		return nil, false, assignmentErr(err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		row := tx.QueryRowContext(ctx,
			"SELECT "+assignmentColumns+" FROM experiment_assignments WHERE experiment_id = ? AND subject_id = ?",
			a.ExperimentID, a.SubjectID)
		existing, err := scanAssignment(row)
		if err != nil {
			return nil, false, assignmentErr(err)
		}
		return existing, false, nil
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO event_logs (id, event_type, subject_id, experiment_id, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New(), models.EventTypeAssignment, a.SubjectID, a.ExperimentID, payload, assignedAt); err != nil {
		return nil, false, assignmentErr(err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, assignmentErr(err)
	}

	stored := *a
	stored.AssignedAt = assignedAt
	return &stored, true, nil
}

// assignmentErr maps lost insert races to models.ErrAssignmentConflict.
func assignmentErr(err error) error {
	if isTransactionConflict(err) || isDuplicateKey(err) {
		return fmt.Errorf("%w: %v", models.ErrAssignmentConflict, err)
	}
	if errors.Is(err, models.ErrNotFound) {
		// the conflicting row vanished between insert and read
		return fmt.Errorf("%w: %v", models.ErrAssignmentConflict, err)
	}
	return storeErr("create_assignment", err)
}

// ListAssignments returns the assignments of an experiment ordered by time.
func (db *DB) ListAssignments(ctx context.Context, experimentID uuid.UUID) (out []models.Assignment, err error) {
	start := time.Now()
	defer func() { observe("list_assignments", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM experiment_assignments WHERE experiment_id = ? ORDER BY assigned_at, id",
		experimentID)
	if err != nil {
		return nil, storeErr("list_assignments", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, storeErr("list_assignments", err)
		}
		out = append(out, *a)
	}
	if err = rows.Err(); err != nil {
		return nil, storeErr("list_assignments", err)
	}
	return out, nil
}

// ListEvents returns up to limit events for an experiment, oldest first.
func (db *DB) ListEvents(ctx context.Context, experimentID uuid.UUID, limit int) (out []models.EventLog, err error) {
	start := time.Now()
	defer func() { observe("list_events", start, err) }()

	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, event_type, subject_id, experiment_id, payload, occurred_at
		FROM event_logs WHERE experiment_id = ? ORDER BY occurred_at, id LIMIT `+strconv.Itoa(limit),
		experimentID)
	if err != nil {
		return nil, storeErr("list_events", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			ev               models.EventLog
			subjectID, expID uuid.NullUUID
			payload          string
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
	if err = rows.Err(); err != nil {
		return nil, storeErr("list_events", err)
	}
	return out, nil
}

func scanAssignment(row rowScanner) (*models.Assignment, error) {
	var (
		a        models.Assignment
		variant  string
		metadata string
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
