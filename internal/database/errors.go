// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package database

import (
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/metrics"
	"github.com/tomtom215/featurestore/internal/models"
)

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and ignores the error. Use it in error
// paths where Close() failures are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollbackQuietly is deferred after BeginTx; it is a no-op once committed.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Debug().Err(err).Msg("Rollback failed")
	}
}

// storeErr wraps a driver error. Sentinels from models pass through.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrAssignmentConflict) || errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	return models.NewStoreError(backend, op, err)
}

// observe records the duration and outcome of one store operation.
func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backend, op, time.Since(start), err)
}

// isTransactionConflict checks if an error is a DuckDB transaction conflict.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "write-write conflict") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}

// isDuplicateKey checks for a unique or primary key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Duplicate key") ||
		strings.Contains(errStr, "violates unique constraint") ||
		strings.Contains(errStr, "violates primary key constraint")
}
