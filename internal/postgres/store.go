// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package postgres is the PostgreSQL backend built on lib/pq. It implements
// the same repository contracts as internal/database, with foreign keys
// cascading experiment deletes and native UUID, JSONB and array columns.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/metrics"
	"github.com/tomtom215/featurestore/internal/models"
)

const backend = "postgres"

// Postgres SQLSTATE codes that signal a lost race.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store handles all relational operations against PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a pool for cfg.DSN, verifies it and applies migrations.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Info().Int("max_open_conns", maxOpen).Msg("PostgreSQL store ready")
	return s, nil
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Name identifies the backend in metrics and errors.
func (s *Store) Name() string { return backend }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Debug().Err(err).Msg("Rollback failed")
	}
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backend, op, time.Since(start), err)
}

// storeErr wraps driver failures; models sentinels pass through.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrAssignmentConflict) || errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "22" {
		// data exceptions are caller errors, not outages
		return fmt.Errorf("%s: %w: %v", op, models.ErrInvalidInput, err)
	}
	return models.NewStoreError(backend, op, err)
}

// isRace reports whether err is a unique violation or a serialization
// failure from a concurrent transaction.
func isRace(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

func encodeJSON[T any](v T, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encode json column: %v", models.ErrInvalidInput, err)
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func decodeStringMap(b []byte) (map[string]string, error) {
	var m map[string]string
	if len(b) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode json column: %w", err)
		}
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func decodeFloatMap(b []byte) (map[string]float64, error) {
	var m map[string]float64
	if len(b) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode json column: %w", err)
		}
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
