// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrExperimentNotActive is returned when assigning against an
	// experiment that is not running (or is outside its window).
	ErrExperimentNotActive = errors.New("experiment not active")

	// ErrDimensionMismatch is returned when an embedding's declared
	// dimension differs from the length of its vector.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrAssignmentConflict signals a lost insert race on the
	// (experiment, subject) uniqueness constraint. The assigner resolves
	// it by re-reading; callers never see it.
	ErrAssignmentConflict = errors.New("assignment conflict")

	// ErrStoreUnavailable is the sentinel matched by every *StoreError.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrModelVersionRequired = errors.New("model version required: user has scores under several versions")
	ErrRankOrder            = errors.New("candidates not in descending score order")
	ErrDuplicateItem        = errors.New("duplicate item in candidates")
)

// StoreError wraps a driver or I/O failure from a storage backend.
// It is retryable and always matches ErrStoreUnavailable.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

// NewStoreError wraps err. A nil err yields nil.
func NewStoreError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Backend: backend, Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: store unavailable: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStoreUnavailable) true for every StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
