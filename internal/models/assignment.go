// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Variant identifies the arm a subject is assigned to.
type Variant string

// Assignment variants. Holdout is a valid persisted tag but is never
// produced by hash bucketing.
const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
	VariantHoldout   Variant = "holdout"
)

// Valid reports whether v is a known variant tag.
func (v Variant) Valid() bool {
	switch v {
	case VariantControl, VariantTreatment, VariantHoldout:
		return true
	}
	return false
}

// ParseVariant converts a stored tag into a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("%w: variant %q", ErrInvalidInput, s)
	}
	return v, nil
}

// Subject is the unit being assigned: a user identified by an opaque ID
// and optionally an email.
type Subject struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
}

// Key returns the stable identifier fed to the bucketing hash. The
// normalized email wins when present so that a subject keeps its bucket
// across identity re-keying; otherwise the canonical UUID string is used.
func (s Subject) Key() string {
	if email := strings.ToLower(strings.TrimSpace(s.Email)); email != "" {
		return email
	}
	return s.ID.String()
}

// KeySource names which field Key used ("email" or "id").
func (s Subject) KeySource() string {
	if strings.TrimSpace(s.Email) != "" {
		return "email"
	}
	return "id"
}

// Assignment is the sticky record of a subject's variant in an experiment.
// At most one exists per (ExperimentID, SubjectID) and it is never updated.
type Assignment struct {
	ID           uuid.UUID         `json:"id" validate:"required"`
	ExperimentID uuid.UUID         `json:"experiment_id" validate:"required"`
	SubjectID    uuid.UUID         `json:"subject_id" validate:"required"`
	Variant      Variant           `json:"variant" validate:"required,oneof=control treatment holdout"`
	AssignedAt   time.Time         `json:"assigned_at" validate:"required"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
