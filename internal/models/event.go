// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package models

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeAssignment is written whenever a new assignment is persisted.
const EventTypeAssignment = "experiment_assignment"

// EventLog is an append-only audit record.
type EventLog struct {
	ID           uuid.UUID         `json:"id"`
	EventType    string            `json:"event_type" validate:"required,max=128"`
	SubjectID    *uuid.UUID        `json:"subject_id,omitempty"`
	ExperimentID *uuid.UUID        `json:"experiment_id,omitempty"`
	Payload      map[string]string `json:"payload,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// FeatureFlag gates a feature for a percentage of subjects.
type FeatureFlag struct {
	Slug              string            `json:"slug" validate:"required,max=255"`
	Name              string            `json:"name,omitempty"`
	Enabled           bool              `json:"enabled"`
	RolloutPercentage int               `json:"rollout_percentage" validate:"min=0,max=100"`
	Rules             map[string]string `json:"rules,omitempty"`
}
