// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package models provides the flat records shared by the experiment
// assigner, the feature store and every storage backend.
// This file contains experiment definitions and their lifecycle states.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

// Experiment lifecycle states.
const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
	StatusCancelled ExperimentStatus = "cancelled"
)

// AllStatuses returns every valid experiment status.
func AllStatuses() []ExperimentStatus {
	return []ExperimentStatus{StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusCancelled}
}

// Valid reports whether s is one of the closed set of statuses.
func (s ExperimentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseExperimentStatus converts a stored tag into an ExperimentStatus.
func ParseExperimentStatus(s string) (ExperimentStatus, error) {
	status := ExperimentStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: experiment status %q", ErrInvalidInput, s)
	}
	return status, nil
}

// Experiment is a named A/B test. Slug is unique and is the hash input
// for bucketing, so it must never change once subjects are assigned.
type Experiment struct {
	ID                uuid.UUID         `json:"id"`
	Name              string            `json:"name" validate:"required,max=255"`
	Slug              string            `json:"slug" validate:"required,max=255"`
	Description       string            `json:"description,omitempty" validate:"max=1024"`
	Hypothesis        string            `json:"hypothesis,omitempty" validate:"max=1024"`
	Status            ExperimentStatus  `json:"status" validate:"required,oneof=draft running paused completed cancelled"`
	PrimaryMetric     string            `json:"primary_metric" validate:"max=128"`
	SecondaryMetrics  []string          `json:"secondary_metrics,omitempty"`
	VariantAConfig    map[string]string `json:"variant_a_config,omitempty"`
	VariantBConfig    map[string]string `json:"variant_b_config,omitempty"`
	TrafficPercentage int               `json:"traffic_percentage" validate:"min=1,max=100"`
	StartAt           *time.Time        `json:"start_at,omitempty"`
	EndAt             *time.Time        `json:"end_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// DefaultPrimaryMetric is used when an experiment does not name one.
const DefaultPrimaryMetric = "ctr"

// ActiveAt reports whether the experiment accepts assignments at t:
// it must be running and t must fall inside the optional [StartAt, EndAt) window.
func (e *Experiment) ActiveAt(t time.Time) bool {
	if e.Status != StatusRunning {
		return false
	}
	if e.StartAt != nil && t.Before(*e.StartAt) {
		return false
	}
	if e.EndAt != nil && !t.Before(*e.EndAt) {
		return false
	}
	return true
}

// VariantConfig returns the configuration for a variant. Control reads
// variant A and treatment reads variant B; holdout has no configuration.
func (e *Experiment) VariantConfig(v Variant) map[string]string {
	switch v {
	case VariantControl:
		return e.VariantAConfig
	case VariantTreatment:
		return e.VariantBConfig
	default:
		return nil
	}
}
