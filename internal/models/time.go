// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package models

import "time"

// TimePrecision is the finest timestamp resolution every backend keeps.
// DuckDB and PostgreSQL TIMESTAMPTZ both store microseconds.
const TimePrecision = time.Microsecond

// StorageTime returns t in UTC truncated to TimePrecision, so a value
// handed back from a write equals what later reads return and ordering
// on it agrees across backends.
func StorageTime(t time.Time) time.Time {
	return t.UTC().Truncate(TimePrecision)
}

// storageTimePtr applies StorageTime to an optional time.
func storageTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := StorageTime(*t)
	return &v
}

// NormalizeTimes truncates the experiment's window to TimePrecision.
func (e *Experiment) NormalizeTimes() {
	e.StartAt = storageTimePtr(e.StartAt)
	e.EndAt = storageTimePtr(e.EndAt)
}
