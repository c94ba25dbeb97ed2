// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package database

import (
	"fmt"

	"github.com/goccy/go-json"
)

// encodeJSON renders v for a TEXT column. nil maps and slices encode as
// their empty literal so that columns never hold "null".
func encodeJSON[T any](v T, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func decodeJSON[T any](s string, dst *T) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}

// decodeStringMap returns nil for an empty object so round-trips match
// records written without metadata.
func decodeStringMap(s string) (map[string]string, error) {
	var m map[string]string
	if err := decodeJSON(s, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func decodeFloatMap(s string) (map[string]float64, error) {
	var m map[string]float64
	if err := decodeJSON(s, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
