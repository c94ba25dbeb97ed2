// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package featurestore serves precomputed recommendation artifacts.
//
// EmbeddingStore keeps one vector per (subject, model version) and answers
// "latest embedding per subject" lookups for user and item subjects.
//
// ScoreMaterializer holds each user's ranked score set per model version.
// Replace swaps the whole set atomically; TopK reads it back in rank order.
// Neither component computes embeddings or scores; an external job does.
package featurestore

// named is implemented by repositories that report a backend name for
// metrics labels.
type named interface {
	Name() string
}

func backendName(repo interface{}) string {
	if n, ok := repo.(named); ok {
		return n.Name()
	}
	return "unknown"
}
