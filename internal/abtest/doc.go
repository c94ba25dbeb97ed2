// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package abtest assigns subjects to experiment variants.
//
// Bucketing is a pure function of the experiment slug and the subject key
// (see Bucket). Assigner layers stickiness on top: the first decision for
// an (experiment, subject) pair is persisted once and every later call
// returns it unchanged, even if the traffic percentage has since moved.
//
//	assigner := abtest.NewAssigner(store, store, abtest.AssignerConfig{})
//	res, err := assigner.AssignBySlug(ctx, "hybrid-ranking", models.Subject{ID: uid, Email: email})
//	if errors.Is(err, models.ErrExperimentNotActive) { ... }
//	if res.Included { serve(res.Variant) }
package abtest
