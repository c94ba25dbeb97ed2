// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Command featurectl is the operator CLI for the feature store.
package main

import "github.com/tomtom215/featurestore/internal/cli"

func main() {
	cli.Execute()
}
