// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package testinfra starts PostgreSQL and Redis containers for the
// integration tests of the postgres and redisstore backends.
//
// Every file carries the integration build tag, so the package is only
// compiled with:
//
//	go test -tags integration ./...
//
// Example:
//
//	func TestStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.CleanupContainer(t, pg)
//
//	    store, err := postgres.New(ctx, &config.DatabaseConfig{DSN: pg.DSN})
//	    ...
//	}
package testinfra
