// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Command server runs the feature store's long-lived process: it opens the
// configured backends, probes their health and serves /metrics and
// /healthz until SIGINT or SIGTERM.
//
// Configuration comes from defaults, an optional config.yaml (or
// CONFIG_PATH) and environment variables, highest priority last:
//
//	DATABASE_DRIVER=postgres DATABASE_URL=postgres://fs@db/fs ./server
//	DATABASE_DRIVER=duckdb DUCKDB_PATH=/data/fs.duckdb SCORE_BACKEND=redis REDIS_ADDR=redis:6379 ./server
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/featurestore/internal/app"
	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/supervisor"
	"github.com/tomtom215/featurestore/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LogConfig())
	logging.Info().
		Str("driver", cfg.Database.Driver).
		Str("score_backend", cfg.Scores.Backend).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("Configuration loaded")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
	logging.Info().Msg("Server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stack, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stores")
		}
	}()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	probes := []*services.HealthProbe{services.NewHealthProbe(stack.Backend.Name(), stack.Backend, 0)}
	if stack.ScoreStore != nil {
		probes = append(probes, services.NewHealthProbe(stack.ScoreStore.Name(), stack.ScoreStore, 0))
	}
	for _, p := range probes {
		tree.AddStoreService(p)
	}

	if cfg.Metrics.Enabled {
		server := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newOpsRouter(cfg.Metrics.Path, probes, stack.Breakers),
			ReadHeaderTimeout: 5 * time.Second,
		}
		tree.AddOpsService(services.NewHTTPServerService("ops-http", server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Str("metrics_path", cfg.Metrics.Path).Msg("Ops HTTP server added")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree")
	err = <-tree.ServeBackground(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return nil
}
