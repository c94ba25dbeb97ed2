// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package app builds the service graph shared by the server and the
// operator CLI: the relational backend selected by DATABASE_DRIVER, the
// score-set backend selected by SCORE_BACKEND, circuit breakers around
// both, and the assigner, embedding store and score materializer on top.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/featurestore/internal/abtest"
	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/database"
	"github.com/tomtom215/featurestore/internal/featurestore"
	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/memstore"
	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/postgres"
	"github.com/tomtom215/featurestore/internal/redisstore"
	"github.com/tomtom215/featurestore/internal/resilience"
)

// Backend is the full surface of a relational store.
type Backend interface {
	resilience.AssignmentBackend
	featurestore.EmbeddingRepository
	featurestore.ScoreRepository

	UpsertExperiment(ctx context.Context, exp *models.Experiment) (*models.Experiment, error)
	DeleteExperiment(ctx context.Context, id uuid.UUID) error
	ListAssignments(ctx context.Context, experimentID uuid.UUID) ([]models.Assignment, error)
	ListEvents(ctx context.Context, experimentID uuid.UUID, limit int) ([]models.EventLog, error)
	DeleteSubject(ctx context.Context, subjectID uuid.UUID) error

	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// ScoreBackend is a standalone score-set store.
type ScoreBackend interface {
	featurestore.ScoreRepository
	DeleteSubject(ctx context.Context, subjectID uuid.UUID) error
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Stack is the wired service graph.
type Stack struct {
	Config *config.Config

	// Backend is the unguarded relational store, for admin operations.
	Backend Backend
	// ScoreStore is set when scores live outside Backend.
	ScoreStore ScoreBackend

	Assigner   *abtest.Assigner
	Embeddings *featurestore.EmbeddingStore
	Scores     *featurestore.ScoreMaterializer

	Breakers []*resilience.Breaker
}

var (
	_ Backend      = (*database.DB)(nil)
	_ Backend      = (*postgres.Store)(nil)
	_ Backend      = (*memstore.Store)(nil)
	_ ScoreBackend = (*redisstore.ScoreStore)(nil)
)

// OpenBackend connects to the relational store named by cfg.Driver and
// applies pending migrations.
func OpenBackend(ctx context.Context, cfg *config.DatabaseConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverDuckDB:
		db, err := database.New(cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.DriverMemory:
		logging.Warn().Msg("Using in-memory store; data is lost on exit")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// Open builds the full stack from cfg. Close releases every backend.
func Open(ctx context.Context, cfg *config.Config) (*Stack, error) {
	backend, err := OpenBackend(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Database.Driver, err)
	}
	return build(ctx, cfg, backend)
}

func build(ctx context.Context, cfg *config.Config, backend Backend) (*Stack, error) {
	s := &Stack{Config: cfg, Backend: backend}

	var scoreRepo featurestore.ScoreRepository = backend
	if cfg.Scores.Backend == config.ScoreBackendRedis {
		rs, err := redisstore.New(ctx, &cfg.Redis)
		if err != nil {
			closeWithLog(backend)
			return nil, fmt.Errorf("open redis score backend: %w", err)
		}
		s.ScoreStore = rs
		scoreRepo = rs
	}

	var (
		assignments resilience.AssignmentBackend     = backend
		embeddings  featurestore.EmbeddingRepository = backend
	)
	if cfg.Breaker.Enabled {
		b := resilience.NewBreaker(backend.Name(), cfg.Breaker)
		s.Breakers = append(s.Breakers, b)
		assignments = resilience.WrapAssignments(backend, b)
		embeddings = resilience.WrapEmbeddings(backend, b)

		scoreBreaker := b
		if s.ScoreStore != nil {
			scoreBreaker = resilience.NewBreaker(s.ScoreStore.Name(), cfg.Breaker)
			s.Breakers = append(s.Breakers, scoreBreaker)
		}
		scoreRepo = resilience.WrapScores(scoreRepo, scoreBreaker)
	}

	s.Assigner = abtest.NewAssigner(assignments, assignments, abtest.AssignerConfig{
		MaxConflictRetries: cfg.Assignment.MaxConflictRetries,
	})
	s.Embeddings = featurestore.NewEmbeddingStore(embeddings, featurestore.EmbeddingConfig{
		MaxSubjects: cfg.Embeddings.MaxSubjects,
	})
	s.Scores = featurestore.NewScoreMaterializer(scoreRepo, featurestore.ScoreConfig{
		DefaultLimit: cfg.Scores.DefaultLimit,
		MaxLimit:     cfg.Scores.MaxLimit,
	})

	logging.Info().
		Str("database", backend.Name()).
		Str("scores", cfg.Scores.Backend).
		Bool("breaker", cfg.Breaker.Enabled).
		Msg("Feature store stack ready")
	return s, nil
}

// DeleteSubject erases subjectID from every backend holding its data.
func (s *Stack) DeleteSubject(ctx context.Context, subjectID uuid.UUID) error {
	if err := s.Backend.DeleteSubject(ctx, subjectID); err != nil {
		return fmt.Errorf("delete subject %s: %w", subjectID, err)
	}
	if s.ScoreStore != nil {
		if err := s.ScoreStore.DeleteSubject(ctx, subjectID); err != nil {
			return fmt.Errorf("delete subject %s scores: %w", subjectID, err)
		}
	}
	return nil
}

// Close closes the score store and then the relational backend.
func (s *Stack) Close() error {
	var errs []error
	if s.ScoreStore != nil {
		if err := s.ScoreStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.ScoreStore.Name(), err))
		}
	}
	if err := s.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", s.Backend.Name(), err))
	}
	return errors.Join(errs...)
}

func closeWithLog(b Backend) {
	if err := b.Close(); err != nil {
		logging.Error().Err(err).Str("backend", b.Name()).Msg("Error closing backend")
	}
}
