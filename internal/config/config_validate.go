// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package config

import (
	"fmt"

	"github.com/tomtom215/featurestore/internal/logging"
)

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateDatabase,
		c.validateScores,
		c.validateEmbeddings,
		c.validateAssignment,
		c.validateBreaker,
		c.validateMetrics,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverDuckDB:
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when DATABASE_DRIVER=duckdb")
		}
		if c.Database.Threads < 0 {
			return fmt.Errorf("DUCKDB_THREADS must be >= 0")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
		if c.Database.MaxOpenConns < 1 {
			return fmt.Errorf("POSTGRES_MAX_OPEN_CONNS must be at least 1")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be one of: duckdb, postgres, memory (got %q)", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateScores() error {
	switch c.Scores.Backend {
	case ScoreBackendDatabase:
	case ScoreBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SCORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SCORE_BACKEND must be one of: database, redis (got %q)", c.Scores.Backend)
	}
	if c.Scores.DefaultLimit < 1 {
		return fmt.Errorf("SCORE_DEFAULT_LIMIT must be at least 1")
	}
	if c.Scores.MaxLimit < c.Scores.DefaultLimit {
		return fmt.Errorf("SCORE_MAX_LIMIT (%d) must be >= SCORE_DEFAULT_LIMIT (%d)", c.Scores.MaxLimit, c.Scores.DefaultLimit)
	}
	return nil
}

func (c *Config) validateEmbeddings() error {
	if c.Embeddings.MaxSubjects < 1 {
		return fmt.Errorf("EMBEDDING_MAX_SUBJECTS must be at least 1")
	}
	return nil
}

func (c *Config) validateAssignment() error {
	if c.Assignment.MaxConflictRetries < 1 {
		return fmt.Errorf("ASSIGNMENT_MAX_CONFLICT_RETRIES must be at least 1")
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if !c.Breaker.Enabled {
		return nil
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("METRICS_ADDR is required when METRICS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, disabled")
	}
	switch c.Logging.Format {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
}

// LogConfig converts the logging section into a logging.Config.
func (c *Config) LogConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.Format = c.Logging.Format
	lc.Caller = c.Logging.Caller
	return lc
}
