// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package config loads featurestore configuration with koanf.
//
// Sources are layered with increasing precedence:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/featurestore/config.yaml)
//  3. Mapped environment variables (see envTransformFunc)
//
// Unmapped environment variables are ignored.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Scores     ScoresConfig     `koanf:"scores"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Assignment AssignmentConfig `koanf:"assignment"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// Supported relational drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Supported score-set backends.
const (
	ScoreBackendDatabase = "database"
	ScoreBackendRedis    = "redis"
)

// DatabaseConfig selects and tunes the relational backend.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // duckdb, postgres or memory

	// DuckDB
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = NumCPU
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`

	// PostgreSQL
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig configures the optional Redis score-set backend.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// ScoresConfig configures the score materializer.
type ScoresConfig struct {
	Backend      string `koanf:"backend"` // database or redis
	DefaultLimit int    `koanf:"default_limit"`
	MaxLimit     int    `koanf:"max_limit"`
}

// EmbeddingsConfig bounds embedding reads.
type EmbeddingsConfig struct {
	MaxSubjects int `koanf:"max_subjects"`
}

// AssignmentConfig tunes the sticky assigner.
type AssignmentConfig struct {
	// MaxConflictRetries bounds re-reads after a lost insert race.
	MaxConflictRetries int `koanf:"max_conflict_retries"`
}

// BreakerConfig configures the circuit breaker wrapped around every store.
type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// MetricsConfig configures the ops HTTP listener.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
}

// ServerConfig holds process lifecycle settings.
type ServerConfig struct {
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
