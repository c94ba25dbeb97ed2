// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/featurestore/config.yaml",
	"/etc/featurestore/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:                 DriverDuckDB,
			Path:                   "/data/featurestore.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,
			PreserveInsertionOrder: true,
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetime:        5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "featurestore",
		},
		Scores: ScoresConfig{
			Backend:      ScoreBackendDatabase,
			DefaultLimit: 20,
			MaxLimit:     500,
		},
		Embeddings: EmbeddingsConfig{
			MaxSubjects: 1000,
		},
		Assignment: AssignmentConfig{
			MaxConflictRetries: 3,
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			MinRequests:  10,
			FailureRatio: 0.6,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9464",
			Path:    "/metrics",
		},
		Server: ServerConfig{
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration from defaults, the discovered config
// file and the environment, then validates it.
func LoadWithKoanf() (*Config, error) {
	return Load("")
}

// Load is LoadWithKoanf with an explicit config file path. An empty path
// falls back to file discovery; a non-empty path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"database_driver":            "database.driver",
	"duckdb_path":                "database.path",
	"duckdb_max_memory":          "database.max_memory",
	"duckdb_threads":             "database.threads",
	"duckdb_preserve_order":      "database.preserve_insertion_order",
	"database_url":               "database.dsn",
	"postgres_max_open_conns":    "database.max_open_conns",
	"postgres_max_idle_conns":    "database.max_idle_conns",
	"postgres_conn_max_lifetime": "database.conn_max_lifetime",

	"redis_addr":       "redis.addr",
	"redis_password":   "redis.password",
	"redis_db":         "redis.db",
	"redis_key_prefix": "redis.key_prefix",

	"score_backend":       "scores.backend",
	"score_default_limit": "scores.default_limit",
	"score_max_limit":     "scores.max_limit",

	"embedding_max_subjects": "embeddings.max_subjects",

	"assignment_max_conflict_retries": "assignment.max_conflict_retries",

	"breaker_enabled":       "breaker.enabled",
	"breaker_max_requests":  "breaker.max_requests",
	"breaker_interval":      "breaker.interval",
	"breaker_timeout":       "breaker.timeout",
	"breaker_min_requests":  "breaker.min_requests",
	"breaker_failure_ratio": "breaker.failure_ratio",

	"metrics_enabled": "metrics.enabled",
	"metrics_addr":    "metrics.addr",
	"metrics_path":    "metrics.path",

	"shutdown_timeout": "server.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
//
//   - DUCKDB_PATH -> database.path
//   - DATABASE_URL -> database.dsn
//   - SCORE_BACKEND -> scores.backend
//
// Unmapped keys return "" and are skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
