// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Driver != DriverDuckDB {
		t.Errorf("Database.Driver = %q, want duckdb", cfg.Database.Driver)
	}
	if cfg.Database.Path != "/data/featurestore.duckdb" {
		t.Errorf("Database.Path = %q, want /data/featurestore.duckdb", cfg.Database.Path)
	}
	if cfg.Scores.Backend != ScoreBackendDatabase {
		t.Errorf("Scores.Backend = %q, want database", cfg.Scores.Backend)
	}
	if cfg.Scores.DefaultLimit != 20 || cfg.Scores.MaxLimit != 500 {
		t.Errorf("Scores limits = %d/%d, want 20/500", cfg.Scores.DefaultLimit, cfg.Scores.MaxLimit)
	}
	if cfg.Embeddings.MaxSubjects != 1000 {
		t.Errorf("Embeddings.MaxSubjects = %d, want 1000", cfg.Embeddings.MaxSubjects)
	}
	if cfg.Assignment.MaxConflictRetries != 3 {
		t.Errorf("Assignment.MaxConflictRetries = %d, want 3", cfg.Assignment.MaxConflictRetries)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("Breaker.Timeout = %v, want 30s", cfg.Breaker.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DUCKDB_PATH", "database.path"},
		{"DATABASE_URL", "database.dsn"},
		{"DATABASE_DRIVER", "database.driver"},
		{"REDIS_ADDR", "redis.addr"},
		{"SCORE_BACKEND", "scores.backend"},
		{"SCORE_MAX_LIMIT", "scores.max_limit"},
		{"EMBEDDING_MAX_SUBJECTS", "embeddings.max_subjects"},
		{"BREAKER_FAILURE_RATIO", "breaker.failure_ratio"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.input); got != tt.expected {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  driver: duckdb
  path: /tmp/from-file.duckdb
scores:
  default_limit: 15
  max_limit: 100
breaker:
  timeout: 45s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SCORE_MAX_LIMIT", "250")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-file.duckdb" {
		t.Errorf("Database.Path = %q, want file value", cfg.Database.Path)
	}
	if cfg.Scores.DefaultLimit != 15 {
		t.Errorf("Scores.DefaultLimit = %d, want 15", cfg.Scores.DefaultLimit)
	}
	if cfg.Scores.MaxLimit != 250 {
		t.Errorf("Scores.MaxLimit = %d, want env value 250", cfg.Scores.MaxLimit)
	}
	if cfg.Breaker.Timeout != 45*time.Second {
		t.Errorf("Breaker.Timeout = %v, want 45s", cfg.Breaker.Timeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want debug/console", cfg.Logging)
	}
	// untouched sections keep defaults
	if cfg.Embeddings.MaxSubjects != 1000 {
		t.Errorf("Embeddings.MaxSubjects = %d, want default 1000", cfg.Embeddings.MaxSubjects)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() with missing file = nil error")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := LoadWithKoanf()
	if err == nil {
		t.Fatal("LoadWithKoanf() = nil error, want DATABASE_URL validation failure")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is required") {
		t.Errorf("error = %v, want DATABASE_URL message", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, "DATABASE_DRIVER"},
		{"postgres with dsn", func(c *Config) {
			c.Database.Driver = DriverPostgres
			c.Database.DSN = "postgres://localhost/fs"
		}, ""},
		{"memory driver", func(c *Config) { c.Database.Driver = DriverMemory }, ""},
		{"unknown score backend", func(c *Config) { c.Scores.Backend = "memcached" }, "SCORE_BACKEND"},
		{"redis without addr", func(c *Config) {
			c.Scores.Backend = ScoreBackendRedis
			c.Redis.Addr = ""
		}, "REDIS_ADDR"},
		{"max below default", func(c *Config) { c.Scores.MaxLimit = 5 }, "SCORE_MAX_LIMIT"},
		{"zero max subjects", func(c *Config) { c.Embeddings.MaxSubjects = 0 }, "EMBEDDING_MAX_SUBJECTS"},
		{"zero retries", func(c *Config) { c.Assignment.MaxConflictRetries = 0 }, "ASSIGNMENT_MAX_CONFLICT_RETRIES"},
		{"bad failure ratio", func(c *Config) { c.Breaker.FailureRatio = 1.5 }, "BREAKER_FAILURE_RATIO"},
		{"breaker disabled skips checks", func(c *Config) {
			c.Breaker.Enabled = false
			c.Breaker.FailureRatio = 0
		}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLogConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Caller = true

	lc := cfg.LogConfig()
	if lc.Level != "warn" || !lc.Caller || !lc.Timestamp {
		t.Errorf("LogConfig() = %+v", lc)
	}
}
