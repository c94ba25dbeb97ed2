// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package cli implements featurectl, the operator command line for the
// feature store. Every command prints JSON on stdout and logs on stderr.
//
//	featurectl experiment put --file hybrid-ranking.json
//	featurectl assign hybrid-ranking --subject-id 5f0c... --email alice@example.com
//	featurectl scores topk --user 5f0c... --limit 10
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/featurestore/internal/app"
	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// Opener builds the service graph for a loaded configuration.
type Opener func(ctx context.Context, cfg *config.Config) (*app.Stack, error)

// Runner owns the command tree and the stack opened for one invocation.
type Runner struct {
	open  Opener
	stack *app.Stack

	configPath string
	driver     string
	logLevel   string
}

// NewRunner creates a Runner. A nil open uses app.Open.
func NewRunner(open Opener) *Runner {
	if open == nil {
		open = app.Open
	}
	return &Runner{open: open}
}

// Execute runs featurectl with os.Args and exits non-zero on failure.
// SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	r := NewRunner(nil)
	err := r.Command().ExecuteContext(ctx)
	r.Close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command builds the root command.
func (r *Runner) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "featurectl",
		Short: "Operate the experiment and recommendation feature store",
		Long: `featurectl manages experiments, assigns subjects to variants and reads or
replaces the embeddings and score sets that the ranking service consumes.

Configuration follows the server: defaults, then config.yaml (or --config),
then environment variables.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.setup,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}

	f := root.PersistentFlags()
	f.StringVar(&r.configPath, "config", "", "config file path (default: discovered config.yaml)")
	f.StringVar(&r.driver, "driver", "", "override DATABASE_DRIVER (duckdb, postgres, memory)")
	f.StringVar(&r.logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(
		r.migrateCmd(),
		r.experimentCmd(),
		r.assignCmd(),
		r.assignBatchCmd(),
		r.scoresCmd(),
		r.embeddingsCmd(),
		r.subjectCmd(),
		r.flagCmd(),
	)
	return root
}

// Close releases the stack opened by the last command, if any.
func (r *Runner) Close() {
	if r.stack == nil {
		return
	}
	if err := r.stack.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing stores")
	}
	r.stack = nil
}

// offline marks commands that never touch a store.
const offline = "offline"

func (r *Runner) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return err
	}
	if r.driver != "" {
		cfg.Database.Driver = r.driver
	}
	if r.logLevel != "" {
		cfg.Logging.Level = r.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Init(cfg.LogConfig())

	if cmd.Annotations[offline] != "" {
		return nil
	}
	stack, err := r.open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	r.stack = stack
	return nil
}
