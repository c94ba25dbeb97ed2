// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/featurestore/internal/models"
)

func (r *Runner) experimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiment",
		Aliases: []string{"exp"},
		Short:   "Manage experiments",
	}
	cmd.AddCommand(
		r.experimentPutCmd(),
		r.experimentGetCmd(),
		r.experimentDeleteCmd(),
		r.experimentAssignmentsCmd(),
		r.experimentEventsCmd(),
	)
	return cmd
}

func (r *Runner) experimentPutCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or replace an experiment from JSON",
		Long: `Create or replace an experiment keyed by slug. An existing experiment keeps
its ID and creation time; assignments already made are not touched.

Example:
  echo '{"name":"Hybrid ranking","slug":"hybrid-ranking","status":"running","traffic_percentage":50}' |
    featurectl experiment put`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var exp models.Experiment
			if err := readJSON(cmd, file, &exp); err != nil {
				return err
			}
			stored, err := r.stack.Backend.UpsertExperiment(cmd.Context(), &exp)
			if err != nil {
				return fmt.Errorf("put experiment %s: %w", exp.Slug, err)
			}
			return printJSON(cmd, stored)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "experiment JSON file, - for stdin")
	return cmd
}

func (r *Runner) experimentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <slug>",
		Short: "Show an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := r.stack.Backend.GetExperimentBySlug(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get experiment %s: %w", args[0], err)
			}
			return printJSON(cmd, exp)
		},
	}
}

func (r *Runner) experimentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete an experiment with its assignments and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := r.stack.Backend.GetExperimentBySlug(ctx, args[0])
			if err != nil {
				return fmt.Errorf("delete experiment %s: %w", args[0], err)
			}
			if err := r.stack.Backend.DeleteExperiment(ctx, exp.ID); err != nil {
				return fmt.Errorf("delete experiment %s: %w", args[0], err)
			}
			return printJSON(cmd, map[string]string{"deleted": exp.Slug, "id": exp.ID.String()})
		},
	}
}

func (r *Runner) experimentAssignmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assignments <slug>",
		Short: "List the stored assignments of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := r.stack.Backend.GetExperimentBySlug(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list assignments %s: %w", args[0], err)
			}
			list, err := r.stack.Backend.ListAssignments(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("list assignments %s: %w", args[0], err)
			}
			if list == nil {
				list = []models.Assignment{}
			}
			return printJSON(cmd, list)
		},
	}
}

func (r *Runner) experimentEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events <slug>",
		Short: "List assignment events recorded for an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := r.stack.Backend.GetExperimentBySlug(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list events %s: %w", args[0], err)
			}
			events, err := r.stack.Backend.ListEvents(ctx, exp.ID, limit)
			if err != nil {
				return fmt.Errorf("list events %s: %w", args[0], err)
			}
			if events == nil {
				events = []models.EventLog{}
			}
			return printJSON(cmd, events)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to return")
	return cmd
}
