// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/featurestore/internal/featurestore"
	"github.com/tomtom215/featurestore/internal/models"
)

func (r *Runner) scoresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Replace and read materialized score sets",
	}
	cmd.AddCommand(r.scoresReplaceCmd(), r.scoresTopKCmd(), r.scoresVersionsCmd())
	return cmd
}

func (r *Runner) scoresReplaceCmd() *cobra.Command {
	var user, modelVersion, file string
	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace a user's score set for one model version",
		Long: `Read a JSON array of candidates ({"item_id", "score", "explanation"}) ordered
by non-increasing score. Candidate i gets rank i+1. An empty array clears
the set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUUID("user", user)
			if err != nil {
				return err
			}
			var candidates []featurestore.Candidate
			if err := readJSON(cmd, file, &candidates); err != nil {
				return err
			}
			if err := r.stack.Scores.Replace(cmd.Context(), userID, modelVersion, candidates); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"user_id":       userID,
				"model_version": modelVersion,
				"replaced":      len(candidates),
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user UUID (required)")
	cmd.Flags().StringVar(&modelVersion, "model-version", "", "model version (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "candidates JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("model-version")
	return cmd
}

func (r *Runner) scoresTopKCmd() *cobra.Command {
	var (
		user, modelVersion string
		limit              int
	)
	cmd := &cobra.Command{
		Use:   "topk",
		Short: "Show a user's top ranked items",
		Long: `Without --model-version the stored version is used when there is exactly
one; several stored versions are an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUUID("user", user)
			if err != nil {
				return err
			}
			items, err := r.stack.Scores.TopK(cmd.Context(), userID, modelVersion, limit)
			if err != nil {
				return err
			}
			if items == nil {
				items = []models.RankedItem{}
			}
			return printJSON(cmd, items)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user UUID (required)")
	cmd.Flags().StringVar(&modelVersion, "model-version", "", "model version")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (r *Runner) scoresVersionsCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List model versions with a stored set for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUUID("user", user)
			if err != nil {
				return err
			}
			versions, err := r.stack.Scores.ModelVersions(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if versions == nil {
				versions = []string{}
			}
			return printJSON(cmd, versions)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user UUID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
