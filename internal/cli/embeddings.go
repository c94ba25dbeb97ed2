// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomtom215/featurestore/internal/models"
)

func (r *Runner) embeddingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "embeddings",
		Aliases: []string{"emb"},
		Short:   "Write and read user and item embeddings",
	}
	cmd.AddCommand(r.embeddingsUpsertCmd(), r.embeddingsLatestCmd())
	return cmd
}

func (r *Runner) embeddingsUpsertCmd() *cobra.Command {
	var kind, file string
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Store an embedding, replacing the same subject and model version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := models.ParseSubjectKind(kind)
			if err != nil {
				return err
			}
			var e models.Embedding
			if err := readJSON(cmd, file, &e); err != nil {
				return err
			}
			stored, err := r.stack.Embeddings.Upsert(cmd.Context(), k, e)
			if err != nil {
				return err
			}
			return printJSON(cmd, stored)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(models.KindUser), "user or item")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "embedding JSON file, - for stdin")
	return cmd
}

func (r *Runner) embeddingsLatestCmd() *cobra.Command {
	var kind, modelVersion string
	cmd := &cobra.Command{
		Use:   "latest <subject-id>...",
		Short: "Show the newest embedding of each subject",
		Long: `Print a JSON object keyed by subject ID. Subjects without an embedding are
left out. --model-version restricts the lookup to one version.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := models.ParseSubjectKind(kind)
			if err != nil {
				return err
			}
			ids := make([]uuid.UUID, len(args))
			for i, arg := range args {
				if ids[i], err = parseUUID("subject-id", arg); err != nil {
					return err
				}
			}
			latest, err := r.stack.Embeddings.Latest(cmd.Context(), k, ids, modelVersion)
			if err != nil {
				return err
			}
			return printJSON(cmd, latest)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(models.KindUser), "user or item")
	cmd.Flags().StringVar(&modelVersion, "model-version", "", "restrict to one model version")
	return cmd
}
