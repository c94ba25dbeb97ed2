// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomtom215/featurestore/internal/abtest"
	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

type flagResult struct {
	Flag      string    `json:"flag"`
	SubjectID uuid.UUID `json:"subject_id"`
	Bucket    int       `json:"bucket"`
	Enabled   bool      `json:"enabled"`
}

func (r *Runner) flagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Feature flag tools",
	}

	var (
		flag             models.FeatureFlag
		subjectID, email string
		disabled         bool
	)
	eval := &cobra.Command{
		Use:   "eval <slug>",
		Short: "Evaluate a percentage rollout for one subject",
		Long: `Evaluate a rollout the same way experiments bucket subjects, using the flag
slug as the hash namespace. Nothing is read from or written to a store.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("subject-id", subjectID)
			if err != nil {
				return err
			}
			flag.Slug = args[0]
			flag.Enabled = !disabled
			if err := validation.ValidateStruct(&flag); err != nil {
				return err
			}
			subject := models.Subject{ID: id, Email: email}
			return printJSON(cmd, flagResult{
				Flag:      flag.Slug,
				SubjectID: id,
				Bucket:    abtest.Bucket(flag.Slug, subject.Key()),
				Enabled:   abtest.FlagEnabled(&flag, subject),
			})
		},
	}
	eval.Flags().IntVar(&flag.RolloutPercentage, "rollout", 100, "rollout percentage, 0 to 100")
	eval.Flags().BoolVar(&disabled, "disabled", false, "evaluate with the flag switched off")
	eval.Flags().StringVar(&subjectID, "subject-id", "", "subject UUID (required)")
	eval.Flags().StringVar(&email, "email", "", "subject email; hashed instead of the UUID when set")
	_ = eval.MarkFlagRequired("subject-id")

	cmd.AddCommand(eval)
	return cmd
}
