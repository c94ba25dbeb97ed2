// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"github.com/spf13/cobra"
)

func (r *Runner) subjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Subject data maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <subject-id>",
		Short: "Erase a subject from every store",
		Long: `Remove the subject's assignments, events, embeddings and score sets, and
drop it as an item from other users' score sets. Remaining ranks keep
their numbers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("subject-id", args[0])
			if err != nil {
				return err
			}
			if err := r.stack.DeleteSubject(cmd.Context(), id); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"deleted": id.String()})
		},
	})
	return cmd
}
