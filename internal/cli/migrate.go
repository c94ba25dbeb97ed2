// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type schemaVersioned interface {
	AppliedVersions(ctx context.Context) ([]int, error)
}

type migrateResult struct {
	Backend  string `json:"backend"`
	Versions []int  `json:"applied_versions"`
}

func (r *Runner) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and list applied versions",
		Long: `Opening a backend applies its pending migrations, each in its own
transaction. migrate does only that and reports the recorded versions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := migrateResult{Backend: r.stack.Backend.Name(), Versions: []int{}}
			if v, ok := r.stack.Backend.(schemaVersioned); ok {
				versions, err := v.AppliedVersions(cmd.Context())
				if err != nil {
					return err
				}
				res.Versions = versions
			}
			return printJSON(cmd, res)
		},
	}
}
