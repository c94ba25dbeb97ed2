// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package cli

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/featurestore/internal/abtest"
	"github.com/tomtom215/featurestore/internal/models"
)

type assignOutput struct {
	Experiment string         `json:"experiment"`
	SubjectID  uuid.UUID      `json:"subject_id"`
	Variant    models.Variant `json:"variant,omitempty"`
	Included   bool           `json:"included"`
	Created    bool           `json:"created"`
	Bucket     int            `json:"bucket"`
}

func newAssignOutput(slug string, subject models.Subject, res *abtest.Result) assignOutput {
	return assignOutput{
		Experiment: slug,
		SubjectID:  subject.ID,
		Variant:    res.Variant,
		Included:   res.Included,
		Created:    res.Created,
		Bucket:     res.Bucket,
	}
}

func (r *Runner) assignCmd() *cobra.Command {
	var subjectID, email string
	cmd := &cobra.Command{
		Use:   "assign <slug>",
		Short: "Assign one subject to a variant",
		Long: `Return the subject's sticky variant, creating the assignment on first call.
A subject outside the experiment's traffic is reported with included=false
and nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("subject-id", subjectID)
			if err != nil {
				return err
			}
			subject := models.Subject{ID: id, Email: email}
			res, err := r.stack.Assigner.AssignBySlug(cmd.Context(), args[0], subject)
			if err != nil {
				return err
			}
			return printJSON(cmd, newAssignOutput(args[0], subject, res))
		},
	}
	cmd.Flags().StringVar(&subjectID, "subject-id", "", "subject UUID (required)")
	cmd.Flags().StringVar(&email, "email", "", "subject email; hashed instead of the UUID when set")
	_ = cmd.MarkFlagRequired("subject-id")
	return cmd
}

func (r *Runner) assignBatchCmd() *cobra.Command {
	var (
		file        string
		concurrency int
		perSecond   float64
	)
	cmd := &cobra.Command{
		Use:   "assign-batch <slug>",
		Short: "Assign many subjects read as JSON lines",
		Long: `Read one subject per line ({"id": "...", "email": "..."}) and assign each
with bounded concurrency, optionally capped at --rate assignments per
second. Results are printed as JSON lines in input order. The first failure
stops the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			if perSecond < 0 {
				return fmt.Errorf("--rate must not be negative")
			}
			limiter := rate.NewLimiter(rate.Inf, 1)
			if perSecond > 0 {
				limiter = rate.NewLimiter(rate.Limit(perSecond), concurrency)
			}
			subjects, err := readSubjects(cmd, file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			exp, err := r.stack.Backend.GetExperimentBySlug(ctx, args[0])
			if err != nil {
				return fmt.Errorf("assign-batch %s: %w", args[0], err)
			}

			results := make([]assignOutput, len(subjects))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)
			for i, subject := range subjects {
				g.Go(func() error {
					if err := limiter.Wait(gctx); err != nil {
						return err
					}
					res, err := r.stack.Assigner.Assign(gctx, exp, subject)
					if err != nil {
						return fmt.Errorf("subject %s: %w", subject.ID, err)
					}
					results[i] = newAssignOutput(exp.Slug, subject, res)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, res := range results {
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON lines file, - for stdin")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "parallel assignments")
	cmd.Flags().Float64Var(&perSecond, "rate", 0, "maximum assignments per second, 0 for unlimited")
	return cmd
}

func readSubjects(cmd *cobra.Command, path string) ([]models.Subject, error) {
	in, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()

	var subjects []models.Subject
	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var s models.Subject
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", inputName(path), line, err)
		}
		if s.ID == uuid.Nil {
			return nil, fmt.Errorf("%s line %d: %w: subject id is required", inputName(path), line, models.ErrInvalidInput)
		}
		subjects = append(subjects, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", inputName(path), err)
	}
	return subjects, nil
}
