// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/replay"
)

type runOptions struct {
	userID   int
	lookback time.Duration
	asOf     string
	lambda   float64
	weights  []string
	format   string
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay one user's exposures under proposed parameters",
		Long: `Re-score a user's logged exposures with a different MMR lambda and/or
source weights and compare acceptance with the exposures as served.

Examples:
  marquee-replay run --user 7 --lambda 0.6
  marquee-replay run --user 7 --weight tmdb=2 --lookback 168h --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.overrides(cmd)
			if err != nil {
				return err
			}
			asOf, err := parseAsOf(opts.asOf)
			if err != nil {
				return err
			}
			report, err := runReplay(cmd, global, opts.userID, params, asOf, opts.lookback)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.format, report, reportText(report))
		},
	}

	cmd.Flags().IntVarP(&opts.userID, "user", "u", 0, "user id (required)")
	cmd.Flags().DurationVar(&opts.lookback, "lookback", 0, "exposure window (default from config)")
	cmd.Flags().StringVar(&opts.asOf, "as-of", "", "evaluation time, RFC 3339 (default now)")
	cmd.Flags().Float64Var(&opts.lambda, "lambda", 0, "proposed MMR lambda in [0,1]")
	cmd.Flags().StringArrayVarP(&opts.weights, "weight", "w", nil, "proposed source weight as name=value (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "output format: text, json or yaml")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// overrides builds the proposed parameters. An unset --lambda keeps the
// lambda stored on each exposure.
func (o *runOptions) overrides(cmd *cobra.Command) (recommend.Overrides, error) {
	var params recommend.Overrides
	if cmd.Flags().Changed("lambda") {
		lambda := o.lambda
		params.MMRLambda = &lambda
	}
	if len(o.weights) > 0 {
		weights, err := config.ParseWeights(o.weights)
		if err != nil {
			return params, fmt.Errorf("invalid --weight: %w", err)
		}
		params.SourceWeights = weights
	}
	return params, nil
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want RFC 3339", s)
	}
	return t.UTC(), nil
}

// runReplay loads the window from the exposure log and evaluates it.
//
//nolint:gocritic // hugeParam: params passed by value, read once
func runReplay(cmd *cobra.Command, global *globalOptions, userID int, params recommend.Overrides, asOf time.Time, lookback time.Duration) (*replay.Report, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("--user must be positive")
	}
	cfg := global.cfg.Recommend
	if lookback <= 0 {
		lookback = cfg.Replay.Lookback
	}
	since := asOf.Add(-lookback)

	db, err := global.openLog()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("failed to close exposure log")
		}
	}()

	ctx := cmd.Context()
	exposures, err := db.Exposures(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load exposures: %w", err)
	}
	feedback, err := db.Feedback(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	logging.Debug().
		Int("user_id", userID).
		Int("exposures", len(exposures)).
		Int("feedback", len(feedback)).
		Time("since", since).
		Msg("replay window loaded")

	return replay.NewEvaluator(cfg.Replay, cfg.Sources).Evaluate(replay.Input{
		UserID:    userID,
		Exposures: exposures,
		Feedback:  feedback,
		Params:    params,
		AsOf:      asOf,
		Lookback:  lookback,
	})
}
