// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
)

// Summary is the log-wide acceptance overview.
type Summary struct {
	Since  time.Time                    `json:"since" yaml:"since"`
	Rows   map[string]int               `json:"rows" yaml:"rows"`
	Levels []database.AcceptanceSummary `json:"levels" yaml:"levels"`
}

func newSummaryCmd(global *globalOptions) *cobra.Command {
	var (
		lookback time.Duration
		format   string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Acceptance per consensus level across all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lookback <= 0 {
				lookback = global.cfg.Recommend.Replay.Lookback
			}
			db, err := global.openLog()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					logging.Warn().Err(cerr).Msg("failed to close exposure log")
				}
			}()

			ctx := cmd.Context()
			summary := &Summary{Since: time.Now().UTC().Add(-lookback)}
			if summary.Rows, err = db.RecordCounts(ctx); err != nil {
				return fmt.Errorf("count rows: %w", err)
			}
			if summary.Levels, err = db.AcceptanceByLevel(ctx, summary.Since); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, summary, summaryText(summary))
		},
	}

	cmd.Flags().DurationVar(&lookback, "lookback", 0, "window to aggregate (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or yaml")
	return cmd
}
