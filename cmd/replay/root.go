// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dbPath  string
	verbose bool
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "marquee-replay",
		Short: "Counterfactual replay over the Marquee exposure log",
		Long: `marquee-replay re-scores logged suggestion exposures under proposed
parameters and reports the estimated change in acceptance.

Configuration is read the same way as the server (CONFIG_PATH, config.yaml,
environment). Source weights and the replay window default to the server's.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logCfg := cfg.Logging.ToLogging()
			logCfg.Output = cmd.ErrOrStderr()
			if !opts.verbose {
				logCfg.Level = "warn"
			}
			logging.Init(logCfg)

			if opts.dbPath != "" {
				cfg.Database.Path = opts.dbPath
			}
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "DuckDB exposure log path (default from config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at the configured level instead of warn")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newSummaryCmd(opts))
	return root
}

// openLog opens the exposure log named by the options.
func (o *globalOptions) openLog() (*database.DB, error) {
	db, err := database.New(&o.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open exposure log %s: %w", o.cfg.Database.Path, err)
	}
	return db, nil
}
