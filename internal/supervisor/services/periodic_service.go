// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/metrics"
)

// Task is one run of a periodic maintenance job.
type Task func(ctx context.Context) error

// PeriodicConfig configures a PeriodicService.
type PeriodicConfig struct {
	// Name identifies the service in suture events, logs and metrics.
	Name string

	// Interval between runs. Default: 10m.
	Interval time.Duration

	// Timeout bounds a single run. Default: Interval.
	Timeout time.Duration

	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
}

// PeriodicService runs a Task on a fixed interval under suture supervision.
// A failed run is logged and counted; the loop keeps its schedule and the
// service only returns when its context ends.
type PeriodicService struct {
	task   Task
	config PeriodicConfig
	logger zerolog.Logger
}

// NewPeriodicService creates a periodic service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPeriodicService(task Task, cfg PeriodicConfig, logger zerolog.Logger) *PeriodicService {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &PeriodicService{
		task:   task,
		config: cfg,
		logger: logger.With().Str("service", cfg.Name).Logger(),
	}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	s.logger.Debug().
		Dur("interval", s.config.Interval).
		Bool("run_on_start", s.config.RunOnStart).
		Msg("periodic service starting")

	if s.config.RunOnStart {
		_ = s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = s.run(ctx)
		}
	}
}

// RunOnce runs the task immediately, outside the schedule.
func (s *PeriodicService) RunOnce(ctx context.Context) error {
	return s.run(ctx)
}

func (s *PeriodicService) run(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	err := s.task(runCtx)
	duration := time.Since(start)
	metrics.RecordMaintenance(s.config.Name, duration, err)

	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Dur("duration", duration).Msg("maintenance run failed")
		}
		return err
	}
	s.logger.Debug().Dur("duration", duration).Msg("maintenance run complete")
	return nil
}

// String returns the service name for suture logging.
func (s *PeriodicService) String() string {
	return s.config.Name
}
