// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/middleware"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/engine"
	"github.com/tomtom215/marquee/internal/recommend/replay"
)

// Engine is the subset of *engine.Engine the handlers use.
type Engine interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	Learn(ctx context.Context, req recommend.LearnRequest) error
	Exploration(ctx context.Context, userID int) (*engine.ExplorationView, error)
	Replay(ctx context.Context, req engine.ReplayRequest) (*replay.Report, error)
	Stats() engine.Stats
}

var _ Engine = (*engine.Engine)(nil)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// defaultMaxBodyBytes bounds request bodies when no limit is configured.
const defaultMaxBodyBytes = 1 << 20

// Handler holds the collaborators of every HTTP handler.
type Handler struct {
	engine       Engine
	checks       map[string]ReadinessCheck
	monitor      *middleware.LatencyMonitor
	maxBodyBytes int64
	version      string
	startTime    time.Time
	logger       zerolog.Logger
}

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	// Checks are run by /health/ready, keyed by dependency name.
	Checks map[string]ReadinessCheck

	// Monitor supplies per-route latency for /health. Optional.
	Monitor *middleware.LatencyMonitor

	// MaxBodyBytes bounds request bodies. Default: 1 MiB.
	MaxBodyBytes int64

	// Version is reported by /health.
	Version string
}

// NewHandler creates a Handler around eng.
func NewHandler(eng Engine, opts HandlerOptions) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Handler{
		engine:       eng,
		checks:       opts.Checks,
		monitor:      opts.Monitor,
		maxBodyBytes: opts.MaxBodyBytes,
		version:      opts.Version,
		startTime:    time.Now(),
		logger:       logging.WithComponent("api"),
	}
}
