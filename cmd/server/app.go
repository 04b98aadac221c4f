// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/eventprocessor"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/middleware"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/engine"
	"github.com/tomtom215/marquee/internal/recommend/sources"
	"github.com/tomtom215/marquee/internal/recommend/storage"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	latencyWindow  = 1000
	slowRequest    = 2 * time.Second
	uptimeInterval = 15 * time.Second
)

// application owns every long-lived component of the server.
type application struct {
	cfg      *config.Config
	store    *storage.Store
	db       *database.DB
	pipeline *eventprocessor.Pipeline
	engine   *engine.Engine
	server   *http.Server
	tree     *supervisor.SupervisorTree
	started  time.Time
}

// newApplication opens both stores and builds the engine, router and
// supervisor tree. On error everything opened so far is closed.
func newApplication(cfg *config.Config) (_ *application, err error) {
	app := &application{cfg: cfg, started: time.Now()}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	app.store, err = storage.Open(storage.Options{
		Path:     cfg.Storage.Path,
		InMemory: cfg.Storage.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	app.db, err = database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open exposure log: %w", err)
	}

	var exposures recommend.ExposureLog = app.db
	if cfg.Pipeline.Enabled {
		pcfg := eventprocessor.DefaultConfig()
		pcfg.Buffer = cfg.Pipeline.Buffer
		pcfg.RetryMaxRetries = cfg.Pipeline.MaxRetries
		pcfg.WriteTimeout = cfg.Pipeline.WriteTimeout
		pcfg.CloseTimeout = cfg.Server.ShutdownTimeout
		app.pipeline = eventprocessor.New(app.db, pcfg, logging.Logger())
		exposures = app.pipeline.Publisher()
	}

	var resolver recommend.MetadataResolver
	if cfg.Metadata.URL != "" {
		resolver = sources.NewHTTPMetadataResolver(cfg.Metadata.URL, cfg.Metadata.Timeout, nil)
	}
	srcs := sources.NewHTTPSources(cfg.Sources)
	if len(srcs) == 0 {
		logging.Warn().Msg("no scoring sources configured; candidates must carry their own scores")
	}

	app.engine, err = engine.New(&cfg.Recommend, engine.Dependencies{
		Store:     app.store,
		Sources:   srcs,
		Metadata:  resolver,
		Exposures: exposures,
	}, logging.Logger())
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	monitor := middleware.NewLatencyMonitor(latencyWindow, slowRequest, logging.WithComponent("latency"))
	handler := api.NewHandler(app.engine, api.HandlerOptions{
		Checks: map[string]api.ReadinessCheck{
			"history_store": app.store.Ping,
			"exposure_log":  app.db.Ping,
		},
		Monitor:      monitor,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		Version:      version,
	})
	mw := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.API.CORSAllowedOrigins,
		RateLimitRequests:  cfg.API.RateLimitRequests,
		RateLimitWindow:    cfg.API.RateLimitWindow,
		RateLimitDisabled:  cfg.API.RateLimitDisabled,
	})

	app.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, mw, monitor).Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	app.tree, err = supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), treeCfg)
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}
	app.addServices()

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	return app, nil
}

// addServices registers the data-layer maintenance services and the HTTP
// server with the supervisor tree.
func (app *application) addServices() {
	logger := logging.WithComponent("maintenance")
	cfg := app.cfg

	if app.pipeline != nil {
		app.tree.AddDataService(app.pipeline)
	}
	app.tree.AddDataService(services.NewCompactionService(
		app.store, cfg.Storage.GCDiscardRatio, cfg.Storage.GCInterval, logger))
	if cfg.Database.CheckpointInterval > 0 {
		app.tree.AddDataService(services.NewCheckpointService(
			app.db, cfg.Database.CheckpointInterval, logger))
	}
	if cfg.Recommend.Cache.Enabled {
		app.tree.AddDataService(services.NewProfileCleanupService(
			app.engine, cfg.Recommend.Cache.TTL, logger))
	}
	app.tree.AddDataService(services.NewPeriodicService(func(context.Context) error {
		metrics.AppUptime.Set(time.Since(app.started).Seconds())
		return nil
	}, services.PeriodicConfig{Name: "uptime", Interval: uptimeInterval, RunOnStart: true}, logger))

	app.tree.AddAPIService(services.NewHTTPService(
		app.server, app.server.Addr, cfg.Server.ShutdownTimeout, logging.WithComponent("http")))
}

// run serves until ctx is cancelled or the tree fails.
func (app *application) run(ctx context.Context) error {
	logging.Info().
		Str("addr", app.server.Addr).
		Str("version", version).
		Int("sources", len(app.cfg.Sources)).
		Msg("starting supervisor tree")

	errCh := app.tree.ServeBackground(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received, stopping services")
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if report, err := app.tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}
	return runErr
}

// close releases the pipeline and both stores. Safe on a partially built
// application.
func (app *application) close() {
	if app.pipeline != nil {
		if err := app.pipeline.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close exposure pipeline")
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close exposure log")
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close history store")
		}
	}
}
