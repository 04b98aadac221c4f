// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/marquee/internal/middleware"
)

// compressionLevel is the gzip level for JSON responses.
const compressionLevel = 5

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	monitor       *middleware.LatencyMonitor
}

// NewRouter creates a router. A nil mw uses the default middleware config
// and a nil monitor skips latency sampling.
func NewRouter(handler *Handler, mw *ChiMiddleware, monitor *middleware.LatencyMonitor) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: mw,
		monitor:       monitor,
	}
}

// Setup builds the http.Handler for the whole API.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(chimiddleware.Compress(compressionLevel, "application/json"))
	if router.monitor != nil {
		r.Use(router.monitor.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.Route("/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.Live)
		r.Get("/ready", router.handler.Ready)
	})

	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)

		r.Post("/suggestions", router.handler.Suggestions)
		r.Post("/ratings", router.handler.Ratings)
		r.Post("/feedback", router.handler.Feedback)
		r.Get("/exploration", router.handler.Exploration)
		r.Post("/replay", router.handler.Replay)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
