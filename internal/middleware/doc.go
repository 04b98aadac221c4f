// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package middleware provides HTTP middleware for the Marquee API.

Key Components:

  - Request ID: reuses an inbound X-Request-ID or generates a UUID, echoes it
    in the response and stores it in the request context for logging
  - Prometheus Metrics: request counts, latencies and in-flight gauge,
    labelled by chi route pattern so path parameters do not explode
    label cardinality
  - Latency Monitor: a sliding window of recent request latencies with
    per-route percentiles, surfaced by the health endpoint

Middleware Stack:

The API router applies them in this order:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(monitor.Middleware)
	r.Use(middleware.PrometheusMetrics)

All middleware here use the func(http.Handler) http.Handler shape chi
expects.

Thread Safety:

LatencyMonitor is safe for concurrent use. The other middleware are
stateless.
*/
package middleware
