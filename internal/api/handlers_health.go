// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/tomtom215/marquee/internal/middleware"
	"github.com/tomtom215/marquee/internal/recommend/engine"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status        string                  `json:"status"`
	Version       string                  `json:"version"`
	GoVersion     string                  `json:"go_version"`
	Goroutines    int                     `json:"goroutines"`
	UptimeSeconds float64                 `json:"uptime_seconds"`
	Engine        engine.Stats            `json:"engine"`
	Latency       []middleware.RouteStats `json:"latency,omitempty"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Name       string `json:"name"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// ReadinessStatus is the body of GET /health/ready.
type ReadinessStatus struct {
	Ready  bool          `json:"ready"`
	Checks []CheckResult `json:"checks"`
}

// Health reports process and engine statistics.
//
// Method: GET
// Path: /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:        "healthy",
		Version:       h.version,
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Engine:        h.engine.Stats(),
	}
	if h.monitor != nil {
		status.Latency = h.monitor.Stats()
	}
	WriteSuccess(w, r, status)
}

// Live is the liveness probe. It only proves the process is serving.
//
// Method: GET
// Path: /health/live
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]string{"status": "alive"})
}

// Ready runs every readiness check and answers 503 if any fails.
//
// Method: GET
// Path: /health/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := ReadinessStatus{Ready: true, Checks: make([]CheckResult, 0, len(names))}
	for _, name := range names {
		result := runCheck(r.Context(), name, h.checks[name])
		if !result.Healthy {
			status.Ready = false
		}
		status.Checks = append(status.Checks, result)
	}

	if !status.Ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", status)
		return
	}
	rw.Success(status)
}

func runCheck(ctx context.Context, name string, check ReadinessCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	result := CheckResult{
		Name:       name,
		Healthy:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
