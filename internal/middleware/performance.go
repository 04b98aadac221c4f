// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RequestSample is one observed request.
type RequestSample struct {
	Route      string
	Method     string
	Duration   time.Duration
	StatusCode int
	At         time.Time
}

// RouteStats aggregates the samples of one route in the window.
type RouteStats struct {
	Route        string  `json:"route"`
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        int64   `json:"p50_ms"`
	P95MS        int64   `json:"p95_ms"`
	P99MS        int64   `json:"p99_ms"`
	MaxMS        int64   `json:"max_ms"`
}

// LatencyMonitor keeps a fixed-size window of recent request samples.
type LatencyMonitor struct {
	mu      sync.RWMutex
	samples []RequestSample
	next    int
	full    bool

	slow   time.Duration
	logger zerolog.Logger
}

// NewLatencyMonitor creates a monitor holding the last size samples.
// Requests slower than slow are logged at warn; zero disables that.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewLatencyMonitor(size int, slow time.Duration, logger zerolog.Logger) *LatencyMonitor {
	if size <= 0 {
		size = 1000
	}
	return &LatencyMonitor{
		samples: make([]RequestSample, size),
		slow:    slow,
		logger:  logger.With().Str("component", "latency").Logger(),
	}
}

// Record adds a sample, overwriting the oldest once the window is full.
func (m *LatencyMonitor) Record(s RequestSample) {
	m.mu.Lock()
	m.samples[m.next] = s
	m.next++
	if m.next == len(m.samples) {
		m.next = 0
		m.full = true
	}
	m.mu.Unlock()
}

// Len returns the number of samples in the window.
func (m *LatencyMonitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.samples)
	}
	return m.next
}

// Stats returns per-route statistics, busiest route first.
func (m *LatencyMonitor) Stats() []RouteStats {
	m.mu.RLock()
	n := m.next
	if m.full {
		n = len(m.samples)
	}
	byRoute := make(map[string][]RequestSample)
	for i := 0; i < n; i++ {
		s := m.samples[i]
		key := s.Method + " " + s.Route
		byRoute[key] = append(byRoute[key], s)
	}
	m.mu.RUnlock()

	out := make([]RouteStats, 0, len(byRoute))
	for route, samples := range byRoute {
		ms := make([]int64, len(samples))
		var sum int64
		errs := 0
		for i, s := range samples {
			ms[i] = s.Duration.Milliseconds()
			sum += ms[i]
			if s.StatusCode >= http.StatusInternalServerError {
				errs++
			}
		}
		sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })
		out = append(out, RouteStats{
			Route:        route,
			RequestCount: len(samples),
			ErrorCount:   errs,
			AvgMS:        float64(sum) / float64(len(samples)),
			P50MS:        percentile(ms, 0.50),
			P95MS:        percentile(ms, 0.95),
			P99MS:        percentile(ms, 0.99),
			MaxMS:        ms[len(ms)-1],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestCount != out[j].RequestCount {
			return out[i].RequestCount > out[j].RequestCount
		}
		return out[i].Route < out[j].Route
	})
	return out
}

// Middleware records every request that passes through it.
func (m *LatencyMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		d := time.Since(start)
		route := RoutePattern(r)
		m.Record(RequestSample{
			Route:      route,
			Method:     r.Method,
			Duration:   d,
			StatusCode: wrapper.statusCode,
			At:         start,
		})

		if m.slow > 0 && d > m.slow {
			m.logger.Warn().
				Str("method", r.Method).
				Str("route", route).
				Int64("duration_ms", d.Milliseconds()).
				Int64("threshold_ms", m.slow.Milliseconds()).
				Msg("slow request")
		}
	})
}

// percentile reads the p-quantile from sorted values.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
