// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for:
// - Recommendation serving and learning
// - Scoring sources and their circuit breakers
// - Exposure log queries (DuckDB) and learning-state storage (BadgerDB)
// - API endpoint latency and throughput
// - Taste profile cache efficiency
// - Counterfactual replay runs
// - The asynchronous exposure pipeline

var (
	// Recommendation Metrics
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"outcome"}, // "ok", "empty", "error"
	)

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_recommend_duration_seconds",
			Help:    "End-to-end recommendation latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	RecommendCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_recommend_candidates",
			Help:    "Number of candidates at each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
		},
		[]string{"stage"}, // "input", "scored", "filtered", "served"
	)

	RecommendEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_recommend_events_total",
			Help: "Structured pipeline events by kind",
		},
		[]string{"kind"},
	)

	ExploratorySlots = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_exploratory_slots",
			Help:    "Exploratory picks served per request",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	// Learning Metrics
	LearnUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_learn_updates_total",
			Help: "Total number of learning updates",
		},
		[]string{"outcome"}, // "ok", "error", "cancelled"
	)

	ExplorationRate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_exploration_rate",
			Help:    "Exploration rate after each learning update",
			Buckets: []float64{0.05, 0.075, 0.1, 0.125, 0.15, 0.175, 0.2, 0.225, 0.25, 0.275, 0.3},
		},
	)

	TransitionsObserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_genre_transitions_observed_total",
			Help: "Total number of genre transitions observed",
		},
	)

	// Scoring Source Metrics
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_source_requests_total",
			Help: "Total number of scoring source requests",
		},
		[]string{"source", "result"}, // result: "success", "failure", "rate_limited"
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_source_duration_seconds",
			Help:    "Scoring source request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badger_operations_total",
			Help: "Total number of BadgerDB store operations",
		},
		[]string{"operation", "success"},
	)

	StoreGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badger_value_log_gc_runs_total",
			Help: "Total number of BadgerDB value log GC runs",
		},
		[]string{"result"}, // "rewritten", "nothing", "error"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "profile"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	// Replay Metrics
	ReplayRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_replay_runs_total",
			Help: "Total number of counterfactual replay runs",
		},
		[]string{"outcome"},
	)

	ReplayAcceptanceDelta = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marquee_replay_acceptance_delta",
			Help:    "Estimated acceptance-rate delta of replayed parameter changes",
			Buckets: prometheus.LinearBuckets(-0.5, 0.1, 11),
		},
	)

	// Maintenance Metrics
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_maintenance_runs_total",
			Help: "Total number of periodic maintenance task runs",
		},
		[]string{"task", "result"}, // result: ok, error
	)

	MaintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_maintenance_duration_seconds",
			Help:    "Duration of periodic maintenance task runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"task"},
	)

	// Exposure pipeline metrics
	PipelineMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_pipeline_messages_total",
			Help: "Exposure pipeline messages by topic and result",
		},
		[]string{"topic", "result"}, // result: published, publish_error, stored, poisoned
	)

	PipelineRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_pipeline_records_total",
			Help: "Exposure and feedback records written to the exposure log by the pipeline",
		},
		[]string{"topic"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordRecommend records a completed recommendation request.
func RecordRecommend(outcome string, duration time.Duration, input, scored, filtered, served, exploratory int) {
	RecommendRequests.WithLabelValues(outcome).Inc()
	RecommendDuration.Observe(duration.Seconds())
	RecommendCandidates.WithLabelValues("input").Observe(float64(input))
	RecommendCandidates.WithLabelValues("scored").Observe(float64(scored))
	RecommendCandidates.WithLabelValues("filtered").Observe(float64(filtered))
	RecommendCandidates.WithLabelValues("served").Observe(float64(served))
	ExploratorySlots.Observe(float64(exploratory))
}

// RecordEvent counts a structured pipeline event.
func RecordEvent(kind string) {
	RecommendEvents.WithLabelValues(kind).Inc()
}

// RecordLearn records a learning update.
func RecordLearn(outcome string, rate float64, transitions int) {
	LearnUpdates.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		ExplorationRate.Observe(rate)
		TransitionsObserved.Add(float64(transitions))
	}
}

// RecordSourceRequest records one scoring source call.
func RecordSourceRequest(source, result string, duration time.Duration) {
	SourceRequests.WithLabelValues(source, result).Inc()
	SourceDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordStoreOperation records a BadgerDB store operation.
func RecordStoreOperation(operation string, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	StoreOperations.WithLabelValues(operation, success).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordMaintenance records one run of a periodic maintenance task.
func RecordMaintenance(task string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	MaintenanceRuns.WithLabelValues(task, result).Inc()
	MaintenanceDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordPipelineMessage counts one exposure pipeline message outcome.
func RecordPipelineMessage(topic, result string) {
	PipelineMessages.WithLabelValues(topic, result).Inc()
}

// RecordReplay records a replay run.
func RecordReplay(err error, acceptanceDelta float64) {
	if err != nil {
		outcome := "error"
		if strings.Contains(err.Error(), "invalid request") {
			outcome = "invalid"
		}
		ReplayRuns.WithLabelValues(outcome).Inc()
		return
	}
	ReplayRuns.WithLabelValues("ok").Inc()
	ReplayAcceptanceDelta.Observe(acceptanceDelta)
}
