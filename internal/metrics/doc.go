// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and
exposed by the API at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

Recommendation Metrics:
  - marquee_recommend_requests_total: Requests by outcome (ok, empty, error)
  - marquee_recommend_duration_seconds: End-to-end latency (histogram)
  - marquee_recommend_candidates: Candidates per stage (input, scored, filtered, served)
  - marquee_recommend_events_total: Pipeline events by kind
  - marquee_exploratory_slots: Exploratory picks per response

Learning Metrics:
  - marquee_learn_updates_total: Learning updates by outcome
  - marquee_exploration_rate: Exploration rate after each update
  - marquee_genre_transitions_observed_total: Transitions counted

Source Metrics:
  - marquee_source_requests_total: Calls by source and result
  - marquee_source_duration_seconds: Call latency by source
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Calls by breaker and result
  - circuit_breaker_state_transitions_total: State changes

Storage Metrics:
  - duckdb_query_duration_seconds / duckdb_query_errors_total: Exposure log queries
  - badger_operations_total: Learning-state store operations
  - badger_value_log_gc_runs_total: Compaction runs

API Metrics:
  - api_requests_total, api_request_duration_seconds, api_active_requests
  - api_rate_limit_hits_total

Cache and Replay Metrics:
  - cache_hits_total, cache_misses_total, cache_entries (cache_type="profile")
  - marquee_replay_runs_total, marquee_replay_acceptance_delta

# Testing

Collectors are package globals, so tests read them with
prometheus/testutil and compare deltas rather than absolute values.
*/
package metrics
