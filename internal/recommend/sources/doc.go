// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package sources provides the external collaborators of the engine:
// scoring sources and the metadata resolver.
//
// HTTPSource and HTTPMetadataResolver talk JSON over HTTP. Each endpoint
// gets its own token-bucket rate limiter and circuit breaker; breaker
// state is exported to prometheus. Every failure is reported as a
// *SourceError wrapping ErrSourceUnavailable, which the consensus collector
// absorbs into a source_unavailable event.
//
// StaticSource and StaticMetadata serve fixed in-memory data for tests and
// offline replays.
package sources
