// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package eventprocessor moves exposure and feedback records off the serving
// path and into the DuckDB exposure log through an in-process Watermill
// pipeline.
//
// # Data Flow
//
//	Engine.Recommend / Engine.Learn
//	        │ RecordExposures / RecordFeedback
//	        ▼
//	┌──────────────┐   marquee.exposures    ┌────────────────┐
//	│  Publisher   │ ─────────────────────▶ │ Watermill      │
//	│ (ExposureLog)│   marquee.feedback     │ Router         │
//	└──────┬───────┘   (GoChannel pub/sub)  │  PoisonQueue   │
//	       │ Exposures / Feedback           │  Retry         │
//	       ▼ (reads pass through)           │  Recoverer     │
//	┌──────────────┐ ◀───────────────────── └───────┬────────┘
//	│ DuckDB log   │      batched inserts           │ after retries
//	└──────────────┘                                ▼
//	                                         marquee.poisoned
//	                                      (logged and counted)
//
// Publishing never blocks a request on DuckDB. The price is that a replay
// issued immediately after a recommendation may not yet see its exposures,
// and messages still buffered when the process stops are lost. Exposure
// logging is best-effort throughout: serving never fails because of it.
//
// The Pipeline is a suture.Service. Each Serve call builds a fresh router,
// so a supervisor restart resubscribes cleanly.
package eventprocessor
