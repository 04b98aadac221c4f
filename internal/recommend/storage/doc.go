// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package storage persists watch history and per-user learning state in
// BadgerDB.
//
// # Key Layout
//
//	watch:{user}:{item}   one WatchRecord per watched item
//	learn:{user}          ExplorationState plus all GenreTransitions
//	profile:{user}        optional TasteProfile snapshot (derived data)
//
// Values are JSON envelopes carrying a schema version and save time:
//
//	{"v":1,"saved_at":"...","data":{...}}
//
// # Atomicity
//
// A user's learning state lives under a single key and is written in one
// transaction, so readers observe either the previous or the next state and
// never a partial update. RecordWatches applies a whole batch in one
// transaction as well, and CommitLearning writes a batch together with the
// learning state it produced.
//
// # Thread Safety
//
// Store is safe for concurrent use. BadgerDB provides serializable snapshot
// isolation; conflicting writers get badger.ErrConflict, which Store retries.
package storage
