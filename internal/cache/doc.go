// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package cache provides in-memory caching for derived per-user data.
//
// The engine caches taste profile snapshots in an LRU keyed by user and a
// fingerprint of the user's watch history, so a profile is rebuilt only
// when the history changes or the entry expires:
//
//	profiles := cache.NewLRU[cache.ProfileKey, *recommend.TasteProfile](10000, 10*time.Minute)
//	profiles.Add(key, profile)
//	if p, ok := profiles.Get(key); ok {
//	    // use cached profile
//	}
//
// All operations are O(1) and safe for concurrent use. Expiration is lazy:
// an expired entry is dropped when it is next read, or in bulk by
// CleanupExpired.
package cache
