// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide; it caches struct
// metadata, so building one per request would waste the cache. Field names
// in errors are taken from json tags and include the path into nested
// slices, so API clients see the names they sent:
//
//	ratings[2].metadata.genres must contain at least 1 item
//
// Example usage:
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    rw.ValidationError(apiErr.Message, apiErr.Details)
//	    return
//	}
package validation
