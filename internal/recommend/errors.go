// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"errors"
	"fmt"
)

// Sentinel errors. Only ErrStoreUnavailable, ErrInvalidRequest and context
// errors are returned from Recommend; the rest are absorbed into events.
var (
	// ErrSourceUnavailable indicates a scoring source timed out or failed.
	ErrSourceUnavailable = errors.New("scoring source unavailable")

	// ErrMetadataMissing indicates an item lacks genre or keyword data.
	ErrMetadataMissing = errors.New("item metadata missing")

	// ErrNoCandidates indicates aggregation produced an empty pool.
	ErrNoCandidates = errors.New("no candidates")

	// ErrInvalidState indicates persisted learning state violated its bounds.
	ErrInvalidState = errors.New("invalid learning state")

	// ErrStoreUnavailable indicates the history store could not be read or written.
	ErrStoreUnavailable = errors.New("history store unavailable")

	// ErrInvalidRequest indicates a malformed request.
	ErrInvalidRequest = errors.New("invalid request")
)

// SourceError wraps a failure of a single scoring source.
type SourceError struct {
	Source string
	Err    error
}

// Error implements error.
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

// Unwrap returns both the cause and ErrSourceUnavailable so callers can match either.
func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}
