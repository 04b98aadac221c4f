// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/validation"
)

// Request bodies. The validate tags follow go-playground/validator v10
// syntax; nested recommend types carry their own tags and are validated
// through dive.

// SuggestionsRequest is the body of POST /users/{userID}/suggestions.
type SuggestionsRequest struct {
	Candidates []recommend.Candidate `json:"candidates" validate:"max=10000,dive"`
	K          int                   `json:"k" validate:"omitempty,gte=1,lte=1000"`
	Overrides  recommend.Overrides   `json:"overrides"`
	RequestID  string                `json:"request_id" validate:"omitempty,max=128"`
}

// RatingsRequest is the body of POST /users/{userID}/ratings.
type RatingsRequest struct {
	Ratings []recommend.WatchRecord `json:"ratings" validate:"required,min=1,max=1000,dive"`
}

// FeedbackRequest is the body of POST /users/{userID}/feedback.
type FeedbackRequest struct {
	Feedback []recommend.Feedback `json:"feedback" validate:"required,min=1,max=1000,dive"`
}

// ReplayBody is the body of POST /users/{userID}/replay.
type ReplayBody struct {
	// Params are the parameters to evaluate against what was served.
	Params recommend.Overrides `json:"params"`

	// Lookback is a Go duration such as "720h"; empty uses the configured window.
	Lookback string `json:"lookback" validate:"omitempty,max=32"`

	// AsOf is the end of the window; nil means now.
	AsOf *time.Time `json:"as_of"`
}

// lookback parses the Lookback field.
func (b *ReplayBody) lookback() (time.Duration, error) {
	if b.Lookback == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.Lookback)
	if err != nil {
		return 0, fmt.Errorf("lookback: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("lookback must be positive")
	}
	return d, nil
}

// userIDParam parses the {userID} path parameter.
func userIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// decodeBody decodes and validates a JSON body into v. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decodeBody(rw *ResponseWriter, w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			rw.BadRequest("request body is required")
		default:
			rw.BadRequest("invalid JSON body")
		}
		return false
	}

	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}
