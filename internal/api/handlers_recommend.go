// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/recommend"
)

// LearnResult is returned by the ratings and feedback endpoints.
type LearnResult struct {
	UserID      int                         `json:"user_id"`
	Accepted    int                         `json:"accepted"`
	Exploration *recommend.ExplorationState `json:"exploration,omitempty"`
}

// Suggestions serves a ranked list for one user.
//
// Method: POST
// Path: /api/v1/users/{userID}/suggestions
//
// The body carries the candidate pool. An empty pool is not an error: the
// response holds zero suggestions and metadata.empty_reason explains why.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, err := userIDParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	var body SuggestionsRequest
	if !h.decodeBody(rw, w, r, &body) {
		return
	}

	requestID := body.RequestID
	if requestID == "" {
		requestID = logging.RequestIDFromContext(r.Context())
	}
	ctx := logging.ContextWithUserID(r.Context(), userID)

	resp, err := h.engine.Recommend(ctx, recommend.Request{
		UserID:     userID,
		Candidates: body.Candidates,
		K:          body.K,
		Overrides:  body.Overrides,
		RequestID:  requestID,
	})
	if err != nil {
		writeEngineError(rw, r, err)
		return
	}
	rw.Success(resp)
}

// Ratings records watches with optional ratings and learns from them.
// Re-posting a film with its original watched_at changes the rating only;
// a different watched_at records a rewatch.
//
// Method: POST
// Path: /api/v1/users/{userID}/ratings
func (h *Handler) Ratings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, err := userIDParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	var body RatingsRequest
	if !h.decodeBody(rw, w, r, &body) {
		return
	}

	h.learn(rw, r, recommend.LearnRequest{UserID: userID, Ratings: body.Ratings}, len(body.Ratings))
}

// Feedback records explicit positive or negative reactions to suggestions.
//
// Method: POST
// Path: /api/v1/users/{userID}/feedback
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, err := userIDParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	var body FeedbackRequest
	if !h.decodeBody(rw, w, r, &body) {
		return
	}
	for i := range body.Feedback {
		body.Feedback[i].UserID = userID
	}

	h.learn(rw, r, recommend.LearnRequest{UserID: userID, Feedback: body.Feedback}, len(body.Feedback))
}

// learn runs a learning batch and reports the resulting exploration state.
// The state lookup is best effort: the batch is already persisted.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (h *Handler) learn(rw *ResponseWriter, r *http.Request, req recommend.LearnRequest, accepted int) {
	ctx := logging.ContextWithUserID(r.Context(), req.UserID)
	if err := h.engine.Learn(ctx, req); err != nil {
		writeEngineError(rw, r, err)
		return
	}

	result := LearnResult{UserID: req.UserID, Accepted: accepted}
	if view, err := h.engine.Exploration(ctx, req.UserID); err == nil {
		result.Exploration = &view.State
	} else if !isContextErr(err) {
		logging.Ctx(ctx).Warn().Err(err).Int("user_id", req.UserID).Msg("exploration state unavailable after learn")
	}
	rw.Success(result)
}

// Exploration returns the user's exploration state and the transitions that
// currently boost candidates.
//
// Method: GET
// Path: /api/v1/users/{userID}/exploration
func (h *Handler) Exploration(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, err := userIDParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	view, err := h.engine.Exploration(r.Context(), userID)
	if err != nil {
		writeEngineError(rw, r, err)
		return
	}
	rw.Success(view)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
