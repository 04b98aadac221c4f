// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"

	"github.com/tomtom215/marquee/internal/recommend/engine"
)

// Replay estimates how a parameter change would have performed on the
// user's logged exposures. It never writes.
//
// Method: POST
// Path: /api/v1/users/{userID}/replay
//
// Request body:
//
//	{"params": {"mmr_lambda": 0.5}, "lookback": "720h"}
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, err := userIDParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	var body ReplayBody
	if !h.decodeBody(rw, w, r, &body) {
		return
	}
	lookback, err := body.lookback()
	if err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	req := engine.ReplayRequest{
		UserID:   userID,
		Params:   body.Params,
		Lookback: lookback,
	}
	if body.AsOf != nil {
		req.AsOf = *body.AsOf
	}

	report, err := h.engine.Replay(r.Context(), req)
	if err != nil {
		writeEngineError(rw, r, err)
		return
	}
	rw.Success(report)
}
