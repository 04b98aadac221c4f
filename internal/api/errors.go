// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/engine"
)

// errClientClosed is the non-standard status nginx uses when the client
// goes away before the response.
const errClientClosed = 499

// writeEngineError maps an engine error to a status code. Internal causes
// are logged and not returned to the client.
func writeEngineError(rw *ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, recommend.ErrInvalidRequest):
		rw.BadRequest(clientMessage(err))
	case errors.Is(err, engine.ErrNoExposureLog):
		rw.ServiceUnavailable("exposure log is not configured")
	case errors.Is(err, recommend.ErrStoreUnavailable):
		logging.Ctx(r.Context()).Warn().Err(err).Msg("history store unavailable")
		rw.ServiceUnavailable("history store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		rw.Error(http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		rw.Error(errClientClosed, ErrCodeBadRequest, "request cancelled")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		rw.InternalError("internal error")
	}
}

// clientMessage strips the sentinel prefix from an invalid-request error.
func clientMessage(err error) string {
	msg := err.Error()
	prefix := recommend.ErrInvalidRequest.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
