// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package api provides the HTTP REST API for Marquee.

Key Components:

  - Router: chi route configuration and middleware stack
  - Handler: request handlers for serving, learning, inspection and replay
  - ResponseWriter: the standard JSON envelope for every response
  - Request validation: go-playground/validator tags on request bodies

Endpoints:

	POST /api/v1/users/{userID}/suggestions   serve a ranked list from a candidate pool
	POST /api/v1/users/{userID}/ratings       record watches and learn from them
	POST /api/v1/users/{userID}/feedback      record explicit feedback and learn from it
	GET  /api/v1/users/{userID}/exploration   exploration state and eligible transitions
	POST /api/v1/users/{userID}/replay        counterfactual replay over the exposure log
	GET  /health, /health/live, /health/ready
	GET  /metrics                             prometheus exposition

Response Format:

Every JSON response uses the same envelope:

	{
	  "success": true,
	  "data": { ... },
	  "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 12}
	}

Errors set success to false and carry a machine-readable code:

	{
	  "success": false,
	  "error": {"code": "VALIDATION_FAILED", "message": "k must be at most 100"}
	}

Error Mapping:

  - recommend.ErrInvalidRequest and validation failures: 400
  - unknown routes: 404
  - rate limit exceeded: 429
  - engine.ErrNoExposureLog and recommend.ErrStoreUnavailable: 503
  - context deadline exceeded: 504
  - anything else: 500, with the cause logged and not returned

Rate Limiting:

The API routes are limited per client IP with go-chi/httprate. Health
endpoints use a separate, more permissive limit so monitoring never
competes with traffic.

Thread Safety:

Handler is stateless apart from its collaborators, which are safe for
concurrent use.
*/
package api
