// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// maxResponseBytes bounds decoded response bodies.
const maxResponseBytes = 8 << 20

// ErrRateLimited is returned when the local token bucket cannot admit a
// request before the caller's deadline.
var ErrRateLimited = errors.New("rate limited")

// scoreRequest is the body POSTed to a scoring endpoint.
type scoreRequest struct {
	UserID  int   `json:"user_id"`
	ItemIDs []int `json:"item_ids"`
}

// scoreResponse is the scoring endpoint's reply. JSON object keys are item
// ids rendered as strings.
type scoreResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// HTTPSource scores items by POSTing to a remote endpoint. Calls go through
// a token-bucket limiter and a circuit breaker.
type HTTPSource struct {
	name    string
	url     string
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[map[int]float64]
}

var _ recommend.Source = (*HTTPSource)(nil)

// HTTPSourceOptions configures an HTTPSource.
type HTTPSourceOptions struct {
	Name          string
	URL           string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Breaker       BreakerSettings

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// NewHTTPSource creates a scoring source for one remote endpoint.
//
//nolint:gocritic // hugeParam: options are read once at construction
func NewHTTPSource(opts HTTPSourceOptions) *HTTPSource {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &HTTPSource{
		name:    opts.Name,
		url:     opts.URL,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		cb:      newBreaker[map[int]float64]("source-"+opts.Name, opts.Breaker),
	}
}

// NewHTTPSources builds one HTTPSource per configured endpoint.
func NewHTTPSources(cfgs []config.SourceConfig) []recommend.Source {
	out := make([]recommend.Source, 0, len(cfgs))
	for i := range cfgs {
		c := &cfgs[i]
		out = append(out, NewHTTPSource(HTTPSourceOptions{
			Name:          c.Name,
			URL:           c.URL,
			Timeout:       c.Timeout,
			RatePerSecond: c.RatePerSecond,
			Burst:         c.Burst,
			Breaker: BreakerSettings{
				MaxRequests:      c.BreakerMaxRequests,
				Interval:         c.BreakerInterval,
				Timeout:          c.BreakerTimeout,
				FailureThreshold: c.BreakerFailureThreshold,
			},
		}))
	}
	return out
}

// Name implements recommend.Source.
func (s *HTTPSource) Name() string {
	return s.name
}

// Score implements recommend.Source. Items the endpoint does not return are
// omitted; non-finite scores are dropped.
func (s *HTTPSource) Score(ctx context.Context, userID int, itemIDs []int) (map[int]float64, error) {
	start := time.Now()
	if len(itemIDs) == 0 {
		return map[int]float64{}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		metrics.RecordSourceRequest(s.name, "rate_limited", time.Since(start))
		if ctx.Err() != nil {
			return nil, &recommend.SourceError{Source: s.name, Err: ctx.Err()}
		}
		return nil, &recommend.SourceError{Source: s.name, Err: fmt.Errorf("%w: %w", ErrRateLimited, err)}
	}

	scores, err := s.cb.Execute(func() (map[int]float64, error) {
		return s.post(ctx, userID, itemIDs)
	})
	recordBreakerResult("source-"+s.name, err)
	if err != nil {
		metrics.RecordSourceRequest(s.name, "failure", time.Since(start))
		return nil, &recommend.SourceError{Source: s.name, Err: err}
	}
	metrics.RecordSourceRequest(s.name, "success", time.Since(start))
	return scores, nil
}

func (s *HTTPSource) post(ctx context.Context, userID int, itemIDs []int) (map[int]float64, error) {
	body, err := json.Marshal(scoreRequest{UserID: userID, ItemIDs: itemIDs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make(map[int]float64, len(decoded.Scores))
	for key, score := range decoded.Scores {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		out[id] = score
	}
	return out, nil
}
