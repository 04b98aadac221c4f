// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/validation"
)

// metadataRequest is the body POSTed to the metadata endpoint.
type metadataRequest struct {
	ItemIDs []int `json:"item_ids"`
}

// metadataResponse maps item ids (as strings) to metadata records.
type metadataResponse struct {
	Items map[string]*recommend.ItemMetadata `json:"items"`
}

// HTTPMetadataResolver resolves item metadata from a remote endpoint and
// validates every record. Invalid records are dropped so the engine reports
// them as missing rather than scoring on partial data.
type HTTPMetadataResolver struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[map[int]*recommend.ItemMetadata]
}

var _ recommend.MetadataResolver = (*HTTPMetadataResolver)(nil)

// NewHTTPMetadataResolver creates a resolver. client may be nil.
func NewHTTPMetadataResolver(url string, timeout time.Duration, client *http.Client) *HTTPMetadataResolver {
	if client == nil {
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPMetadataResolver{
		url:    url,
		client: client,
		cb: newBreaker[map[int]*recommend.ItemMetadata]("metadata", BreakerSettings{
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		}),
	}
}

// Resolve implements recommend.MetadataResolver.
func (r *HTTPMetadataResolver) Resolve(ctx context.Context, itemIDs []int) (map[int]*recommend.ItemMetadata, error) {
	if len(itemIDs) == 0 {
		return map[int]*recommend.ItemMetadata{}, nil
	}
	out, err := r.cb.Execute(func() (map[int]*recommend.ItemMetadata, error) {
		return r.fetch(ctx, itemIDs)
	})
	recordBreakerResult("metadata", err)
	if err != nil {
		return nil, fmt.Errorf("resolve metadata: %w", err)
	}
	return out, nil
}

func (r *HTTPMetadataResolver) fetch(ctx context.Context, itemIDs []int) (map[int]*recommend.ItemMetadata, error) {
	body, err := json.Marshal(metadataRequest{ItemIDs: itemIDs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var decoded metadataResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return r.accept(decoded.Items), nil
}

// accept keeps records that parse and validate.
func (r *HTTPMetadataResolver) accept(items map[string]*recommend.ItemMetadata) map[int]*recommend.ItemMetadata {
	out := make(map[int]*recommend.ItemMetadata, len(items))
	rejected := 0
	for key, m := range items {
		id, err := strconv.Atoi(key)
		if err != nil || m == nil {
			rejected++
			continue
		}
		if verr := validation.ValidateStruct(m); verr != nil {
			logging.Debug().Int("item_id", id).Str("error", verr.Error()).Msg("metadata record rejected")
			rejected++
			continue
		}
		out[id] = m
	}
	if rejected > 0 {
		logging.Debug().Int("rejected", rejected).Int("accepted", len(out)).Msg("metadata records failed validation")
	}
	return out
}

// StaticMetadata resolves from an in-memory map.
type StaticMetadata map[int]*recommend.ItemMetadata

var _ recommend.MetadataResolver = StaticMetadata(nil)

// Resolve implements recommend.MetadataResolver.
func (s StaticMetadata) Resolve(ctx context.Context, itemIDs []int) (map[int]*recommend.ItemMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[int]*recommend.ItemMetadata, len(itemIDs))
	for _, id := range itemIDs {
		if m, ok := s[id]; ok && m != nil {
			out[id] = m
		}
	}
	return out, nil
}
