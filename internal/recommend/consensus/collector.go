// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/recommend"
)

// Collection is the outcome of fanning a request out to all sources.
type Collection struct {
	// Scores maps item id to source name to raw score.
	Scores map[int]map[string]float64

	// Responded lists sources that answered, sorted.
	Responded []string

	// Failed lists sources that errored or timed out, sorted.
	Failed []string

	// Events holds one SourceUnavailable event per failed source.
	Events recommend.Events
}

// Collector fetches raw scores from every source concurrently.
type Collector struct {
	sources []recommend.Source
	timeout time.Duration
	limit   int
}

// NewCollector creates a collector over the given sources.
func NewCollector(sources []recommend.Source, cfg recommend.SourcesConfig) *Collector {
	limit := cfg.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	return &Collector{sources: sources, timeout: cfg.Timeout, limit: limit}
}

// Sources returns the registered source names.
func (c *Collector) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// Collect queries every source with its own timeout and waits for all of
// them, but never past a source's deadline. A source that errors or times
// out is recorded as failed and contributes nothing. Only cancellation of ctx itself is returned as an error.
func (c *Collector) Collect(ctx context.Context, userID int, itemIDs []int) (*Collection, error) {
	out := &Collection{Scores: make(map[int]map[string]float64, len(itemIDs))}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.sources) == 0 || len(itemIDs) == 0 {
		return out, nil
	}

	requested := make(map[int]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		requested[id] = struct{}{}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)

	for _, src := range c.sources {
		g.Go(func() error {
			scores, err := c.fetch(gctx, src, userID, itemIDs)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				out.Failed = append(out.Failed, src.Name())
				out.Events.Add(recommend.Event{
					Kind:    recommend.EventSourceUnavailable,
					Source:  src.Name(),
					Message: err.Error(),
				})
				return nil
			}

			out.Responded = append(out.Responded, src.Name())
			for id, score := range scores {
				if _, ok := requested[id]; !ok {
					continue
				}
				if math.IsNaN(score) || math.IsInf(score, 0) {
					continue
				}
				if out.Scores[id] == nil {
					out.Scores[id] = make(map[string]float64, len(c.sources))
				}
				out.Scores[id][src.Name()] = score
			}
			return nil
		})
	}

	// Workers never return errors; the group only bounds concurrency.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Strings(out.Responded)
	sort.Strings(out.Failed)
	sort.SliceStable(out.Events, func(i, j int) bool { return out.Events[i].Source < out.Events[j].Source })
	return out, nil
}

type fetchResult struct {
	scores map[int]float64
	err    error
}

// fetch returns when the source answers or its deadline passes, whichever
// comes first. A source that ignores ctx keeps running in the background
// and its late answer is discarded.
func (c *Collector) fetch(ctx context.Context, src recommend.Source, userID int, itemIDs []int) (map[int]float64, error) {
	sctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan fetchResult, 1)
	go func() {
		scores, err := src.Score(sctx, userID, itemIDs)
		done <- fetchResult{scores: scores, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
		if res.err == nil && sctx.Err() != nil {
			res.err = sctx.Err()
		}
	case <-sctx.Done():
		res.err = sctx.Err()
	}
	if res.err != nil {
		var se *recommend.SourceError
		if errors.As(res.err, &se) {
			return nil, res.err
		}
		return nil, &recommend.SourceError{Source: src.Name(), Err: fmt.Errorf("score: %w", res.err)}
	}
	return res.scores, nil
}
