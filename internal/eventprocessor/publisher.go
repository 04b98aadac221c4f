// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// Publisher is a recommend.ExposureLog whose writes go through the pipeline
// and whose reads go straight to the underlying log.
type Publisher struct {
	pub message.Publisher
	log recommend.ExposureLog
}

var _ recommend.ExposureLog = (*Publisher)(nil)

// RecordExposures publishes the exposures for asynchronous storage.
func (p *Publisher) RecordExposures(ctx context.Context, exposures []recommend.SuggestionExposure) error {
	if len(exposures) == 0 {
		return nil
	}
	return p.publish(ctx, TopicExposures, exposures, len(exposures), exposures[0].UserID)
}

// RecordFeedback publishes the feedback for asynchronous storage.
func (p *Publisher) RecordFeedback(ctx context.Context, feedback []recommend.Feedback) error {
	if len(feedback) == 0 {
		return nil
	}
	return p.publish(ctx, TopicFeedback, feedback, len(feedback), feedback[0].UserID)
}

// Exposures reads from the underlying log.
func (p *Publisher) Exposures(ctx context.Context, userID int, since time.Time) ([]recommend.SuggestionExposure, error) {
	return p.log.Exposures(ctx, userID, since)
}

// Feedback reads from the underlying log.
func (p *Publisher) Feedback(ctx context.Context, userID int, since time.Time) ([]recommend.Feedback, error) {
	return p.log.Feedback(ctx, userID, since)
}

func (p *Publisher) publish(ctx context.Context, topic string, records any, count, userID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := newBatchMessage(records, count, userID)
	if err != nil {
		metrics.RecordPipelineMessage(topic, "publish_error")
		return err
	}
	if err := p.pub.Publish(topic, msg); err != nil {
		metrics.RecordPipelineMessage(topic, "publish_error")
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.RecordPipelineMessage(topic, "published")
	return nil
}
