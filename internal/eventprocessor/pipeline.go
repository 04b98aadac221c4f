// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package eventprocessor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// Pipeline owns the in-process pub/sub and the router that drains it into
// the exposure log.
type Pipeline struct {
	pubsub   *gochannel.GoChannel
	sink     recommend.ExposureLog
	config   Config
	logger   zerolog.Logger
	wmLogger watermill.LoggerAdapter

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a pipeline writing to sink.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(sink recommend.ExposureLog, cfg Config, logger zerolog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	logger = logger.With().Str("component", "pipeline").Logger()
	wmLogger := newZerologAdapter(logger)

	return &Pipeline{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.Buffer,
		}, wmLogger),
		sink:     sink,
		config:   cfg,
		logger:   logger,
		wmLogger: wmLogger,
		ready:    make(chan struct{}),
	}
}

// Publisher returns the ExposureLog the engine should write to.
func (p *Pipeline) Publisher() *Publisher {
	return &Publisher{pub: p.pubsub, log: p.sink}
}

// Ready is closed once the first router is subscribed. Records published
// before then are dropped.
func (p *Pipeline) Ready() <-chan struct{} {
	return p.ready
}

// Serve implements suture.Service.
func (p *Pipeline) Serve(ctx context.Context) error {
	router, err := p.newRouter()
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-router.Running():
			p.readyOnce.Do(func() { close(p.ready) })
			p.logger.Debug().Msg("exposure pipeline running")
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("exposure pipeline: %w", err)
	}
	return ctx.Err()
}

// Close closes the pub/sub. Publishing afterwards fails.
func (p *Pipeline) Close() error {
	return p.pubsub.Close()
}

// String returns the service name for suture logging.
func (p *Pipeline) String() string {
	return "exposure-pipeline"
}

// newRouter builds a router with middleware ordered outermost first:
// poison queue, then retry, then panic recovery.
func (p *Pipeline) newRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: p.config.CloseTimeout}, p.wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	poison, err := middleware.PoisonQueue(p.pubsub, TopicPoisoned)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}
	router.AddMiddleware(
		poison,
		middleware.Retry{
			MaxRetries:      p.config.RetryMaxRetries,
			InitialInterval: p.config.RetryInitialInterval,
			MaxInterval:     p.config.RetryMaxInterval,
			Multiplier:      p.config.RetryMultiplier,
			Logger:          p.wmLogger,
		}.Middleware,
		middleware.Recoverer,
	)

	router.AddConsumerHandler("store-exposures", TopicExposures, p.pubsub, p.storeExposures)
	router.AddConsumerHandler("store-feedback", TopicFeedback, p.pubsub, p.storeFeedback)
	router.AddConsumerHandler("poisoned", TopicPoisoned, p.pubsub, p.handlePoisoned)
	return router, nil
}

// writeContext outlives the subscriber so an in-flight write can finish
// while the router drains on shutdown.
func (p *Pipeline) writeContext(msg *message.Message) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(msg.Context()), p.config.WriteTimeout)
}

func (p *Pipeline) storeExposures(msg *message.Message) error {
	var exposures []recommend.SuggestionExposure
	if err := decodeBatch(msg, &exposures); err != nil {
		return err
	}
	ctx, cancel := p.writeContext(msg)
	defer cancel()

	if err := p.sink.RecordExposures(ctx, exposures); err != nil {
		return fmt.Errorf("store exposures: %w", err)
	}
	metrics.RecordPipelineMessage(TopicExposures, "stored")
	metrics.PipelineRecords.WithLabelValues(TopicExposures).Add(float64(len(exposures)))
	return nil
}

func (p *Pipeline) storeFeedback(msg *message.Message) error {
	var feedback []recommend.Feedback
	if err := decodeBatch(msg, &feedback); err != nil {
		return err
	}
	ctx, cancel := p.writeContext(msg)
	defer cancel()

	if err := p.sink.RecordFeedback(ctx, feedback); err != nil {
		return fmt.Errorf("store feedback: %w", err)
	}
	metrics.RecordPipelineMessage(TopicFeedback, "stored")
	metrics.PipelineRecords.WithLabelValues(TopicFeedback).Add(float64(len(feedback)))
	return nil
}

// handlePoisoned records a batch that exhausted its retries. The records are
// dropped.
func (p *Pipeline) handlePoisoned(msg *message.Message) error {
	topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
	metrics.RecordPipelineMessage(topic, "poisoned")
	p.logger.Error().
		Str("topic", topic).
		Str("handler", msg.Metadata.Get(middleware.PoisonedHandlerKey)).
		Str("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey)).
		Str("records", msg.Metadata.Get(metadataRecords)).
		Str("user_id", msg.Metadata.Get(metadataUserID)).
		Msg("exposure log write failed after retries, records dropped")
	return nil
}
