// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package eventprocessor

import (
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
)

// Pipeline topics.
const (
	TopicExposures = "marquee.exposures"
	TopicFeedback  = "marquee.feedback"
	TopicPoisoned  = "marquee.poisoned"
)

// Message metadata keys.
const (
	metadataRecords = "records"
	metadataUserID  = "user_id"
)

// newBatchMessage encodes one batch of records. A batch never mixes users
// in practice, but userID is only a label for logs.
func newBatchMessage(records any, count, userID int) (*message.Message, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataRecords, strconv.Itoa(count))
	msg.Metadata.Set(metadataUserID, strconv.Itoa(userID))
	return msg, nil
}

// decodeBatch decodes a batch payload into out.
func decodeBatch(msg *message.Message, out any) error {
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return fmt.Errorf("decode batch %s: %w", msg.UUID, err)
	}
	return nil
}
