// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

// EventKind identifies a structured event raised by a pipeline stage.
type EventKind string

// Event kinds.
const (
	EventSourceUnavailable  EventKind = "source_unavailable"
	EventMetadataMissing    EventKind = "metadata_missing"
	EventNoCandidates       EventKind = "no_candidates"
	EventInvalidState       EventKind = "invalid_state"
	EventCandidateDropped   EventKind = "candidate_dropped"
	EventCandidateFiltered  EventKind = "candidate_filtered"
	EventBoostCapped        EventKind = "boost_capped"
	EventExplorationUpdated EventKind = "exploration_updated"
	EventExplorationPenalty EventKind = "exploration_penalty"
	EventTransitionsLearned EventKind = "transitions_learned"
	EventExposureLogFailed  EventKind = "exposure_log_failed"
	EventFeedbackIgnored    EventKind = "feedback_ignored"
)

// Event is a structured record returned by a stage for the caller to log or
// count. Stages never perform I/O themselves.
type Event struct {
	Kind    EventKind          `json:"kind"`
	Source  string             `json:"source,omitempty"`
	ItemID  int                `json:"item_id,omitempty"`
	Reason  *Reason            `json:"reason,omitempty"`
	Message string             `json:"message,omitempty"`
	Values  map[string]float64 `json:"values,omitempty"`
}

// Warn reports whether the event describes an absorbed failure.
func (e Event) Warn() bool {
	switch e.Kind {
	case EventSourceUnavailable, EventInvalidState, EventExposureLogFailed:
		return true
	default:
		return false
	}
}

// Events accumulates events across stages.
type Events []Event

// Add appends an event.
func (es *Events) Add(e Event) {
	*es = append(*es, e)
}

// Count returns how many events of the kind were recorded.
func (es Events) Count(kind EventKind) int {
	n := 0
	for _, e := range es {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
