package domain

import (
	"encoding/json"
	"time"
)

// EventID is a unique identifier for a history event.
type EventID string

// String returns the string representation of the EventID.
func (id EventID) String() string {
	return string(id)
}

// EventOutcome is the terminal state of one orchestration.
type EventOutcome string

const (
	OutcomeCacheHit EventOutcome = "cache_hit"
	OutcomeUploaded EventOutcome = "uploaded"
	OutcomeFailed   EventOutcome = "failed"
	OutcomeRejected EventOutcome = "rejected"
)

// Event records one download-and-upload outcome for the admin history.
type Event struct {
	ID         EventID         `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Outcome    EventOutcome    `json:"outcome"`
	Tier       QualityTier     `json:"tier"`
	URL        string          `json:"url"`
	Bucket     string          `json:"bucket,omitempty"`
	Key        string          `json:"key,omitempty"`
	Subject    string          `json:"subject,omitempty"`
	Message    string          `json:"message"`
	DurationMS int64           `json:"duration_ms"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// EventMetadata is a helper type for building event metadata.
type EventMetadata map[string]interface{}

// ToJSON converts metadata to JSON for storage.
func (m EventMetadata) ToJSON() json.RawMessage {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

// EventFilter specifies criteria for querying events.
type EventFilter struct {
	Outcome    *EventOutcome `json:"outcome,omitempty"`
	Since      *time.Time    `json:"since,omitempty"`
	SearchText string        `json:"search_text,omitempty"`
}

// EventEmitter is the interface for components that record history events.
type EventEmitter interface {
	Emit(event Event)
}

// EventQuery represents a query for events with pagination.
type EventQuery struct {
	Filter EventFilter `json:"filter"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// EventQueryResult contains the result of an event query.
type EventQueryResult struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}
