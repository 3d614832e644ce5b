package event

import (
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
)

// Status represents the lifecycle state of a trigger event.
type Status string

const (
	// StatusReceived indicates the event is awaiting processing.
	StatusReceived Status = "received"

	// StatusProcessing indicates the event has been claimed by the engine.
	StatusProcessing Status = "processing"

	// StatusCompleted indicates the event was processed, including the
	// zero-matching-mappings case.
	StatusCompleted Status = "completed"

	// StatusFailed indicates processing ended with an unrecoverable error.
	StatusFailed Status = "failed"
)

// Event is one firing instance of a registered action type.
// Events are created by trigger sources (webhooks, schedulers), mutated only
// by the execution engine, and retained for audit and failure analysis.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// ActionType is the dot-separated action type name (e.g. "playback.track_changed").
	ActionType string `json:"action_type"`

	// UserID identifies the owning user. Empty for shared events, which may
	// satisfy many users' mappings from one physical trigger.
	UserID string `json:"user_id,omitempty"`

	// MappingID optionally binds the event to a single mapping (dedicated
	// webhooks). When set, resolution never fans out across users.
	MappingID id.ID `json:"mapping_id,omitempty"`

	// Source identifies the trigger origin (e.g. "webhook", "playback-poll").
	Source string `json:"source"`

	// Payload is the raw structured trigger data.
	Payload map[string]any `json:"payload"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Error holds the failure message when Status is failed.
	Error string `json:"error,omitempty"`

	// ProcessingMs is the total processing duration in milliseconds.
	ProcessingMs int64 `json:"processing_ms,omitempty"`

	// ProcessedAt is when processing concluded.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// IdempotencyKey prevents duplicate event ingestion.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset     int
	Limit      int
	ActionType string
	Status     *Status
	From       *time.Time
	To         *time.Time
}
