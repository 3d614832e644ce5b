package failure

import (
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
)

// Record is the persisted evidence of a reaction whose retry budget was
// exhausted, or that failed without a retryable cause (e.g. an ownership
// violation). Records exist for operator triage; the engine never reads
// them back.
type Record struct {
	entity.Entity

	// ID is the unique TypeID for this failure record.
	ID id.ID `json:"id"`

	// EventID references the triggering event.
	EventID id.ID `json:"event_id"`

	// MappingID references the mapping whose reaction failed.
	MappingID id.ID `json:"mapping_id"`

	// ActionType is the triggering event's action type.
	ActionType string `json:"action_type"`

	// ReactionType is the failed reaction's type.
	ReactionType string `json:"reaction_type"`

	// Payload is the event's pre-interpolation payload.
	Payload map[string]any `json:"payload,omitempty"`

	// Error is the final attempt's error message.
	Error string `json:"error"`

	// RetryCount is the number of attempts made. Zero for ownership failures.
	RetryCount int `json:"retry_count"`

	// Resolved marks the record as triaged by an operator.
	Resolved bool `json:"resolved"`

	// ResolvedAt is when the record was marked resolved.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// FailedAt is when the reaction permanently failed.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for failure listing.
type ListOpts struct {
	Offset     int
	Limit      int
	ActionType string
	Resolved   *bool
	From       *time.Time
	To         *time.Time
}
