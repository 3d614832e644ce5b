package reaction

import (
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
)

// State represents the outcome of one reaction's attempt series.
type State string

const (
	// StatePending indicates the attempt series has not yet concluded.
	StatePending State = "pending"

	// StateSucceeded indicates one attempt succeeded.
	StateSucceeded State = "succeeded"

	// StateFailed indicates the attempt series ended without success.
	StateFailed State = "failed"
)

// Record is the audit trail for one reaction's execution inside one mapping's
// firing. It is created in pending state before the first attempt and updated
// once when the series concludes.
type Record struct {
	entity.Entity

	// ID is the unique TypeID for this record.
	ID id.ID `json:"id"`

	// EventID references the triggering event.
	EventID id.ID `json:"event_id"`

	// MappingID references the mapping whose reaction ran.
	MappingID id.ID `json:"mapping_id"`

	// ReactionType is the dot-separated reaction identifier.
	ReactionType string `json:"reaction_type"`

	// State is the series outcome.
	State State `json:"state"`

	// Output is the executor's output payload on success.
	Output map[string]any `json:"output,omitempty"`

	// Error is the final attempt's error message on failure.
	Error string `json:"error,omitempty"`

	// ExecutionMs is the duration of the attempt series in milliseconds.
	ExecutionMs int64 `json:"execution_ms,omitempty"`

	// ExecutedAt is when the series concluded.
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// NewRecord creates a pending reaction record for one execution.
func NewRecord(eventID, mappingID id.ID, reactionType string) *Record {
	return &Record{
		Entity:       entity.New(),
		ID:           id.NewReactionID(),
		EventID:      eventID,
		MappingID:    mappingID,
		ReactionType: reactionType,
		State:        StatePending,
	}
}

// ListOpts configures filtering and pagination for reaction record listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
