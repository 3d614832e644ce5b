package mapping

import (
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
)

// ActionSpec is a mapping's binding to one trigger action.
type ActionSpec struct {
	// Type is the dot-separated action identifier.
	Type string `json:"type"`

	// Config is the action's static configuration (e.g. timer hour, filter value).
	Config map[string]any `json:"config,omitempty"`
}

// ReactionSpec is one configured side effect inside a mapping.
type ReactionSpec struct {
	// Type is the dot-separated reaction identifier.
	Type string `json:"type"`

	// Config is the static reaction configuration. String values may contain
	// {{action.payload.*}} tokens interpolated at execution time.
	Config map[string]any `json:"config,omitempty"`

	// Delay defers execution after the triggering event is processed.
	// Zero means execute inline.
	Delay time.Duration `json:"delay,omitempty"`
}

// Mapping is a user's saved binding of one action to an ordered list of
// reactions. Reactions execute in list order; ordering across mappings is
// not significant.
type Mapping struct {
	entity.Entity

	// ID is the unique TypeID for this mapping.
	ID id.ID `json:"id"`

	// UserID identifies the owning user. An active mapping always has an
	// owner; executing reactions for an owner-less mapping is a hard failure.
	UserID string `json:"user_id"`

	// Name is a human-readable label.
	Name string `json:"name,omitempty"`

	// Active indicates whether this mapping participates in resolution.
	Active bool `json:"active"`

	// Action is the trigger binding.
	Action ActionSpec `json:"action"`

	// Reactions is the ordered list of side effects.
	Reactions []ReactionSpec `json:"reactions"`
}

// ListOpts configures filtering and pagination for mapping listing.
type ListOpts struct {
	Offset     int
	Limit      int
	UserID     string
	ActionType string
	Active     *bool
}
