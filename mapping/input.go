package mapping

import "fmt"

// Input is the creation payload for mappings.
type Input struct {
	// UserID identifies the owning user.
	UserID string `json:"user_id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Action is the trigger binding.
	Action ActionSpec `json:"action"`

	// Reactions is the ordered list of side effects.
	Reactions []ReactionSpec `json:"reactions"`
}

// ValidationError describes an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mapping: invalid %s: %s", e.Field, e.Message)
}
