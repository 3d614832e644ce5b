package reaction

import (
	"context"

	"github.com/xraph/cascade/id"
)

// Store defines the persistence contract for reaction records.
type Store interface {
	// CreateReaction persists a pending record before the first attempt.
	CreateReaction(ctx context.Context, rec *Record) error

	// UpdateReaction persists the concluded attempt series.
	UpdateReaction(ctx context.Context, rec *Record) error

	// GetReaction returns a record by ID.
	GetReaction(ctx context.Context, recID id.ID) (*Record, error)

	// ListReactionsByEvent returns all records for a triggering event.
	ListReactionsByEvent(ctx context.Context, evtID id.ID) ([]*Record, error)

	// ListReactions returns records, optionally filtered.
	ListReactions(ctx context.Context, opts ListOpts) ([]*Record, error)
}
