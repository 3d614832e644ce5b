package mapping

import (
	"context"
	"errors"

	"github.com/xraph/cascade/id"
)

// ErrNotFound is returned when a mapping cannot be found. Re-exported from
// the root package as ErrMappingNotFound.
var ErrNotFound = errors.New("cascade: mapping not found")

// Store defines the persistence contract for mappings.
type Store interface {
	// CreateMapping persists a new mapping.
	CreateMapping(ctx context.Context, m *Mapping) error

	// GetMapping returns a mapping by ID.
	GetMapping(ctx context.Context, mapID id.ID) (*Mapping, error)

	// UpdateMapping modifies an existing mapping.
	UpdateMapping(ctx context.Context, m *Mapping) error

	// DeleteMapping removes a mapping.
	DeleteMapping(ctx context.Context, mapID id.ID) error

	// ListMappings returns mappings, optionally filtered.
	ListMappings(ctx context.Context, opts ListOpts) ([]*Mapping, error)

	// GetOwnedActive returns the mapping with the given id only if it is
	// owned by userID and active. Used for the explicit-mapping resolution
	// path. Returns ErrMappingNotFound otherwise.
	GetOwnedActive(ctx context.Context, mapID id.ID, userID string) (*Mapping, error)

	// ListActiveByAction returns all active mappings across all users whose
	// action type matches. This is the shared-event fan-out query.
	ListActiveByAction(ctx context.Context, actionType string) ([]*Mapping, error)

	// ListActiveByOwnerAndAction returns active mappings owned by userID
	// whose action type matches. This is the ordinary resolution query.
	ListActiveByOwnerAndAction(ctx context.Context, userID, actionType string) ([]*Mapping, error)

	// ListActiveUserIDs returns the distinct owners of active mappings whose
	// action type starts with the given dotted prefix (e.g. "playback.").
	// Schedulers use it to discover which users to poll.
	ListActiveUserIDs(ctx context.Context, actionPrefix string) ([]string, error)

	// SetMappingActive toggles a mapping's active flag.
	SetMappingActive(ctx context.Context, mapID id.ID, active bool) error
}
