package cascade

import (
	"errors"

	"github.com/xraph/cascade/engine"
	"github.com/xraph/cascade/mapping"
)

// Sentinel errors returned by Cascade operations.
var (
	// ErrNoStore is returned when a Cascade is created without a store.
	ErrNoStore = errors.New("cascade: store is required")

	// ErrActionTypeUnknown is returned when an action type is not registered.
	ErrActionTypeUnknown = errors.New("cascade: unknown action type")

	// ErrReactionTypeUnknown is returned when a reaction type is not registered.
	ErrReactionTypeUnknown = errors.New("cascade: unknown reaction type")

	// ErrServiceRegistered is returned when registering a service whose id is taken.
	ErrServiceRegistered = errors.New("cascade: service already registered")

	// ErrMappingOwnerMissing is returned when a reaction is executed for a
	// mapping without an owner. This is never retried.
	ErrMappingOwnerMissing = engine.ErrOwnerMissing

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("cascade: payload validation failed")

	// ErrConfigValidationFailed is returned when a mapping's action or reaction
	// config fails JSON Schema validation.
	ErrConfigValidationFailed = errors.New("cascade: config validation failed")

	// ErrDuplicateIdempotencyKey is returned when an event with the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("cascade: duplicate idempotency key")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("cascade: event not found")

	// ErrMappingNotFound is returned when a mapping cannot be found. The
	// resolver relies on this to tell an absent mapping apart from a store
	// outage, so the sentinel lives in the mapping package.
	ErrMappingNotFound = mapping.ErrNotFound

	// ErrReactionNotFound is returned when a reaction record cannot be found.
	ErrReactionNotFound = errors.New("cascade: reaction record not found")

	// ErrFailureNotFound is returned when a failure record cannot be found.
	ErrFailureNotFound = errors.New("cascade: failure record not found")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("cascade: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("cascade: migration failed")
)
