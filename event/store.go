package event

import (
	"context"

	"github.com/xraph/cascade/id"
)

// Store defines the persistence contract for trigger events.
type Store interface {
	// CreateEvent persists an event. Must be durable before returning.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// ListPendingEvents returns up to limit of the oldest events still in
	// status received, FIFO by creation time. This is the intake query;
	// events in processing are never returned.
	ListPendingEvents(ctx context.Context, limit int) ([]*Event, error)

	// UpdateEvent persists a status transition and its bookkeeping fields.
	UpdateEvent(ctx context.Context, evt *Event) error

	// ListEvents returns events, optionally filtered by type, status, or time range.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// ListEventsByUser returns events owned by a specific user.
	ListEventsByUser(ctx context.Context, userID string, opts ListOpts) ([]*Event, error)
}
