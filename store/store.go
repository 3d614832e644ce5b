// Package store defines the composite Store interface for all Cascade persistence.
//
// Each subsystem defines its own store interface, and the aggregate Store
// composes them all.
package store

import (
	"context"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/failure"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/reaction"
	"github.com/xraph/cascade/scheduler"
	"github.com/xraph/cascade/stats"
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store
	mapping.Store
	reaction.Store
	failure.Store
	stats.Store
	scheduler.StateStore

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
