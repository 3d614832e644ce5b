package failure

import (
	"context"
	"time"

	"github.com/xraph/cascade/id"
)

// Store defines the persistence contract for failure records.
type Store interface {
	// PushFailure persists a terminal failure record.
	PushFailure(ctx context.Context, rec *Record) error

	// ListFailures returns failure records, optionally filtered.
	ListFailures(ctx context.Context, opts ListOpts) ([]*Record, error)

	// GetFailure returns a failure record by ID.
	GetFailure(ctx context.Context, flrID id.ID) (*Record, error)

	// ResolveFailure marks a record as triaged.
	ResolveFailure(ctx context.Context, flrID id.ID) error

	// PurgeFailures deletes failure records older than a threshold.
	PurgeFailures(ctx context.Context, before time.Time) (int64, error)

	// CountFailures returns the number of unresolved failure records.
	CountFailures(ctx context.Context) (int64, error)
}
