package failure

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
)

// Service manages the failure record queue: the engine pushes into it,
// operators triage through it.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new failure service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// PushFailed records a terminal reaction failure. Implements engine.FailurePusher.
func (svc *Service) PushFailed(ctx context.Context, evt *event.Event, mappingID id.ID, reactionType string, lastError string, retryCount int) error {
	rec := &Record{
		Entity:       entity.New(),
		ID:           id.NewFailureID(),
		EventID:      evt.ID,
		MappingID:    mappingID,
		ActionType:   evt.ActionType,
		ReactionType: reactionType,
		Payload:      evt.Payload,
		Error:        lastError,
		RetryCount:   retryCount,
		FailedAt:     time.Now().UTC(),
	}

	return svc.store.PushFailure(ctx, rec)
}

// List returns failure records matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Record, error) {
	return svc.store.ListFailures(ctx, opts)
}

// Get returns a failure record by ID.
func (svc *Service) Get(ctx context.Context, flrID id.ID) (*Record, error) {
	return svc.store.GetFailure(ctx, flrID)
}

// Resolve marks a failure record as triaged.
func (svc *Service) Resolve(ctx context.Context, flrID id.ID) error {
	return svc.store.ResolveFailure(ctx, flrID)
}

// Purge removes failure records older than the threshold.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.PurgeFailures(ctx, before)
}

// Count returns the number of unresolved failure records.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountFailures(ctx)
}
