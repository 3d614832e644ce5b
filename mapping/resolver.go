package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/registry"
)

// Definitions is the slice of the registry the resolver needs.
type Definitions interface {
	ActionByType(typ string) (registry.ActionDefinition, bool)
}

// Resolver returns the set of mappings a trigger event should activate.
type Resolver struct {
	store  Store
	defs   Definitions
	logger *slog.Logger
}

// NewResolver creates a resolver over the given store and registry.
func NewResolver(store Store, defs Definitions, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		defs:   defs,
		logger: logger,
	}
}

// Resolve returns the mappings evt should activate.
//
// Resolution paths, in order:
//  1. The event is bound to one mapping (dedicated webhooks): look up exactly
//     that mapping by id + owner + active. Missing, foreign, or inactive
//     mappings yield an empty result, never cross-user fan-out. Store
//     failures propagate.
//  2. The action type declares shared events: all users' active mappings for
//     the type, narrowed by the action's shared-event filter when declared.
//     A filter that errors or panics excludes its mapping only.
//  3. Ordinary per-user action: the event owner's active mappings for the type.
//
// Result ordering across mappings carries no meaning.
func (r *Resolver) Resolve(ctx context.Context, evt *event.Event) ([]*Mapping, error) {
	if !evt.MappingID.IsNil() {
		m, err := r.store.GetOwnedActive(ctx, evt.MappingID, evt.UserID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil // not found/not owned/inactive resolves to nothing
		}
		if err != nil {
			return nil, fmt.Errorf("resolve: bound mapping: %w", err)
		}
		return []*Mapping{m}, nil
	}

	action, ok := r.defs.ActionByType(evt.ActionType)
	if !ok {
		return nil, fmt.Errorf("resolve: unknown action type %q", evt.ActionType)
	}

	if action.SharedEvents {
		candidates, err := r.store.ListActiveByAction(ctx, evt.ActionType)
		if err != nil {
			return nil, fmt.Errorf("resolve: list shared mappings: %w", err)
		}
		if action.SharedEventFilter == nil {
			return candidates, nil
		}

		matched := make([]*Mapping, 0, len(candidates))
		for _, m := range candidates {
			if r.filterMatches(ctx, action.SharedEventFilter, evt, m) {
				matched = append(matched, m)
			}
		}
		return matched, nil
	}

	mappings, err := r.store.ListActiveByOwnerAndAction(ctx, evt.UserID, evt.ActionType)
	if err != nil {
		return nil, fmt.Errorf("resolve: list user mappings: %w", err)
	}
	return mappings, nil
}

// filterMatches evaluates a shared-event filter for one candidate mapping.
// Errors and panics exclude the mapping; they are logged, never propagated.
func (r *Resolver) filterMatches(ctx context.Context, filter registry.SharedEventFilter, evt *event.Event, m *Mapping) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("shared-event filter panicked",
				"action_type", evt.ActionType, "mapping_id", m.ID, "panic", rec)
			matched = false
		}
	}()

	ok, err := filter(ctx, evt.Payload, registry.FilterMapping{
		ID:           m.ID.String(),
		UserID:       m.UserID,
		ActionConfig: m.Action.Config,
	})
	if err != nil {
		r.logger.Warn("shared-event filter failed",
			"action_type", evt.ActionType, "mapping_id", m.ID, "error", err)
		return false
	}
	return ok
}
