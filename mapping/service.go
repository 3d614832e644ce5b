package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
	"github.com/xraph/cascade/registry"
)

// Catalog is the slice of the registry the mapping service needs: definition
// lookup for validation and service lookup for webhook provisioning.
type Catalog interface {
	ActionByType(typ string) (registry.ActionDefinition, bool)
	ReactionByType(typ string) (registry.ReactionDefinition, bool)
	ServiceFor(typ string) (*registry.Service, bool)
}

// Service provides mapping management operations.
type Service struct {
	store     Store
	catalog   Catalog
	validator *registry.Validator
	logger    *slog.Logger
}

// NewService creates a new mapping service.
func NewService(store Store, catalog Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		validator: registry.NewValidator(),
		logger:    logger,
	}
}

// Create validates and persists a new active mapping. Action and reaction
// types must be registered; configs are validated against their declared
// schemas. Webhook provisioning for actions that need it is best-effort:
// a provisioning failure is logged and does not fail creation.
func (svc *Service) Create(ctx context.Context, in Input) (*Mapping, error) {
	if in.UserID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "required"}
	}
	if len(in.Reactions) == 0 {
		return nil, &ValidationError{Field: "reactions", Message: "at least one reaction required"}
	}

	action, ok := svc.catalog.ActionByType(in.Action.Type)
	if !ok {
		return nil, &ValidationError{Field: "action.type", Message: fmt.Sprintf("unknown action type %q", in.Action.Type)}
	}
	if err := svc.validator.Validate(action.ConfigSchema, in.Action.Config); err != nil {
		return nil, &ValidationError{Field: "action.config", Message: err.Error()}
	}

	for i, rx := range in.Reactions {
		def, found := svc.catalog.ReactionByType(rx.Type)
		if !found {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("reactions[%d].type", i),
				Message: fmt.Sprintf("unknown reaction type %q", rx.Type),
			}
		}
		if err := svc.validator.Validate(def.ConfigSchema, rx.Config); err != nil {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("reactions[%d].config", i),
				Message: err.Error(),
			}
		}
	}

	m := &Mapping{
		Entity:    entity.New(),
		ID:        id.NewMappingID(),
		UserID:    in.UserID,
		Name:      in.Name,
		Active:    true,
		Action:    in.Action,
		Reactions: in.Reactions,
	}

	if err := svc.store.CreateMapping(ctx, m); err != nil {
		return nil, err
	}

	svc.ensureWebhook(ctx, m, action)

	return m, nil
}

// Get returns a mapping by ID.
func (svc *Service) Get(ctx context.Context, mapID id.ID) (*Mapping, error) {
	return svc.store.GetMapping(ctx, mapID)
}

// List returns mappings matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Mapping, error) {
	return svc.store.ListMappings(ctx, opts)
}

// SetActive toggles a mapping's active flag. Re-activating a webhook-backed
// mapping re-provisions its external subscription.
func (svc *Service) SetActive(ctx context.Context, mapID id.ID, active bool) error {
	if err := svc.store.SetMappingActive(ctx, mapID, active); err != nil {
		return err
	}

	m, err := svc.store.GetMapping(ctx, mapID)
	if err != nil {
		return err
	}

	action, ok := svc.catalog.ActionByType(m.Action.Type)
	if !ok {
		return nil
	}
	if active {
		svc.ensureWebhook(ctx, m, action)
	} else {
		svc.deleteWebhook(ctx, m)
	}
	return nil
}

// Delete removes a mapping and tears down its external webhook if one exists.
func (svc *Service) Delete(ctx context.Context, mapID id.ID) error {
	m, err := svc.store.GetMapping(ctx, mapID)
	if err != nil {
		return err
	}

	svc.deleteWebhook(ctx, m)

	return svc.store.DeleteMapping(ctx, mapID)
}

func (svc *Service) ensureWebhook(ctx context.Context, m *Mapping, action registry.ActionDefinition) {
	if action.WebhookPattern == "" {
		return
	}
	owner, ok := svc.catalog.ServiceFor(m.Action.Type)
	if !ok || owner.Webhooks == nil {
		return
	}

	if err := owner.Webhooks.EnsureWebhookForMapping(ctx, m.UserID, m.ID.String(), action); err != nil {
		svc.logger.Warn("webhook provisioning failed",
			"mapping_id", m.ID, "action_type", m.Action.Type, "error", err)
	}
}

func (svc *Service) deleteWebhook(ctx context.Context, m *Mapping) {
	action, ok := svc.catalog.ActionByType(m.Action.Type)
	if !ok || action.WebhookPattern == "" {
		return
	}
	owner, ok := svc.catalog.ServiceFor(m.Action.Type)
	if !ok || owner.Webhooks == nil {
		return
	}

	if err := owner.Webhooks.DeleteWebhook(ctx, m.UserID, m.ID.String()); err != nil {
		svc.logger.Warn("webhook teardown failed",
			"mapping_id", m.ID, "action_type", m.Action.Type, "error", err)
	}
}
