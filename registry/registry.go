// Package registry holds the in-process catalog of integration services and
// their action/reaction definitions. It is the single source of truth for
// valid action types: every trigger ingested and every mapping created is
// validated against it at the boundary.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// SharedEventFilter narrows which mappings of a shared action type match a
// given event instance. The filter receives the event payload and a view of
// the candidate mapping. A filter that returns an error (or panics) excludes
// that mapping only; it is never retried and never surfaces as an engine error.
type SharedEventFilter func(ctx context.Context, payload map[string]any, m FilterMapping) (bool, error)

// FilterMapping is the read-only view of a candidate mapping handed to a
// SharedEventFilter.
type FilterMapping struct {
	ID           string
	UserID       string
	ActionConfig map[string]any
}

// ActionDefinition describes one trigger an integration service exposes.
type ActionDefinition struct {
	// Type is the dot-separated action identifier: "<service>.<action>".
	Type string `json:"type"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Description explains when this action fires.
	Description string `json:"description,omitempty"`

	// ConfigSchema is an optional JSON Schema validated against a mapping's
	// action config at creation time.
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`

	// PayloadSchema is an optional JSON Schema validated against event
	// payloads at ingest time.
	PayloadSchema json.RawMessage `json:"payload_schema,omitempty"`

	// SharedEvents marks this action as satisfying many users' mappings from
	// one physical trigger (e.g. a global timer tick).
	SharedEvents bool `json:"shared_events,omitempty"`

	// SharedEventFilter optionally narrows shared-event resolution.
	SharedEventFilter SharedEventFilter `json:"-"`

	// WebhookPattern, when set, means mappings for this action need an
	// external webhook subscription provisioned on creation.
	WebhookPattern string `json:"webhook_pattern,omitempty"`
}

// ReactionDefinition describes one side effect an integration service exposes.
type ReactionDefinition struct {
	// Type is the dot-separated reaction identifier: "<service>.<reaction>".
	Type string `json:"type"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Description explains what this reaction does.
	Description string `json:"description,omitempty"`

	// ConfigSchema is an optional JSON Schema validated against a mapping's
	// reaction config at creation time.
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`
}

// Credentials are the resolved per-user secrets handed to a reaction executor.
type Credentials map[string]string

// CredentialSource resolves per-user credentials for a service.
type CredentialSource interface {
	Credentials(ctx context.Context, userID string) (Credentials, error)
}

// WebhookProvisioner manages external webhook subscriptions for actions that
// declare a webhook pattern. Both methods are best-effort from the caller's
// perspective: failures are logged, not fatal.
type WebhookProvisioner interface {
	EnsureWebhookForMapping(ctx context.Context, userID, mappingID string, action ActionDefinition) error
	DeleteWebhook(ctx context.Context, userID, mappingID string) error
}

// Service bundles an integration's definitions with its credential and
// webhook collaborators. Credentials and Webhooks are optional.
type Service struct {
	ID          string
	Name        string
	Actions     []ActionDefinition
	Reactions   []ReactionDefinition
	Credentials CredentialSource
	Webhooks    WebhookProvisioner
}

// Registry is the thread-safe service catalog.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
	logger   *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		services: make(map[string]*Service),
		logger:   logger,
	}
}

// Register adds a service to the registry. Service ids must be unique and
// definitions must be well-formed; a malformed service is rejected whole.
func (r *Registry) Register(svc *Service) error {
	if err := validateService(svc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[svc.ID]; ok {
		return fmt.Errorf("registry: service %q already registered", svc.ID)
	}

	r.services[svc.ID] = svc
	r.logger.Debug("registered service", "service", svc.ID, "actions", len(svc.Actions), "reactions", len(svc.Reactions))
	return nil
}

// Unregister removes a service. Removing an unknown id is a logged no-op.
func (r *Registry) Unregister(serviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[serviceID]; !ok {
		r.logger.Warn("unregister of unknown service", "service", serviceID)
		return
	}
	delete(r.services, serviceID)
}

// Service returns a registered service by id.
func (r *Registry) Service(serviceID string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[serviceID]
	return svc, ok
}

// ServiceFor returns the service owning a dotted action or reaction type.
func (r *Registry) ServiceFor(typ string) (*Service, bool) {
	svcID, _, ok := strings.Cut(typ, ".")
	if !ok {
		return nil, false
	}
	return r.Service(svcID)
}

// ActionByType returns the action definition for a dotted type.
func (r *Registry) ActionByType(typ string) (ActionDefinition, bool) {
	svc, ok := r.ServiceFor(typ)
	if !ok {
		return ActionDefinition{}, false
	}
	for _, a := range svc.Actions {
		if a.Type == typ {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// ReactionByType returns the reaction definition for a dotted type.
func (r *Registry) ReactionByType(typ string) (ReactionDefinition, bool) {
	svc, ok := r.ServiceFor(typ)
	if !ok {
		return ReactionDefinition{}, false
	}
	for _, rd := range svc.Reactions {
		if rd.Type == typ {
			return rd, true
		}
	}
	return ReactionDefinition{}, false
}

// Actions returns every registered action definition.
func (r *Registry) Actions() []ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ActionDefinition
	for _, svc := range r.services {
		out = append(out, svc.Actions...)
	}
	return out
}

// Reactions returns every registered reaction definition.
func (r *Registry) Reactions() []ReactionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ReactionDefinition
	for _, svc := range r.services {
		out = append(out, svc.Reactions...)
	}
	return out
}

// CredentialsFor resolves per-user credentials for the service owning the
// given reaction type. A service without a credential source, or a resolution
// error, yields empty credentials: executors decide whether they can run
// without them.
func (r *Registry) CredentialsFor(ctx context.Context, typ, userID string) Credentials {
	svc, ok := r.ServiceFor(typ)
	if !ok || svc.Credentials == nil {
		return Credentials{}
	}

	creds, err := svc.Credentials.Credentials(ctx, userID)
	if err != nil {
		r.logger.Warn("credential resolution failed", "service", svc.ID, "user_id", userID, "error", err)
		return Credentials{}
	}
	return creds
}

func validateService(svc *Service) error {
	if svc == nil || svc.ID == "" {
		return fmt.Errorf("registry: service must have an id")
	}
	if svc.Name == "" {
		return fmt.Errorf("registry: service %q must have a name", svc.ID)
	}

	seen := make(map[string]struct{}, len(svc.Actions))
	for _, a := range svc.Actions {
		if !strings.HasPrefix(a.Type, svc.ID+".") {
			return fmt.Errorf("registry: action %q does not belong to service %q", a.Type, svc.ID)
		}
		if _, dup := seen[a.Type]; dup {
			return fmt.Errorf("registry: duplicate action %q in service %q", a.Type, svc.ID)
		}
		seen[a.Type] = struct{}{}
	}

	seen = make(map[string]struct{}, len(svc.Reactions))
	for _, rd := range svc.Reactions {
		if !strings.HasPrefix(rd.Type, svc.ID+".") {
			return fmt.Errorf("registry: reaction %q does not belong to service %q", rd.Type, svc.ID)
		}
		if _, dup := seen[rd.Type]; dup {
			return fmt.Errorf("registry: duplicate reaction %q in service %q", rd.Type, svc.ID)
		}
		seen[rd.Type] = struct{}{}
	}

	return nil
}
