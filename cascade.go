package cascade

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/cascade/engine"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/executor"
	"github.com/xraph/cascade/failure"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/registry"
	"github.com/xraph/cascade/scheduler"
	"github.com/xraph/cascade/scheduler/clock"
	"github.com/xraph/cascade/stats"
	"github.com/xraph/cascade/store"
)

// SourceAPI marks events ingested through the Cascade API surface.
const SourceAPI = "api"

// wireServices initializes the internal services after options have been applied.
func (c *Cascade) wireServices() {
	c.registry = registry.New(c.logger)
	c.validator = registry.NewValidator()
	c.executors = executor.NewRegistry()

	c.mappingSvc = mapping.NewService(c.store, c.registry, c.logger)
	c.failureSvc = failure.NewService(c.store, c.logger)
	c.resolver = mapping.NewResolver(c.store, c.registry, c.logger)

	c.engine = engine.New(c.store, c.registry, c.resolver, c.executors, c.failureSvc, engine.Config{
		PollInterval:  c.config.PollInterval,
		BatchSize:     c.config.BatchSize,
		MaxAttempts:   c.config.MaxAttempts,
		RetrySchedule: c.config.RetrySchedule,
		Metrics:       c.metrics,
		Tracer:        c.tracer,
	}, c.logger)

	c.clock = clock.New(c.store, c, c.logger)

	for _, p := range c.pollers {
		c.schedulers = append(c.schedulers, scheduler.New(p, c.store, scheduler.Config{
			Interval:     c.config.SchedulerInterval,
			UserCacheTTL: c.config.UserCacheTTL,
			Concurrency:  c.config.SchedulerConcurrency,
		}, c.logger))
	}
}

// Start begins the execution engine, the calendar timer, and every registered
// scheduler.
func (c *Cascade) Start(ctx context.Context) {
	c.engine.Start(ctx)
	c.clock.Start(ctx)
	for _, s := range c.schedulers {
		s.Start(ctx)
	}
}

// Stop gracefully shuts down the schedulers, the calendar timer, and the
// execution engine, waiting for in-flight work to complete.
func (c *Cascade) Stop(ctx context.Context) {
	for _, s := range c.schedulers {
		s.Stop(ctx)
	}
	c.clock.Stop(ctx)
	c.engine.Stop(ctx)
}

// RegisterService adds an integration service's definitions to the registry
// and binds its reaction executor. The executor may be nil for services that
// only expose actions.
func (c *Cascade) RegisterService(svc *registry.Service, exec executor.Executor) error {
	if svc != nil {
		if _, taken := c.registry.Service(svc.ID); taken {
			return fmt.Errorf("%w: %s", ErrServiceRegistered, svc.ID)
		}
	}
	if err := c.registry.Register(svc); err != nil {
		return err
	}
	if exec != nil {
		c.executors.Register(svc.ID, exec)
	}
	return nil
}

// Ingest validates and persists a trigger event in the received state. The
// execution engine picks it up asynchronously.
//
// The critical path:
//  1. Look up the action type in the registry (reject unknown types).
//  2. Validate the payload against the action's JSON Schema (if declared).
//  3. Assign ID, status, and entity timestamps.
//  4. Persist the event. Idempotency key conflicts return a no-op success.
func (c *Cascade) Ingest(ctx context.Context, evt *event.Event) error {
	action, ok := c.registry.ActionByType(evt.ActionType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionTypeUnknown, evt.ActionType)
	}

	if len(action.PayloadSchema) > 0 {
		if validateErr := c.validator.Validate(action.PayloadSchema, anyPayload(evt.Payload)); validateErr != nil {
			return fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
		}
	}

	evt.Entity = entity.New()
	evt.ID = id.NewEventID()
	evt.Status = event.StatusReceived
	if evt.Source == "" {
		evt.Source = SourceAPI
	}

	if createErr := c.store.CreateEvent(ctx, evt); createErr != nil {
		if errors.Is(createErr, ErrDuplicateIdempotencyKey) {
			return nil // idempotent: already ingested
		}
		return fmt.Errorf("cascade: persist event: %w", createErr)
	}

	if c.metrics != nil {
		c.metrics.PendingEvents.Inc()
	}
	c.logger.DebugContext(ctx, "event ingested",
		"event_id", evt.ID,
		"action_type", evt.ActionType,
		"source", evt.Source,
	)
	return nil
}

// Emit implements scheduler.EventSink: it turns a poller or timer detection
// into an ingested trigger event.
func (c *Cascade) Emit(ctx context.Context, actionType, userID, source string, payload map[string]any) error {
	evt := &event.Event{
		ActionType: actionType,
		UserID:     userID,
		Source:     source,
		Payload:    payload,
	}
	if err := c.Ingest(ctx, evt); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordSchedulerEvent(actionType)
	}
	return nil
}

// anyPayload widens a nil map so schema validation treats an absent payload
// as an empty object.
func anyPayload(payload map[string]any) any {
	if payload == nil {
		return map[string]any{}
	}
	return payload
}

// Mappings returns the mapping management service.
func (c *Cascade) Mappings() *mapping.Service {
	return c.mappingSvc
}

// Failures returns the failure record service.
func (c *Cascade) Failures() *failure.Service {
	return c.failureSvc
}

// Registry returns the integration service registry.
func (c *Cascade) Registry() *registry.Registry {
	return c.registry
}

// Engine returns the execution engine, exposing the scheduled-reaction
// registry for inspection and cancellation.
func (c *Cascade) Engine() *engine.Engine {
	return c.engine
}

// Stats returns the aggregate execution counters for a UTC day
// (stats.DayFormat).
func (c *Cascade) Stats(ctx context.Context, day string) ([]*stats.Bucket, error) {
	return c.store.ListStats(ctx, day)
}

// Store returns the underlying store.
func (c *Cascade) Store() store.Store {
	return c.store
}
