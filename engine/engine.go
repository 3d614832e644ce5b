package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/executor"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/interp"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/observability"
	"github.com/xraph/cascade/reaction"
	"github.com/xraph/cascade/registry"
	"github.com/xraph/cascade/stats"
)

// Store is the interface the engine needs for event processing.
type Store interface {
	ListPendingEvents(ctx context.Context, limit int) ([]*event.Event, error)
	UpdateEvent(ctx context.Context, evt *event.Event) error
	CreateReaction(ctx context.Context, rec *reaction.Record) error
	UpdateReaction(ctx context.Context, rec *reaction.Record) error
	IncrStats(ctx context.Context, key stats.Key, success bool, processingMs int64) error
}

// Catalog is the slice of the service registry the engine needs.
type Catalog interface {
	ActionByType(typ string) (registry.ActionDefinition, bool)
	CredentialsFor(ctx context.Context, typ, userID string) registry.Credentials
}

// Resolver resolves a trigger event to the mappings it activates.
type Resolver interface {
	Resolve(ctx context.Context, evt *event.Event) ([]*mapping.Mapping, error)
}

// ErrOwnerMissing is returned when a reaction is executed for a mapping
// without an owner. Zero executor attempts are made and it is never retried.
var ErrOwnerMissing = errors.New("engine: mapping has no owner")

// FailurePusher records terminally failed reactions for triage.
type FailurePusher interface {
	PushFailed(ctx context.Context, evt *event.Event, mappingID id.ID, reactionType string, lastError string, retryCount int) error
}

// Config holds engine configuration.
type Config struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RetrySchedule []time.Duration
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
}

// Engine is the execution loop that picks up received events, resolves the
// mappings they activate, and runs each mapping's reaction list.
type Engine struct {
	store    Store
	catalog  Catalog
	resolver Resolver
	executor executor.Executor
	failures FailurePusher
	retrier  *Retrier
	config   Config
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	schedMu   sync.Mutex
	scheduled map[id.ID]*scheduledEntry
	stopping  bool
}

// New creates an execution engine.
func New(store Store, catalog Catalog, resolver Resolver, exec executor.Executor, failures FailurePusher, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		catalog:   catalog,
		resolver:  resolver,
		executor:  exec,
		failures:  failures,
		retrier:   NewRetrier(cfg.MaxAttempts, cfg.RetrySchedule),
		config:    cfg,
		logger:    logger,
		scheduled: make(map[id.ID]*scheduledEntry),
	}
}

// Start begins the intake loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.intakeLoop(ctx)
	}()
}

// Stop cancels the intake loop, cancels pending deferred reactions, and waits
// for in-flight work to complete. The stopping flag is raised before the sweep
// under the same lock scheduleReaction takes, so an in-flight processEvent
// either scheduled before the sweep (and is cancelled by it) or observes the
// flag and drops the deferred reaction.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.schedMu.Lock()
	e.stopping = true
	e.schedMu.Unlock()
	e.cancelAllScheduled()
	e.wg.Wait()
}

// intakeLoop periodically fetches the oldest received events and processes
// them one at a time. The loop is a single goroutine, so ticks never overlap
// and no two workers ever claim the same event.
func (e *Engine) intakeLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.ListPendingEvents(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "intake fetch failed", "error", err)
				continue
			}

			for _, evt := range batch {
				select {
				case <-ctx.Done():
					return
				default:
				}
				e.processEvent(ctx, evt)
			}
		}
	}
}

// processEvent drives one event through its state machine. It never lets a
// panic or error escape: any unhandled failure marks the event failed and the
// loop moves on.
func (e *Engine) processEvent(ctx context.Context, evt *event.Event) {
	start := time.Now()

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartEventSpan(ctx, evt.ID.String(), evt.ActionType, evt.UserID)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "event processing panicked",
				"event_id", evt.ID, "action_type", evt.ActionType, "panic", r)
			e.finishEvent(ctx, evt, event.StatusFailed, fmt.Sprint(r), start, span)
		}
	}()

	evt.Status = event.StatusProcessing
	if err := e.store.UpdateEvent(ctx, evt); err != nil {
		e.logger.ErrorContext(ctx, "mark processing failed", "event_id", evt.ID, "error", err)
		if span != nil {
			span.End()
		}
		return
	}

	if _, ok := e.catalog.ActionByType(evt.ActionType); !ok {
		e.finishEvent(ctx, evt, event.StatusFailed, "Unknown action type: "+evt.ActionType, start, span)
		return
	}

	mappings, err := e.resolver.Resolve(ctx, evt)
	if err != nil {
		e.finishEvent(ctx, evt, event.StatusFailed, err.Error(), start, span)
		return
	}

	if len(mappings) == 0 {
		e.logger.DebugContext(ctx, "no matching mappings",
			"event_id", evt.ID, "action_type", evt.ActionType)
		e.finishEvent(ctx, evt, event.StatusCompleted, "", start, span)
		return
	}

	for _, m := range mappings {
		if err := e.executeMappingReactions(ctx, evt, m); err != nil {
			e.logger.WarnContext(ctx, "mapping reactions failed",
				"event_id", evt.ID, "mapping_id", m.ID, "error", err)
		}
	}

	e.finishEvent(ctx, evt, event.StatusCompleted, "", start, span)
}

// finishEvent persists the event's terminal status and bookkeeping fields.
func (e *Engine) finishEvent(ctx context.Context, evt *event.Event, status event.Status, errMsg string, start time.Time, span trace.Span) {
	now := time.Now().UTC()
	evt.Status = status
	evt.Error = errMsg
	evt.ProcessingMs = time.Since(start).Milliseconds()
	evt.ProcessedAt = &now

	if err := e.store.UpdateEvent(ctx, evt); err != nil {
		e.logger.ErrorContext(ctx, "persist event status failed",
			"event_id", evt.ID, "status", status, "error", err)
	}

	if e.config.Metrics != nil {
		e.config.Metrics.RecordEvent(string(status), float64(evt.ProcessingMs)/1000.0)
	}
	if span != nil {
		e.config.Tracer.EndEventSpan(span, string(status), evt.ProcessingMs, errMsg)
	}
	e.logger.DebugContext(ctx, "event processed",
		"event_id", evt.ID, "status", status, "processing_ms", evt.ProcessingMs)
}

// executeMappingReactions runs one mapping's reaction list in order. Reactions
// without a delay run inline; delayed reactions are registered as cancellable
// one-shot tasks. One reaction's failure never stops the rest of the list.
func (e *Engine) executeMappingReactions(ctx context.Context, evt *event.Event, m *mapping.Mapping) error {
	var lastErr error
	for _, spec := range m.Reactions {
		if spec.Delay > 0 {
			e.scheduleReaction(ctx, evt, m, spec)
			continue
		}
		if err := e.executeReaction(ctx, evt, m, spec); err != nil {
			e.logger.WarnContext(ctx, "reaction failed",
				"event_id", evt.ID, "mapping_id", m.ID,
				"reaction_type", spec.Type, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// executeReaction runs the full attempt series for one reaction spec.
func (e *Engine) executeReaction(ctx context.Context, evt *event.Event, m *mapping.Mapping, spec mapping.ReactionSpec) error {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartReactionSpan(ctx, evt.ID.String(), m.ID.String(), spec.Type)
	}

	if m.UserID == "" {
		err := fmt.Errorf("mapping %s: %w", m.ID, ErrOwnerMissing)
		if pushErr := e.failures.PushFailed(ctx, evt, m.ID, spec.Type, err.Error(), 0); pushErr != nil {
			e.logger.ErrorContext(ctx, "push failure record failed",
				"event_id", evt.ID, "mapping_id", m.ID, "error", pushErr)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordReaction(spec.Type, string(reaction.StateFailed))
			e.config.Metrics.FailuresTotal.Inc()
		}
		if span != nil {
			e.config.Tracer.EndReactionSpan(span, string(reaction.StateFailed), 0, err.Error())
		}
		return err
	}

	rec := reaction.NewRecord(evt.ID, m.ID, spec.Type)
	if err := e.store.CreateReaction(ctx, rec); err != nil {
		if span != nil {
			e.config.Tracer.EndReactionSpan(span, "", 0, err.Error())
		}
		return fmt.Errorf("create reaction record: %w", err)
	}

	interpolated := interp.Interpolate(spec.Config, evt.Payload)
	creds := e.catalog.CredentialsFor(ctx, spec.Type, m.UserID)

	start := time.Now()
	var lastErr string
	attempts := 0

	for {
		attempts++
		res, err := e.executor.ExecuteReaction(ctx, spec.Type, interpolated, creds)

		decision := e.retrier.Decide(res, err, attempts)
		if decision == Succeeded {
			e.concludeReaction(ctx, rec, reaction.StateSucceeded, res.Output, "", start)
			e.recordStats(ctx, evt, spec.Type, true, start)
			if e.config.Metrics != nil {
				e.config.Metrics.RecordReaction(spec.Type, string(reaction.StateSucceeded))
			}
			if span != nil {
				e.config.Tracer.EndReactionSpan(span, string(reaction.StateSucceeded), attempts, "")
			}
			return nil
		}

		lastErr = attemptError(res, err)
		if decision == Exhausted {
			break
		}

		if e.config.Metrics != nil {
			e.config.Metrics.RetriesTotal.Inc()
		}
		e.logger.DebugContext(ctx, "reaction attempt failed, retrying",
			"event_id", evt.ID, "reaction_type", spec.Type,
			"attempt", attempts, "error", lastErr)
		if !sleepCtx(ctx, e.retrier.Delay(attempts)) {
			lastErr = ctx.Err().Error()
			break
		}
	}

	e.concludeReaction(ctx, rec, reaction.StateFailed, nil, lastErr, start)
	e.recordStats(ctx, evt, spec.Type, false, start)
	if pushErr := e.failures.PushFailed(ctx, evt, m.ID, spec.Type, lastErr, attempts); pushErr != nil {
		e.logger.ErrorContext(ctx, "push failure record failed",
			"event_id", evt.ID, "mapping_id", m.ID, "error", pushErr)
	}
	if e.config.Metrics != nil {
		e.config.Metrics.RecordReaction(spec.Type, string(reaction.StateFailed))
		e.config.Metrics.FailuresTotal.Inc()
	}
	if span != nil {
		e.config.Tracer.EndReactionSpan(span, string(reaction.StateFailed), attempts, lastErr)
	}
	return fmt.Errorf("reaction %s failed after %d attempts: %s", spec.Type, attempts, lastErr)
}

// concludeReaction persists a reaction record's terminal state.
func (e *Engine) concludeReaction(ctx context.Context, rec *reaction.Record, state reaction.State, output map[string]any, errMsg string, start time.Time) {
	now := time.Now().UTC()
	rec.State = state
	rec.Output = output
	rec.Error = errMsg
	rec.ExecutionMs = time.Since(start).Milliseconds()
	rec.ExecutedAt = &now

	if err := e.store.UpdateReaction(ctx, rec); err != nil {
		e.logger.ErrorContext(ctx, "persist reaction record failed",
			"reaction_id", rec.ID, "state", state, "error", err)
	}
}

func (e *Engine) recordStats(ctx context.Context, evt *event.Event, reactionType string, success bool, start time.Time) {
	key := stats.KeyFor(time.Now().UTC(), evt.ActionType, reactionType)
	if err := e.store.IncrStats(ctx, key, success, time.Since(start).Milliseconds()); err != nil {
		e.logger.WarnContext(ctx, "record stats failed", "key", key, "error", err)
	}
}

// attemptError normalizes a failed attempt into one message. A returned error
// wins over a logical failure's error field.
func attemptError(res executor.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	if res.Error != "" {
		return res.Error
	}
	return "reaction reported failure"
}

// sleepCtx waits for d unless ctx is done first. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
