package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/mapping"
)

// ScheduledReaction describes one pending deferred reaction.
type ScheduledReaction struct {
	ID           id.ID     `json:"id"`
	EventID      id.ID     `json:"event_id"`
	MappingID    id.ID     `json:"mapping_id"`
	ReactionType string    `json:"reaction_type"`
	FireAt       time.Time `json:"fire_at"`
}

// scheduledEntry pairs the public view with its timer. The claimed flag
// arbitrates between a firing timer and a concurrent cancel: exactly one
// side wins, so a cancel racing a fire either prevents it or is a no-op.
type scheduledEntry struct {
	info    ScheduledReaction
	timer   *time.Timer
	claimed atomic.Bool
}

// scheduleReaction registers a one-shot deferred execution of spec. The timer
// is armed and the entry inserted under schedMu, so a firing callback always
// finds its registry entry and a concurrent Stop always sees the entry it must
// sweep. Scheduling during shutdown is a dropped no-op.
func (e *Engine) scheduleReaction(ctx context.Context, evt *event.Event, m *mapping.Mapping, spec mapping.ReactionSpec) {
	entry := &scheduledEntry{
		info: ScheduledReaction{
			ID:           id.NewExecutionID(),
			EventID:      evt.ID,
			MappingID:    m.ID,
			ReactionType: spec.Type,
			FireAt:       time.Now().UTC().Add(spec.Delay),
		},
	}

	e.schedMu.Lock()
	if e.stopping {
		e.schedMu.Unlock()
		e.logger.DebugContext(ctx, "engine stopping, deferred reaction dropped",
			"event_id", evt.ID, "mapping_id", m.ID, "reaction_type", spec.Type)
		return
	}
	e.wg.Add(1)
	entry.timer = time.AfterFunc(spec.Delay, func() {
		if !entry.claimed.CompareAndSwap(false, true) {
			return
		}
		defer e.wg.Done()
		e.removeScheduled(entry.info.ID)

		if err := e.executeReaction(ctx, evt, m, spec); err != nil {
			e.logger.WarnContext(ctx, "deferred reaction failed",
				"execution_id", entry.info.ID, "event_id", evt.ID,
				"mapping_id", m.ID, "reaction_type", spec.Type, "error", err)
		}
	})
	e.scheduled[entry.info.ID] = entry
	e.schedMu.Unlock()

	if e.config.Metrics != nil {
		e.config.Metrics.ScheduledReactions.Inc()
	}
	e.logger.DebugContext(ctx, "reaction scheduled",
		"execution_id", entry.info.ID, "event_id", evt.ID,
		"reaction_type", spec.Type, "fire_at", entry.info.FireAt)
}

// ScheduledReactions returns a snapshot of all pending deferred reactions.
func (e *Engine) ScheduledReactions() []ScheduledReaction {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	out := make([]ScheduledReaction, 0, len(e.scheduled))
	for _, entry := range e.scheduled {
		out = append(out, entry.info)
	}
	return out
}

// CancelScheduledReaction cancels a pending deferred reaction. It reports
// whether the cancellation prevented the reaction from firing.
func (e *Engine) CancelScheduledReaction(execID id.ID) bool {
	e.schedMu.Lock()
	entry, ok := e.scheduled[execID]
	e.schedMu.Unlock()
	if !ok {
		return false
	}

	if !entry.claimed.CompareAndSwap(false, true) {
		return false
	}
	entry.timer.Stop()
	e.removeScheduled(execID)
	e.wg.Done()
	return true
}

// cancelAllScheduled cancels every pending deferred reaction. Used on Stop.
func (e *Engine) cancelAllScheduled() {
	e.schedMu.Lock()
	entries := make([]*scheduledEntry, 0, len(e.scheduled))
	for _, entry := range e.scheduled {
		entries = append(entries, entry)
	}
	e.schedMu.Unlock()

	for _, entry := range entries {
		if entry.claimed.CompareAndSwap(false, true) {
			entry.timer.Stop()
			e.removeScheduled(entry.info.ID)
			e.wg.Done()
		}
	}
}

func (e *Engine) removeScheduled(execID id.ID) {
	e.schedMu.Lock()
	if _, ok := e.scheduled[execID]; ok {
		delete(e.scheduled, execID)
		if e.config.Metrics != nil {
			e.config.Metrics.ScheduledReactions.Dec()
		}
	}
	e.schedMu.Unlock()
}
