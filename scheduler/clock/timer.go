// Package clock provides the calendar timer scheduler: mappings fire on
// wall-clock conditions instead of external provider state.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/scheduler"
)

// Action types evaluated by the timer.
const (
	TypeEveryDayAtHour       = "timer.every_day_at_x_hour"
	TypeEveryHourAtIntervals = "timer.every_hour_at_intervals"
)

// Source identifies timer-created events.
const Source = "timer"

var dayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// MappingSource is the slice of the mapping store the timer needs.
type MappingSource interface {
	ListActiveByAction(ctx context.Context, actionType string) ([]*mapping.Mapping, error)
}

// Timer evaluates time-based mappings once per minute. The condition is
// recomputed fresh from wall-clock time each tick, so no diffing baseline is
// kept: a minute only matches once per hour, which is what prevents double
// firing.
type Timer struct {
	mappings MappingSource
	sink     scheduler.EventSink
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a calendar timer.
func New(mappings MappingSource, sink scheduler.EventSink, logger *slog.Logger) *Timer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		mappings: mappings,
		sink:     sink,
		logger:   logger.With("scheduler", "timer"),
	}
}

// Start begins the per-minute evaluation loop.
func (t *Timer) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.loop(ctx)
	}()
}

// Stop cancels the evaluation loop.
func (t *Timer) Stop(_ context.Context) {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Timer) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Poll(ctx, now)
		}
	}
}

// Poll evaluates all timer mappings against the given moment. One event is
// emitted per matching user and action type, even when several of a user's
// mappings match the same moment.
func (t *Timer) Poll(ctx context.Context, now time.Time) {
	t.checkHourly(ctx, now)
	t.checkDaily(ctx, now)
}

func (t *Timer) checkHourly(ctx context.Context, now time.Time) {
	mappings, err := t.mappings.ListActiveByAction(ctx, TypeEveryHourAtIntervals)
	if err != nil {
		t.logger.ErrorContext(ctx, "list timer mappings failed",
			"action_type", TypeEveryHourAtIntervals, "error", err)
		return
	}

	fired := make(map[string]bool)
	for _, m := range mappings {
		local := localTime(now, m.Action.Config)
		minute, ok := configMinute(m.Action.Config)
		if !ok || minute != local.Minute() {
			continue
		}
		if m.UserID == "" || fired[m.UserID] {
			continue
		}
		fired[m.UserID] = true

		t.emit(ctx, TypeEveryHourAtIntervals, m.UserID, map[string]any{
			"timestamp": now.UTC().Format(time.RFC3339),
			"minute":    local.Minute(),
		})
	}
}

func (t *Timer) checkDaily(ctx context.Context, now time.Time) {
	mappings, err := t.mappings.ListActiveByAction(ctx, TypeEveryDayAtHour)
	if err != nil {
		t.logger.ErrorContext(ctx, "list timer mappings failed",
			"action_type", TypeEveryDayAtHour, "error", err)
		return
	}

	fired := make(map[string]bool)
	for _, m := range mappings {
		local := localTime(now, m.Action.Config)
		if !dailyMatches(m.Action.Config, local) {
			continue
		}
		if m.UserID == "" || fired[m.UserID] {
			continue
		}
		fired[m.UserID] = true

		t.emit(ctx, TypeEveryDayAtHour, m.UserID, map[string]any{
			"timestamp": now.UTC().Format(time.RFC3339),
			"hour":      local.Hour(),
			"day":       dayNames[local.Weekday()],
		})
	}
}

func (t *Timer) emit(ctx context.Context, actionType, userID string, payload map[string]any) {
	if err := t.sink.Emit(ctx, actionType, userID, Source, payload); err != nil {
		t.logger.ErrorContext(ctx, "emit timer event failed",
			"action_type", actionType, "user_id", userID, "error", err)
		return
	}
	t.logger.DebugContext(ctx, "timer fired", "action_type", actionType, "user_id", userID)
}

// dailyMatches reports whether an every_day_at_x_hour config matches the
// local moment: configured hour, configured minute (0 when absent), and
// weekday membership.
func dailyMatches(config map[string]any, local time.Time) bool {
	hour, ok := configInt(config, "hour")
	if !ok || hour != local.Hour() {
		return false
	}
	minute, ok := configMinute(config)
	if !ok {
		minute = 0
	}
	if minute != local.Minute() {
		return false
	}

	days, ok := config["days"].([]any)
	if !ok {
		return false
	}
	today := dayNames[local.Weekday()]
	for _, d := range days {
		if s, ok := d.(string); ok && strings.EqualFold(s, today) {
			return true
		}
	}
	return false
}

// localTime shifts now by the mapping's pinned utc_offset, an arbitrary
// numeric hour offset rather than a named zone.
func localTime(now time.Time, config map[string]any) time.Time {
	offset, ok := configInt(config, "utc_offset")
	if !ok {
		return now.UTC()
	}
	return now.UTC().Add(time.Duration(offset) * time.Hour)
}

// configMinute reads the interval minute, accepting both string and numeric
// forms.
func configMinute(config map[string]any) (int, bool) {
	if v, ok := configInt(config, "minute"); ok {
		return v, true
	}
	if s, ok := config["minute"].(string); ok {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
			return v, true
		}
	}
	return 0, false
}

func configInt(config map[string]any, key string) (int, bool) {
	switch v := config[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
