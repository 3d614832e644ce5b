package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/stats"
	"github.com/xraph/cascade/store/memory"
)

func newEvent(createdAt time.Time) *event.Event {
	evt := &event.Event{
		Entity:     entity.New(),
		ID:         id.NewEventID(),
		ActionType: "test.trigger",
		UserID:     "user-1",
		Status:     event.StatusReceived,
		Source:     "api",
	}
	evt.CreatedAt = createdAt
	return evt
}

func newMapping(userID, actionType string, active bool) *mapping.Mapping {
	return &mapping.Mapping{
		Entity: entity.New(),
		ID:     id.NewMappingID(),
		UserID: userID,
		Active: active,
		Action: mapping.ActionSpec{Type: actionType},
	}
}

func TestCreateEventIdempotencyKeyConflict(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	first := newEvent(time.Now().UTC())
	first.IdempotencyKey = "once"
	if err := s.CreateEvent(ctx, first); err != nil {
		t.Fatal(err)
	}

	dup := newEvent(time.Now().UTC())
	dup.IdempotencyKey = "once"
	if err := s.CreateEvent(ctx, dup); !errors.Is(err, cascade.ErrDuplicateIdempotencyKey) {
		t.Fatalf("err = %v, want ErrDuplicateIdempotencyKey", err)
	}

	// Events without a key never conflict.
	if err := s.CreateEvent(ctx, newEvent(time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateEvent(ctx, newEvent(time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
}

func TestListPendingEventsFIFO(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	base := time.Now().UTC()

	newer := newEvent(base.Add(time.Second))
	older := newEvent(base)
	for _, evt := range []*event.Event{newer, older} {
		if err := s.CreateEvent(ctx, evt); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListPendingEvents(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != older.ID {
		t.Fatalf("expected oldest event first, got %v", got)
	}
}

func TestListPendingEventsLocksUntilUpdate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	evt := newEvent(time.Now().UTC())
	if err := s.CreateEvent(ctx, evt); err != nil {
		t.Fatal(err)
	}

	first, err := s.ListPendingEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first claim = %d events", len(first))
	}

	// A concurrent intake must not see the claimed event.
	second, err := s.ListPendingEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("second claim = %d events, want 0", len(second))
	}

	// Updating to a terminal status releases the lock without re-queueing.
	first[0].Status = event.StatusCompleted
	if err := s.UpdateEvent(ctx, first[0]); err != nil {
		t.Fatal(err)
	}
	third, err := s.ListPendingEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 0 {
		t.Fatalf("completed event returned to intake: %v", third)
	}
}

func TestUpdateEventUnknown(t *testing.T) {
	s := memory.New()
	evt := newEvent(time.Now().UTC())
	if err := s.UpdateEvent(context.Background(), evt); !errors.Is(err, cascade.ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestListEventsFiltersAndPaginates(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := range 5 {
		evt := newEvent(base.Add(time.Duration(i) * time.Second))
		if i == 0 {
			evt.ActionType = "other.trigger"
		}
		if err := s.CreateEvent(ctx, evt); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListEvents(ctx, event.ListOpts{ActionType: "test.trigger"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("action filter = %d events, want 4", len(got))
	}
	// Newest first.
	if got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Fatal("events not sorted newest first")
	}

	page, err := s.ListEvents(ctx, event.ListOpts{Offset: 3, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("page = %d events, want 2", len(page))
	}

	empty, err := s.ListEvents(ctx, event.ListOpts{Offset: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("out-of-range offset = %d events", len(empty))
	}
}

func TestGetOwnedActive(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	active := newMapping("user-1", "test.trigger", true)
	inactive := newMapping("user-1", "test.trigger", false)
	for _, m := range []*mapping.Mapping{active, inactive} {
		if err := s.CreateMapping(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.GetOwnedActive(ctx, active.ID, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOwnedActive(ctx, active.ID, "user-2"); !errors.Is(err, cascade.ErrMappingNotFound) {
		t.Fatalf("foreign owner err = %v", err)
	}
	if _, err := s.GetOwnedActive(ctx, inactive.ID, "user-1"); !errors.Is(err, cascade.ErrMappingNotFound) {
		t.Fatalf("inactive err = %v", err)
	}
}

func TestListActiveUserIDs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	seed := []*mapping.Mapping{
		newMapping("user-b", "playback.track_changed", true),
		newMapping("user-a", "playback.liked", true),
		newMapping("user-a", "playback.track_changed", true), // duplicate owner
		newMapping("user-c", "playback.track_changed", false),
		newMapping("user-d", "timer.every_hour", true),
	}
	for _, m := range seed {
		if err := s.CreateMapping(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListActiveUserIDs(ctx, "playback.")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"user-a", "user-b"}
	if len(got) != len(want) {
		t.Fatalf("ListActiveUserIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListActiveUserIDs = %v, want %v", got, want)
		}
	}
}

func TestStatsAccumulate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	key := stats.Key{Day: "2026-09-01", ActionType: "test.trigger", ReactionType: "test.react"}

	if err := s.IncrStats(ctx, key, true, 12); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrStats(ctx, key, false, 8); err != nil {
		t.Fatal(err)
	}

	buckets, err := s.ListStats(ctx, "2026-09-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 1 {
		t.Fatalf("buckets = %d, want 1", len(buckets))
	}
	b := buckets[0]
	if b.Count != 2 || b.SuccessCount != 1 || b.ErrorCount != 1 || b.TotalProcessingMs != 20 {
		t.Fatalf("bucket = %+v", b)
	}

	other, err := s.ListStats(ctx, "2026-09-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("foreign day buckets = %d", len(other))
	}
}

func TestSchedulerStateRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	v, err := s.GetState(ctx, "profile-picture", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Fatalf("unset state = %q", v)
	}

	if err := s.SetState(ctx, "profile-picture", "user-1", "etag-1"); err != nil {
		t.Fatal(err)
	}
	v, err = s.GetState(ctx, "profile-picture", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if v != "etag-1" {
		t.Fatalf("state = %q, want etag-1", v)
	}

	// Kinds are isolated.
	v, err = s.GetState(ctx, "playback", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Fatalf("foreign kind state = %q", v)
	}
}
