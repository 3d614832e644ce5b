package cascade_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	cascade "github.com/xraph/cascade"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/executor"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/registry"
	"github.com/xraph/cascade/store/memory"
)

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func ctx() context.Context { return context.Background() }

type countingExecutor struct {
	calls atomic.Int32
}

func (e *countingExecutor) ExecuteReaction(_ context.Context, _ string, _ map[string]any, _ registry.Credentials) (executor.Result, error) {
	e.calls.Add(1)
	return executor.Result{Success: true}, nil
}

func setup(t *testing.T, opts ...cascade.Option) (*cascade.Cascade, *memory.Store, *countingExecutor) {
	t.Helper()
	s := memory.New()
	exec := &countingExecutor{}

	c, err := cascade.New(append([]cascade.Option{cascade.WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}

	svc := &registry.Service{
		ID:   "demo",
		Name: "Demo",
		Actions: []registry.ActionDefinition{
			{Type: "demo.ping", Name: "Ping received"},
			{
				Type: "demo.strict",
				Name: "Strict payload",
				PayloadSchema: mustJSON(map[string]any{
					"type":     "object",
					"required": []string{"message"},
				}),
			},
		},
		Reactions: []registry.ReactionDefinition{
			{Type: "demo.echo", Name: "Echo back"},
		},
	}
	if err := c.RegisterService(svc, exec); err != nil {
		t.Fatal(err)
	}
	return c, s, exec
}

func createMapping(t *testing.T, c *cascade.Cascade, userID, actionType string) *mapping.Mapping {
	t.Helper()
	m, err := c.Mappings().Create(ctx(), mapping.Input{
		UserID: userID,
		Name:   "test mapping",
		Action: mapping.ActionSpec{Type: actionType},
		Reactions: []mapping.ReactionSpec{
			{Type: "demo.echo", Config: map[string]any{"text": "{{action.payload.message}}"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestIngestPersistsReceivedEvent(t *testing.T) {
	c, s, _ := setup(t)

	evt := &event.Event{
		ActionType: "demo.ping",
		UserID:     "user-1",
		Payload:    map[string]any{"message": "hello"},
	}
	if err := c.Ingest(ctx(), evt); err != nil {
		t.Fatal(err)
	}
	if evt.ID.String() == "" {
		t.Fatal("expected event ID to be assigned")
	}

	stored, err := s.GetEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != event.StatusReceived {
		t.Fatalf("status = %s, want received", stored.Status)
	}
	if stored.Source != cascade.SourceAPI {
		t.Fatalf("source = %q, want %q", stored.Source, cascade.SourceAPI)
	}
}

func TestIngestUnknownActionType(t *testing.T) {
	c, _, _ := setup(t)

	err := c.Ingest(ctx(), &event.Event{ActionType: "does.not.exist"})
	if !errors.Is(err, cascade.ErrActionTypeUnknown) {
		t.Fatalf("expected ErrActionTypeUnknown, got %v", err)
	}
}

func TestIngestPayloadSchemaRejected(t *testing.T) {
	c, _, _ := setup(t)

	err := c.Ingest(ctx(), &event.Event{
		ActionType: "demo.strict",
		UserID:     "user-1",
		Payload:    map[string]any{"wrong": true},
	})
	if !errors.Is(err, cascade.ErrPayloadValidationFailed) {
		t.Fatalf("expected ErrPayloadValidationFailed, got %v", err)
	}
}

func TestIngestDuplicateIdempotencyKeyIsNoOp(t *testing.T) {
	c, s, _ := setup(t)

	for i := 0; i < 2; i++ {
		err := c.Ingest(ctx(), &event.Event{
			ActionType:     "demo.ping",
			UserID:         "user-1",
			IdempotencyKey: "once",
		})
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	events, err := s.ListEvents(ctx(), event.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(events))
	}
}

func TestRegisterServiceTwiceRejected(t *testing.T) {
	c, _, _ := setup(t)

	err := c.RegisterService(&registry.Service{ID: "demo", Name: "Again"}, nil)
	if !errors.Is(err, cascade.ErrServiceRegistered) {
		t.Fatalf("expected ErrServiceRegistered, got %v", err)
	}
}

func TestEndToEndReactionExecution(t *testing.T) {
	c, s, exec := setup(t, cascade.WithPollInterval(20*time.Millisecond))

	createMapping(t, c, "user-1", "demo.ping")

	c.Start(ctx())
	defer c.Stop(ctx())

	evt := &event.Event{
		ActionType: "demo.ping",
		UserID:     "user-1",
		Payload:    map[string]any{"message": "hello"},
	}
	if err := c.Ingest(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := s.GetEvent(ctx(), evt.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status == event.StatusCompleted {
			if got := exec.calls.Load(); got != 1 {
				t.Fatalf("executor calls = %d, want 1", got)
			}
			records, err := s.ListReactionsByEvent(ctx(), evt.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != 1 {
				t.Fatalf("expected 1 reaction record, got %d", len(records))
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("event never completed")
}

func TestEmitIngestsSchedulerEvent(t *testing.T) {
	c, s, _ := setup(t)

	if err := c.Emit(ctx(), "demo.ping", "user-1", "test-poll", map[string]any{"n": 1}); err != nil {
		t.Fatal(err)
	}

	events, err := s.ListEventsByUser(ctx(), "user-1", event.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Source != "test-poll" {
		t.Fatalf("source = %q, want %q", events[0].Source, "test-poll")
	}
}
