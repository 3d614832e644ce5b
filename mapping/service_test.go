package mapping_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/registry"
	"github.com/xraph/cascade/store/memory"
)

type fakeWebhooks struct {
	mu      sync.Mutex
	ensured []string
	deleted []string
	err     error
}

func (w *fakeWebhooks) EnsureWebhookForMapping(_ context.Context, _, mappingID string, _ registry.ActionDefinition) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensured = append(w.ensured, mappingID)
	return w.err
}

func (w *fakeWebhooks) DeleteWebhook(_ context.Context, _, mappingID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleted = append(w.deleted, mappingID)
	return w.err
}

func newCatalog(t *testing.T, webhooks registry.WebhookProvisioner) *registry.Registry {
	t.Helper()
	r := registry.New(nil)
	err := r.Register(&registry.Service{
		ID:   "test",
		Name: "Test",
		Actions: []registry.ActionDefinition{
			{Type: "test.trigger"},
			{
				Type: "test.strict",
				ConfigSchema: json.RawMessage(`{
					"type": "object",
					"properties": {"hour": {"type": "integer"}},
					"required": ["hour"]
				}`),
			},
			{Type: "test.hooked", WebhookPattern: "/hooks/{user}"},
		},
		Reactions: []registry.ReactionDefinition{
			{Type: "test.react"},
		},
		Webhooks: webhooks,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func validInput(actionType string) mapping.Input {
	return mapping.Input{
		UserID: "user-1",
		Name:   "my mapping",
		Action: mapping.ActionSpec{Type: actionType},
		Reactions: []mapping.ReactionSpec{
			{Type: "test.react"},
		},
	}
}

func TestCreatePersistsActiveMapping(t *testing.T) {
	svc := mapping.NewService(memory.New(), newCatalog(t, nil), nil)

	m, err := svc.Create(context.Background(), validInput("test.trigger"))
	if err != nil {
		t.Fatal(err)
	}
	if m.ID.IsNil() {
		t.Fatal("mapping has no id")
	}
	if !m.Active {
		t.Fatal("new mapping must start active")
	}

	got, err := svc.Get(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "my mapping" || got.UserID != "user-1" {
		t.Fatalf("stored mapping = %+v", got)
	}
}

func TestCreateValidationErrors(t *testing.T) {
	svc := mapping.NewService(memory.New(), newCatalog(t, nil), nil)

	cases := []struct {
		name  string
		in    mapping.Input
		field string
	}{
		{
			name: "missing user",
			in: mapping.Input{
				Action:    mapping.ActionSpec{Type: "test.trigger"},
				Reactions: []mapping.ReactionSpec{{Type: "test.react"}},
			},
			field: "user_id",
		},
		{
			name: "no reactions",
			in: mapping.Input{
				UserID: "user-1",
				Action: mapping.ActionSpec{Type: "test.trigger"},
			},
			field: "reactions",
		},
		{
			name:  "unknown action",
			in:    validInput("test.missing"),
			field: "action.type",
		},
		{
			name: "unknown reaction",
			in: mapping.Input{
				UserID:    "user-1",
				Action:    mapping.ActionSpec{Type: "test.trigger"},
				Reactions: []mapping.ReactionSpec{{Type: "test.missing"}},
			},
			field: "reactions[0].type",
		},
		{
			name: "action config fails schema",
			in: mapping.Input{
				UserID:    "user-1",
				Action:    mapping.ActionSpec{Type: "test.strict", Config: map[string]any{"hour": "nine"}},
				Reactions: []mapping.ReactionSpec{{Type: "test.react"}},
			},
			field: "action.config",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.in)
			var verr *mapping.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestCreateProvisionsWebhook(t *testing.T) {
	hooks := &fakeWebhooks{}
	svc := mapping.NewService(memory.New(), newCatalog(t, hooks), nil)

	m, err := svc.Create(context.Background(), validInput("test.hooked"))
	if err != nil {
		t.Fatal(err)
	}
	if len(hooks.ensured) != 1 || hooks.ensured[0] != m.ID.String() {
		t.Fatalf("ensured = %v", hooks.ensured)
	}

	// Plain actions never touch the provisioner.
	if _, err := svc.Create(context.Background(), validInput("test.trigger")); err != nil {
		t.Fatal(err)
	}
	if len(hooks.ensured) != 1 {
		t.Fatalf("ensured = %v after plain create", hooks.ensured)
	}
}

func TestCreateSurvivesWebhookFailure(t *testing.T) {
	hooks := &fakeWebhooks{err: errors.New("provider down")}
	svc := mapping.NewService(memory.New(), newCatalog(t, hooks), nil)

	m, err := svc.Create(context.Background(), validInput("test.hooked"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(context.Background(), m.ID); err != nil {
		t.Fatalf("mapping not persisted despite webhook failure: %v", err)
	}
}

func TestSetActiveTogglesWebhook(t *testing.T) {
	hooks := &fakeWebhooks{}
	svc := mapping.NewService(memory.New(), newCatalog(t, hooks), nil)

	m, err := svc.Create(context.Background(), validInput("test.hooked"))
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.SetActive(context.Background(), m.ID, false); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Fatal("mapping still active")
	}
	if len(hooks.deleted) != 1 {
		t.Fatalf("deleted = %v", hooks.deleted)
	}

	if err := svc.SetActive(context.Background(), m.ID, true); err != nil {
		t.Fatal(err)
	}
	if len(hooks.ensured) != 2 {
		t.Fatalf("ensured = %v after re-activation", hooks.ensured)
	}
}

func TestSetActiveUnknownMapping(t *testing.T) {
	svc := mapping.NewService(memory.New(), newCatalog(t, nil), nil)
	err := svc.SetActive(context.Background(), id.NewMappingID(), false)
	if !errors.Is(err, cascade.ErrMappingNotFound) {
		t.Fatalf("err = %v, want ErrMappingNotFound", err)
	}
}

func TestDeleteRemovesMappingAndWebhook(t *testing.T) {
	hooks := &fakeWebhooks{}
	svc := mapping.NewService(memory.New(), newCatalog(t, hooks), nil)

	m, err := svc.Create(context.Background(), validInput("test.hooked"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(context.Background(), m.ID); !errors.Is(err, cascade.ErrMappingNotFound) {
		t.Fatalf("err = %v, want ErrMappingNotFound", err)
	}
	if len(hooks.deleted) != 1 || hooks.deleted[0] != m.ID.String() {
		t.Fatalf("deleted = %v", hooks.deleted)
	}
}
