package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/cascade/registry"
)

func demoService() *registry.Service {
	return &registry.Service{
		ID:   "demo",
		Name: "Demo",
		Actions: []registry.ActionDefinition{
			{Type: "demo.ping", Name: "Ping"},
		},
		Reactions: []registry.ReactionDefinition{
			{Type: "demo.echo", Name: "Echo"},
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := registry.New(nil)
	if err := r.Register(demoService()); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Service("demo"); !ok {
		t.Fatal("service not found after register")
	}
	if a, ok := r.ActionByType("demo.ping"); !ok || a.Name != "Ping" {
		t.Fatalf("ActionByType = %+v, %v", a, ok)
	}
	if rd, ok := r.ReactionByType("demo.echo"); !ok || rd.Name != "Echo" {
		t.Fatalf("ReactionByType = %+v, %v", rd, ok)
	}
	if _, ok := r.ActionByType("demo.missing"); ok {
		t.Fatal("unknown action should not resolve")
	}
	if _, ok := r.ActionByType("other.ping"); ok {
		t.Fatal("unknown service should not resolve")
	}
	if _, ok := r.ActionByType("notdotted"); ok {
		t.Fatal("undotted type should not resolve")
	}
}

func TestRegisterDuplicateServiceRejected(t *testing.T) {
	r := registry.New(nil)
	if err := r.Register(demoService()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(demoService()); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegisterMalformedServiceRejected(t *testing.T) {
	r := registry.New(nil)

	cases := []struct {
		name string
		svc  *registry.Service
	}{
		{"nil service", nil},
		{"missing id", &registry.Service{Name: "X"}},
		{"missing name", &registry.Service{ID: "x"}},
		{"foreign action type", &registry.Service{
			ID: "x", Name: "X",
			Actions: []registry.ActionDefinition{{Type: "other.thing"}},
		}},
		{"duplicate action type", &registry.Service{
			ID: "x", Name: "X",
			Actions: []registry.ActionDefinition{{Type: "x.a"}, {Type: "x.a"}},
		}},
		{"foreign reaction type", &registry.Service{
			ID: "x", Name: "X",
			Reactions: []registry.ReactionDefinition{{Type: "other.thing"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := r.Register(tc.svc); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestUnregisterRemovesService(t *testing.T) {
	r := registry.New(nil)
	if err := r.Register(demoService()); err != nil {
		t.Fatal(err)
	}

	r.Unregister("demo")
	if _, ok := r.Service("demo"); ok {
		t.Fatal("service still present after unregister")
	}
	// Unknown ids are a no-op.
	r.Unregister("demo")
}

func TestActionsAndReactionsEnumerate(t *testing.T) {
	r := registry.New(nil)
	if err := r.Register(demoService()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&registry.Service{
		ID: "timer", Name: "Timer",
		Actions: []registry.ActionDefinition{
			{Type: "timer.every_hour"},
			{Type: "timer.every_day"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	if got := len(r.Actions()); got != 3 {
		t.Fatalf("Actions() = %d, want 3", got)
	}
	if got := len(r.Reactions()); got != 1 {
		t.Fatalf("Reactions() = %d, want 1", got)
	}
}

type stubCreds struct {
	creds registry.Credentials
	err   error
}

func (s *stubCreds) Credentials(context.Context, string) (registry.Credentials, error) {
	return s.creds, s.err
}

func TestCredentialsForResolvesThroughService(t *testing.T) {
	r := registry.New(nil)
	svc := demoService()
	svc.Credentials = &stubCreds{creds: registry.Credentials{"token": "tok-1"}}
	if err := r.Register(svc); err != nil {
		t.Fatal(err)
	}

	creds := r.CredentialsFor(context.Background(), "demo.echo", "user-1")
	if creds["token"] != "tok-1" {
		t.Fatalf("creds = %v", creds)
	}
}

func TestCredentialsForDegradesToEmpty(t *testing.T) {
	r := registry.New(nil)

	withoutSource := demoService()
	if err := r.Register(withoutSource); err != nil {
		t.Fatal(err)
	}
	failing := &registry.Service{
		ID: "bad", Name: "Bad",
		Reactions:   []registry.ReactionDefinition{{Type: "bad.echo"}},
		Credentials: &stubCreds{err: errors.New("vault down")},
	}
	if err := r.Register(failing); err != nil {
		t.Fatal(err)
	}

	for _, typ := range []string{"demo.echo", "bad.echo", "unknown.echo"} {
		creds := r.CredentialsFor(context.Background(), typ, "user-1")
		if creds == nil || len(creds) != 0 {
			t.Fatalf("CredentialsFor(%q) = %v, want empty", typ, creds)
		}
	}
}
