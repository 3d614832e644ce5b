package resource_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/xraph/cascade/pollclient"
	"github.com/xraph/cascade/scheduler/resource"
	"github.com/xraph/cascade/store/memory"
)

type emitted struct {
	ActionType string
	UserID     string
	Source     string
	Payload    map[string]any
}

type captureSink struct {
	mu     sync.Mutex
	events []emitted
}

func (s *captureSink) Emit(_ context.Context, actionType, userID, source string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, emitted{ActionType: actionType, UserID: userID, Source: source, Payload: payload})
	return nil
}

func (s *captureSink) all() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emitted(nil), s.events...)
}

type stubTokens struct{}

func (stubTokens) Token(context.Context, string) (pollclient.Token, error) {
	return pollclient.Token{Value: "tok"}, nil
}

func (stubTokens) Refresh(context.Context, string) (pollclient.Token, error) {
	return pollclient.Token{Value: "tok"}, nil
}

type provider struct {
	mu   sync.Mutex
	etag string
	url  string
}

func (p *provider) set(etag, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.etag = etag
	p.url = url
}

func (p *provider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/photo", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "photo", "etag": p.etag})
	})
	mux.HandleFunc("/photo/url", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"url": p.url})
	})
	return mux
}

func setupPoller(t *testing.T) (*resource.Poller, *captureSink, *provider, *memory.Store) {
	t.Helper()

	prov := &provider{}
	srv := httptest.NewServer(prov.handler())
	t.Cleanup(srv.Close)

	client := pollclient.New(stubTokens{}, pollclient.Config{}, nil)
	sink := &captureSink{}
	store := memory.New()

	p := resource.New(client, sink, store, resource.Config{
		MetadataURL: srv.URL + "/photo",
		ContentURL:  srv.URL + "/photo/url",
	}, nil)
	return p, sink, prov, store
}

func TestFirstObservationEstablishesBaselineSilently(t *testing.T) {
	t.Parallel()

	p, sink, prov, store := setupPoller(t)
	prov.set("e1", "https://cdn.example/pic1.jpg")

	if err := p.PollUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("PollUser: %v", err)
	}
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("expected no events on first observation, got %d", len(got))
	}

	stored, err := store.GetState(context.Background(), resource.Kind, "user-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if stored != "e1" {
		t.Fatalf("baseline = %q, want %q", stored, "e1")
	}
}

func TestUnchangedEtagEmitsNothing(t *testing.T) {
	t.Parallel()

	p, sink, prov, _ := setupPoller(t)
	prov.set("e1", "https://cdn.example/pic1.jpg")

	for i := 0; i < 3; i++ {
		if err := p.PollUser(context.Background(), "user-1"); err != nil {
			t.Fatalf("PollUser: %v", err)
		}
	}
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("expected no events for unchanged etag, got %d", len(got))
	}
}

func TestEtagChangeEmitsOneEventAndUpdatesBaseline(t *testing.T) {
	t.Parallel()

	p, sink, prov, store := setupPoller(t)
	prov.set("e1", "https://cdn.example/pic1.jpg")

	if err := p.PollUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("PollUser: %v", err)
	}

	prov.set("e2", "https://cdn.example/pic2.jpg")
	if err := p.PollUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("PollUser: %v", err)
	}

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	evt := got[0]
	if evt.ActionType != resource.TypePictureChanged {
		t.Fatalf("action type = %q", evt.ActionType)
	}
	if evt.UserID != "user-1" {
		t.Fatalf("user id = %q", evt.UserID)
	}
	if url := evt.Payload["new_photo_url"]; url != "https://cdn.example/pic2.jpg" {
		t.Fatalf("new_photo_url = %v", url)
	}

	stored, err := store.GetState(context.Background(), resource.Kind, "user-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if stored != "e2" {
		t.Fatalf("baseline = %q, want %q", stored, "e2")
	}

	// Same etag again must stay silent.
	if err := p.PollUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("PollUser: %v", err)
	}
	if got := sink.all(); len(got) != 1 {
		t.Fatalf("expected still 1 event, got %d", len(got))
	}
}
