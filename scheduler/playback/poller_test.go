package playback_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xraph/cascade/pollclient"
	"github.com/xraph/cascade/ratelimit"
	"github.com/xraph/cascade/scheduler/playback"
)

// captureSink records emitted events.
type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	actionType string
	userID     string
	payload    map[string]any
}

func (c *captureSink) Emit(_ context.Context, actionType, userID, _ string, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, capturedEvent{actionType, userID, payload})
	return nil
}

func (c *captureSink) byType(actionType string) []capturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedEvent
	for _, e := range c.events {
		if e.actionType == actionType {
			out = append(out, e)
		}
	}
	return out
}

// stubTokens serves a token with both poller scopes.
type stubTokens struct{}

func (stubTokens) Token(_ context.Context, _ string) (pollclient.Token, error) {
	return pollclient.Token{
		Value:  "tok",
		Scopes: []string{playback.ScopePlayback, playback.ScopeLibrary},
	}, nil
}

func (stubTokens) Refresh(ctx context.Context, userID string) (pollclient.Token, error) {
	return stubTokens{}.Token(ctx, userID)
}

// provider is a fake playback API with mutable state.
type provider struct {
	mu      sync.Mutex
	playing *playback.State // nil means 204
	liked   []map[string]any
}

func (p *provider) setPlaying(s *playback.State) {
	p.mu.Lock()
	p.playing = s
	p.mu.Unlock()
}

func (p *provider) setLiked(ids ...string) {
	p.mu.Lock()
	p.liked = nil
	for _, id := range ids {
		p.liked = append(p.liked, map[string]any{
			"added_at": "2026-01-05T10:00:00Z",
			"track":    map[string]any{"id": id, "name": "Track " + id},
		})
	}
	p.mu.Unlock()
}

func (p *provider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/player", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.playing == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(p.playing)
	})
	mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"items": p.liked})
	})
	return mux
}

func track(id string) *playback.Track {
	return &playback.Track{ID: id, Name: "Track " + id}
}

func setupPoller(t *testing.T, prov *provider, cooldown time.Duration) (*playback.Poller, *captureSink, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(prov.handler())

	client := pollclient.New(stubTokens{}, pollclient.Config{
		RequestTimeout: 2 * time.Second,
		Limit:          ratelimit.Policy{},
	}, nil)

	sink := &captureSink{}
	p := playback.New(client, sink, playback.Config{
		PlayerURL:     srv.URL + "/me/player",
		LikedURL:      srv.URL + "/me/tracks",
		LikedCooldown: cooldown,
	}, nil)
	return p, sink, srv
}

func TestFirstObservationIsSilent(t *testing.T) {
	prov := &provider{}
	prov.setPlaying(&playback.State{IsPlaying: true, Item: track("t1")})
	prov.setLiked("l1", "l2")

	p, sink, srv := setupPoller(t, prov, time.Hour)
	defer srv.Close()

	if err := p.PollUser(context.Background(), "user-1"); err != nil {
		t.Fatal(err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 0 {
		t.Fatalf("first observation must only set the baseline, got %d events", len(sink.events))
	}
}

func TestTrackChangeDetected(t *testing.T) {
	prov := &provider{}
	prov.setPlaying(&playback.State{IsPlaying: true, Item: track("t1")})

	p, sink, srv := setupPoller(t, prov, time.Hour)
	defer srv.Close()

	ctx := context.Background()
	if err := p.PollUser(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	prov.setPlaying(&playback.State{IsPlaying: true, Item: track("t2")})
	if err := p.PollUser(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	changed := sink.byType(playback.TypeTrackChanged)
	if len(changed) != 1 {
		t.Fatalf("expected 1 track_changed, got %d", len(changed))
	}
	cur, _ := changed[0].payload["current_track"].(map[string]any)
	if cur["id"] != "t2" {
		t.Errorf("wrong current track: %v", cur)
	}
	prev, _ := changed[0].payload["previous_track"].(map[string]any)
	if prev["id"] != "t1" {
		t.Errorf("wrong previous track: %v", prev)
	}
}

func TestPauseAndResumeDetected(t *testing.T) {
	prov := &provider{}
	prov.setPlaying(&playback.State{IsPlaying: true, Item: track("t1")})

	p, sink, srv := setupPoller(t, prov, time.Hour)
	defer srv.Close()

	ctx := context.Background()
	p.PollUser(ctx, "user-1")

	prov.setPlaying(&playback.State{IsPlaying: false, Item: track("t1")})
	p.PollUser(ctx, "user-1")

	if got := sink.byType(playback.TypePlaybackPaused); len(got) != 1 {
		t.Fatalf("expected 1 paused event, got %d", len(got))
	}

	prov.setPlaying(&playback.State{IsPlaying: true, Item: track("t1")})
	p.PollUser(ctx, "user-1")

	if got := sink.byType(playback.TypePlaybackStarted); len(got) != 1 {
		t.Fatalf("expected 1 started event, got %d", len(got))
	}
}

func TestEmptyPlaybackWhilePlayingEmitsPause(t *testing.T) {
	prov := &provider{}
	prov.setPlaying(&playback.State{IsPlaying: true, Item: track("t1")})

	p, sink, srv := setupPoller(t, prov, time.Hour)
	defer srv.Close()

	ctx := context.Background()
	p.PollUser(ctx, "user-1")

	// Provider now returns 204: playback stopped everywhere.
	prov.setPlaying(nil)
	p.PollUser(ctx, "user-1")

	paused := sink.byType(playback.TypePlaybackPaused)
	if len(paused) != 1 {
		t.Fatalf("expected 1 paused event on 204, got %d", len(paused))
	}
	tr, _ := paused[0].payload["track"].(map[string]any)
	if tr["id"] != "t1" {
		t.Errorf("pause payload should carry last known track, got %v", tr)
	}
}

func TestNewLikedTrackDetected(t *testing.T) {
	prov := &provider{}
	prov.setLiked("l1")

	p, sink, srv := setupPoller(t, prov, time.Millisecond)
	defer srv.Close()

	ctx := context.Background()
	p.PollUser(ctx, "user-1")

	prov.setLiked("l2", "l1")
	time.Sleep(5 * time.Millisecond)
	p.PollUser(ctx, "user-1")

	liked := sink.byType(playback.TypeLikedTrackAdded)
	if len(liked) != 1 {
		t.Fatalf("expected 1 liked event, got %d", len(liked))
	}
	tr, _ := liked[0].payload["track"].(map[string]any)
	if tr["id"] != "l2" {
		t.Errorf("wrong liked track: %v", tr)
	}
}

func TestLikedCooldownSuppressesRedetection(t *testing.T) {
	prov := &provider{}
	prov.setLiked("l1")

	p, sink, srv := setupPoller(t, prov, time.Hour)
	defer srv.Close()

	ctx := context.Background()
	p.PollUser(ctx, "user-1")

	prov.setLiked("l2", "l1")
	p.PollUser(ctx, "user-1")
	if got := sink.byType(playback.TypeLikedTrackAdded); len(got) != 1 {
		t.Fatalf("expected first detection to fire, got %d", len(got))
	}

	// Inside the cooldown window a further new like is not re-detected.
	prov.setLiked("l3", "l2", "l1")
	p.PollUser(ctx, "user-1")
	if got := sink.byType(playback.TypeLikedTrackAdded); len(got) != 1 {
		t.Fatalf("cooldown violated, got %d liked events", len(got))
	}
}
