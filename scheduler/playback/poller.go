// Package playback polls users' current playback and recently liked items
// and turns transitions into trigger events.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cascade/pollclient"
	"github.com/xraph/cascade/scheduler"
)

// Action types emitted by the poller.
const (
	TypeTrackChanged    = "playback.track_changed"
	TypePlaybackStarted = "playback.playback_started"
	TypePlaybackPaused  = "playback.playback_paused"
	TypeLikedTrackAdded = "playback.liked_track_added"
)

// Source identifies playback poll events.
const Source = "playback-poll"

// Scopes gating the two provider endpoints.
const (
	ScopePlayback = "user-read-playback-state"
	ScopeLibrary  = "user-library-read"
)

// Track is the provider's track object, narrowed to what payloads need.
type Track struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
	URI        string `json:"uri"`
	DurationMs int64  `json:"duration_ms"`
}

// Device is the provider's playback device object.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// State is the provider's current-playback response.
type State struct {
	IsPlaying bool    `json:"is_playing"`
	Item      *Track  `json:"item"`
	Device    *Device `json:"device"`
}

// likedPage is the provider's liked-items window response.
type likedPage struct {
	Items []struct {
		AddedAt string `json:"added_at"`
		Track   Track  `json:"track"`
	} `json:"items"`
}

// Config holds playback poller configuration.
type Config struct {
	PlayerURL     string
	LikedURL      string
	LikedCooldown time.Duration
}

// userState is one user's diffing baseline. High-frequency state stays in
// memory; a restart just re-baselines silently.
type userState struct {
	lastTrack     *Track
	lastPlaying   *bool
	likedIDs      map[string]bool
	initialized   bool
	lastDetection time.Time
}

// Poller detects track-changed, playback-started, playback-paused, and
// newly-liked-item transitions. It implements scheduler.Poller.
type Poller struct {
	client *pollclient.Client
	sink   scheduler.EventSink
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*userState
}

// New creates a playback poller.
func New(client *pollclient.Client, sink scheduler.EventSink, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LikedCooldown <= 0 {
		cfg.LikedCooldown = 10 * time.Second
	}
	return &Poller{
		client: client,
		sink:   sink,
		config: cfg,
		logger: logger,
		states: make(map[string]*userState),
	}
}

// Kind implements scheduler.Poller.
func (p *Poller) Kind() string { return "playback" }

// ActionPrefix implements scheduler.Poller.
func (p *Poller) ActionPrefix() string { return "playback." }

// PollUser fetches the user's playback and liked items and emits transition
// events. A user with no token, or a token missing both scopes, is skipped.
func (p *Poller) PollUser(ctx context.Context, userID string) error {
	tok, err := p.client.TokenFor(ctx, userID)
	if err != nil {
		if errors.Is(err, pollclient.ErrNoToken) {
			return nil
		}
		return err
	}

	hasPlayback := tok.HasScope(ScopePlayback)
	hasLibrary := tok.HasScope(ScopeLibrary)
	if !hasPlayback && !hasLibrary {
		return nil
	}

	if hasPlayback {
		if err := p.checkPlayback(ctx, userID); err != nil {
			p.logger.WarnContext(ctx, "playback check failed", "user_id", userID, "error", err)
		}
	}
	if hasLibrary {
		if err := p.checkLiked(ctx, userID); err != nil {
			p.logger.WarnContext(ctx, "liked items check failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (p *Poller) checkPlayback(ctx context.Context, userID string) error {
	var state State
	err := p.client.GetJSON(ctx, userID, p.config.PlayerURL, &state)

	// An empty response means nothing is playing on any device.
	if errors.Is(err, pollclient.ErrNoContent) {
		st := p.state(userID)
		if st.initialized && st.lastPlaying != nil && *st.lastPlaying {
			p.emit(ctx, TypePlaybackPaused, userID, statePayload(st.lastTrack, nil))
		}
		playing := false
		st.lastPlaying = &playing
		st.lastTrack = nil
		st.initialized = true
		return nil
	}
	if err != nil {
		return err
	}

	st := p.state(userID)
	current := state.Item
	isPlaying := state.IsPlaying

	if st.initialized {
		if current != nil && (st.lastTrack == nil || st.lastTrack.ID != current.ID) {
			p.emit(ctx, TypeTrackChanged, userID, map[string]any{
				"previous_track": trackPayload(st.lastTrack),
				"current_track":  trackPayload(current),
				"timestamp":      time.Now().UTC().Format(time.RFC3339),
			})
		}

		if st.lastPlaying != nil && *st.lastPlaying != isPlaying {
			if isPlaying {
				if current != nil {
					p.emit(ctx, TypePlaybackStarted, userID, statePayload(current, state.Device))
				}
			} else if current != nil {
				p.emit(ctx, TypePlaybackPaused, userID, statePayload(current, state.Device))
			}
		}
	}

	st.lastTrack = current
	st.lastPlaying = &isPlaying
	st.initialized = true
	return nil
}

func (p *Poller) checkLiked(ctx context.Context, userID string) error {
	var page likedPage
	if err := p.client.GetJSON(ctx, userID, p.config.LikedURL, &page); err != nil {
		return err
	}

	current := make(map[string]bool, len(page.Items))
	for _, item := range page.Items {
		current[item.Track.ID] = true
	}

	st := p.state(userID)
	previous := st.likedIDs

	if st.initialized && len(previous) > 0 {
		// Anti-spam cooldown, independent of poll cadence.
		if time.Since(st.lastDetection) >= p.config.LikedCooldown {
			detected := false
			for _, item := range page.Items {
				if previous[item.Track.ID] {
					continue
				}
				detected = true
				p.emit(ctx, TypeLikedTrackAdded, userID, map[string]any{
					"track":     trackPayloadFull(&item.Track),
					"added_at":  item.AddedAt,
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
			}
			if detected {
				st.lastDetection = time.Now()
			}
		}
	}

	st.likedIDs = current
	st.initialized = true
	return nil
}

// state returns the user's baseline, creating it on first observation. The
// per-user single-writer guarantee comes from the scheduler's in-flight
// claim; the mutex only guards the map itself.
func (p *Poller) state(userID string) *userState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[userID]
	if !ok {
		st = &userState{}
		p.states[userID] = st
	}
	return st
}

func (p *Poller) emit(ctx context.Context, actionType, userID string, payload map[string]any) {
	if err := p.sink.Emit(ctx, actionType, userID, Source, payload); err != nil {
		p.logger.ErrorContext(ctx, "emit playback event failed",
			"action_type", actionType, "user_id", userID, "error", err)
		return
	}
	p.logger.DebugContext(ctx, "playback transition", "action_type", actionType, "user_id", userID)
}

func trackPayload(t *Track) map[string]any {
	if t == nil {
		return nil
	}
	artist := "Unknown"
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return map[string]any{
		"id":     t.ID,
		"name":   t.Name,
		"artist": artist,
		"album":  t.Album.Name,
		"uri":    t.URI,
	}
}

func trackPayloadFull(t *Track) map[string]any {
	m := trackPayload(t)
	if m != nil {
		m["duration_ms"] = t.DurationMs
	}
	return m
}

func statePayload(t *Track, device *Device) map[string]any {
	payload := map[string]any{
		"track":     trackPayload(t),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if device != nil {
		payload["device"] = map[string]any{
			"id":   device.ID,
			"name": device.Name,
			"type": device.Type,
		}
	} else {
		payload["device"] = nil
	}
	return payload
}
