// Package resource polls a per-user provider resource's entity tag and emits
// an event when it changes. The baseline is persisted, so restarts do not
// replay changes that already fired.
package resource

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/cascade/pollclient"
	"github.com/xraph/cascade/scheduler"
)

// TypePictureChanged is emitted when a user's profile picture etag changes.
const TypePictureChanged = "profile.picture_changed"

// Source identifies resource poll events.
const Source = "resource-poll"

// Kind keys the persisted baseline in the scheduler state store.
const Kind = "profile-picture"

// metadata is the provider's resource metadata response.
type metadata struct {
	ID   string `json:"id"`
	Etag string `json:"etag"`
}

// content is the provider's resource content-location response.
type content struct {
	URL string `json:"url"`
}

// Config holds resource poller configuration.
type Config struct {
	MetadataURL string
	ContentURL  string
}

// Poller implements scheduler.Poller for etag-diffed resources.
type Poller struct {
	client *pollclient.Client
	sink   scheduler.EventSink
	states scheduler.StateStore
	config Config
	logger *slog.Logger
}

// New creates a resource-etag poller.
func New(client *pollclient.Client, sink scheduler.EventSink, states scheduler.StateStore, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client: client,
		sink:   sink,
		states: states,
		config: cfg,
		logger: logger,
	}
}

// Kind implements scheduler.Poller.
func (p *Poller) Kind() string { return Kind }

// ActionPrefix implements scheduler.Poller.
func (p *Poller) ActionPrefix() string { return "profile." }

// PollUser fetches the resource etag for one user, compares it with the
// persisted baseline, and emits exactly one event per observed transition.
// The very first observation establishes the baseline silently.
func (p *Poller) PollUser(ctx context.Context, userID string) error {
	var meta metadata
	err := p.client.GetJSON(ctx, userID, p.config.MetadataURL, &meta)
	if errors.Is(err, pollclient.ErrNoToken) || errors.Is(err, pollclient.ErrNoContent) {
		return nil
	}
	if err != nil {
		return err
	}
	if meta.Etag == "" {
		return nil
	}

	stored, err := p.states.GetState(ctx, Kind, userID)
	if err != nil {
		return err
	}

	if stored == "" {
		return p.states.SetState(ctx, Kind, userID, meta.Etag)
	}
	if stored == meta.Etag {
		return nil
	}

	// Changed: resolve a fresh resource URL for the payload.
	var loc content
	if err := p.client.GetJSON(ctx, userID, p.config.ContentURL, &loc); err != nil {
		p.logger.WarnContext(ctx, "resolve resource url failed", "user_id", userID, "error", err)
	}

	payload := map[string]any{
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"new_photo_url": loc.URL,
		"user_id":       userID,
	}
	if err := p.sink.Emit(ctx, TypePictureChanged, userID, Source, payload); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "resource change detected", "user_id", userID)

	return p.states.SetState(ctx, Kind, userID, meta.Etag)
}
