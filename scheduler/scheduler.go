// Package scheduler provides the periodic polling framework that turns
// external provider state changes into trigger events.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventSink accepts transition events detected by schedulers.
type EventSink interface {
	Emit(ctx context.Context, actionType, userID, source string, payload map[string]any) error
}

// UserSource discovers users with at least one active mapping for an action
// type prefix.
type UserSource interface {
	ListActiveUserIDs(ctx context.Context, actionPrefix string) ([]string, error)
}

// Poller is one concrete scheduler kind's per-user poll logic. PollUser
// fetches fresh provider state for the user, diffs it against the stored
// baseline, emits events for transitions, and always updates the baseline.
type Poller interface {
	Kind() string
	ActionPrefix() string
	PollUser(ctx context.Context, userID string) error
}

// Config holds scheduler configuration.
type Config struct {
	Interval     time.Duration
	UserCacheTTL time.Duration
	Concurrency  int
}

// Scheduler drives one Poller on a fixed tick. Each tick it discovers the
// active users for the poller's action prefix (through a short-TTL cache) and
// fans out per-user polls with bounded concurrency. One user's failure never
// aborts another's poll.
type Scheduler struct {
	poller Poller
	users  UserSource
	config Config
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	cacheMu  sync.Mutex
	cached   []string
	cachedAt time.Time

	flightMu sync.Mutex
	inFlight map[string]bool
}

// New creates a scheduler for the given poller.
func New(poller Poller, users UserSource, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Scheduler{
		poller:   poller,
		users:    users,
		config:   cfg,
		logger:   logger.With("scheduler", poller.Kind()),
		inFlight: make(map[string]bool),
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop cancels the tick loop and waits for in-flight polls to complete.
func (s *Scheduler) Stop(_ context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one discovery + poll round. Exposed so callers can force an
// immediate round (tests, warm-up on start).
func (s *Scheduler) Tick(ctx context.Context) {
	userIDs, err := s.activeUsers(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "user discovery failed", "error", err)
		return
	}
	if len(userIDs) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, userID := range userIDs {
		// A user still being polled from a previous tick keeps single-writer
		// access to its own state; this tick just skips them.
		if !s.claim(userID) {
			continue
		}

		g.Go(func() error {
			defer s.release(userID)
			if err := s.poller.PollUser(ctx, userID); err != nil {
				s.logger.WarnContext(ctx, "poll failed", "user_id", userID, "error", err)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// activeUsers returns the discovered user set, refreshing the cache when its
// TTL has lapsed.
func (s *Scheduler) activeUsers(ctx context.Context) ([]string, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.config.UserCacheTTL > 0 && time.Since(s.cachedAt) < s.config.UserCacheTTL && len(s.cached) > 0 {
		return s.cached, nil
	}

	userIDs, err := s.users.ListActiveUserIDs(ctx, s.poller.ActionPrefix())
	if err != nil {
		return nil, err
	}

	s.cached = userIDs
	s.cachedAt = time.Now()
	return userIDs, nil
}

func (s *Scheduler) claim(userID string) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inFlight[userID] {
		return false
	}
	s.inFlight[userID] = true
	return true
}

func (s *Scheduler) release(userID string) {
	s.flightMu.Lock()
	delete(s.inFlight, userID)
	s.flightMu.Unlock()
}
