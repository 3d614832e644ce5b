package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/cascade/scheduler"
)

// fakePoller records which users were polled.
type fakePoller struct {
	mu     sync.Mutex
	polled map[string]int
	errFor string
	block  chan struct{} // when set, PollUser blocks until closed
}

func (f *fakePoller) Kind() string         { return "fake" }
func (f *fakePoller) ActionPrefix() string { return "fake." }

func (f *fakePoller) PollUser(_ context.Context, userID string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	if f.polled == nil {
		f.polled = make(map[string]int)
	}
	f.polled[userID]++
	f.mu.Unlock()

	if userID == f.errFor {
		return errors.New("provider down")
	}
	return nil
}

func (f *fakePoller) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polled[userID]
}

// fakeUsers serves a fixed user set and counts discovery calls.
type fakeUsers struct {
	users []string
	calls atomic.Int32
}

func (f *fakeUsers) ListActiveUserIDs(_ context.Context, _ string) ([]string, error) {
	f.calls.Add(1)
	return f.users, nil
}

func TestTickPollsEveryActiveUser(t *testing.T) {
	poller := &fakePoller{}
	users := &fakeUsers{users: []string{"user-1", "user-2", "user-3"}}

	s := scheduler.New(poller, users, scheduler.Config{
		Interval:    time.Hour,
		Concurrency: 2,
	}, nil)

	s.Tick(context.Background())

	for _, u := range users.users {
		if poller.count(u) != 1 {
			t.Errorf("user %s polled %d times, want 1", u, poller.count(u))
		}
	}
}

func TestOneUsersFailureDoesNotStopOthers(t *testing.T) {
	poller := &fakePoller{errFor: "user-1"}
	users := &fakeUsers{users: []string{"user-1", "user-2"}}

	s := scheduler.New(poller, users, scheduler.Config{Interval: time.Hour}, nil)
	s.Tick(context.Background())

	if poller.count("user-2") != 1 {
		t.Errorf("user-2 not polled after user-1 failed")
	}
}

func TestUserDiscoveryCached(t *testing.T) {
	poller := &fakePoller{}
	users := &fakeUsers{users: []string{"user-1"}}

	s := scheduler.New(poller, users, scheduler.Config{
		Interval:     time.Hour,
		UserCacheTTL: time.Minute,
	}, nil)

	ctx := context.Background()
	s.Tick(ctx)
	s.Tick(ctx)
	s.Tick(ctx)

	if users.calls.Load() != 1 {
		t.Errorf("expected 1 discovery call within TTL, got %d", users.calls.Load())
	}
	if poller.count("user-1") != 3 {
		t.Errorf("expected 3 polls, got %d", poller.count("user-1"))
	}
}

func TestInFlightUserSkippedNotQueued(t *testing.T) {
	poller := &fakePoller{block: make(chan struct{})}
	users := &fakeUsers{users: []string{"user-1"}}

	s := scheduler.New(poller, users, scheduler.Config{Interval: time.Hour}, nil)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		s.Tick(ctx)
		close(done)
	}()

	// Wait until the first tick has claimed the user.
	time.Sleep(50 * time.Millisecond)

	// Second tick must skip the user still being polled.
	go s.Tick(ctx)
	time.Sleep(50 * time.Millisecond)

	close(poller.block)
	<-done
	time.Sleep(50 * time.Millisecond)

	if got := poller.count("user-1"); got != 1 {
		t.Errorf("expected in-flight user to be skipped, polled %d times", got)
	}
}

func TestStartStop(t *testing.T) {
	poller := &fakePoller{}
	users := &fakeUsers{users: []string{"user-1"}}

	s := scheduler.New(poller, users, scheduler.Config{
		Interval: 20 * time.Millisecond,
	}, nil)

	ctx := context.Background()
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for poller.count("user-1") == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for scheduled poll")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	s.Stop(ctx)
}
