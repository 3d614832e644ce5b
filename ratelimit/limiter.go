// Package ratelimit provides per-key request pacing for external providers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Policy bounds how often one key (usually a user) may hit a provider:
// a minimum spacing between consecutive requests plus a rolling-window
// request quota. Zero values disable the corresponding bound.
type Policy struct {
	MinInterval time.Duration
	MaxRequests int
	Window      time.Duration
}

// Limiter tracks request pacing per key. Keys are independent; one user's
// backlog never delays another's. Each provider gets its own Limiter so
// buckets are never shared across providers either.
type Limiter struct {
	mu     sync.Mutex
	policy Policy
	states map[string]*state
}

type state struct {
	last   time.Time
	stamps []time.Time // requests inside the rolling window
}

// New creates a limiter enforcing the given policy.
func New(policy Policy) *Limiter {
	return &Limiter{
		policy: policy,
		states: make(map[string]*state),
	}
}

// Allow reports whether key may send a request now, and consumes a slot if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	st := l.getOrCreate(key)

	if d := l.delayLocked(st, now); d > 0 {
		return false
	}

	st.last = now
	if l.policy.MaxRequests > 0 {
		st.stamps = append(st.stamps, now)
	}
	return true
}

// Delay returns how long key must wait before its next request, without
// consuming a slot. Zero means a request may proceed now.
func (l *Limiter) Delay(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.delayLocked(l.getOrCreate(key), time.Now())
}

// Wait blocks until the policy allows key to proceed or ctx is cancelled.
// The slot is consumed on success.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		if l.Allow(key) {
			return nil
		}

		d := l.Delay(key)
		if d <= 0 {
			d = time.Millisecond
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Reset clears all pacing state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, key)
}

func (l *Limiter) getOrCreate(key string) *state {
	st, ok := l.states[key]
	if !ok {
		st = &state{}
		l.states[key] = st
	}
	return st
}

func (l *Limiter) delayLocked(st *state, now time.Time) time.Duration {
	var wait time.Duration

	if l.policy.MinInterval > 0 && !st.last.IsZero() {
		if d := l.policy.MinInterval - now.Sub(st.last); d > wait {
			wait = d
		}
	}

	if l.policy.MaxRequests > 0 && l.policy.Window > 0 {
		cutoff := now.Add(-l.policy.Window)
		kept := st.stamps[:0]
		for _, ts := range st.stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		st.stamps = kept

		if len(st.stamps) >= l.policy.MaxRequests {
			if d := l.policy.Window - now.Sub(st.stamps[0]); d > wait {
				wait = d
			}
		}
	}

	return wait
}
