// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/failure"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/reaction"
	"github.com/xraph/cascade/stats"
	cascadestore "github.com/xraph/cascade/store"
)

// compile-time interface check.
var _ cascadestore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	events          map[string]*event.Event     // keyed by ID string
	eventsByIdemKey map[string]*event.Event     // keyed by idempotency key
	locked          map[string]bool             // simulates SKIP LOCKED on intake
	mappings        map[string]*mapping.Mapping // keyed by ID string
	reactions       map[string]*reaction.Record // keyed by ID string
	failures        map[string]*failure.Record  // keyed by ID string
	statBuckets     map[stats.Key]*stats.Bucket
	schedState      map[string]string // keyed by kind + NUL + userID

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		events:          make(map[string]*event.Event),
		eventsByIdemKey: make(map[string]*event.Event),
		locked:          make(map[string]bool),
		mappings:        make(map[string]*mapping.Mapping),
		reactions:       make(map[string]*reaction.Record),
		failures:        make(map[string]*failure.Record),
		statBuckets:     make(map[stats.Key]*stats.Bucket),
		schedState:      make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cascade.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event. Returns ErrDuplicateIdempotencyKey on conflict.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.IdempotencyKey != "" {
		if _, ok := s.eventsByIdemKey[evt.IdempotencyKey]; ok {
			return cascade.ErrDuplicateIdempotencyKey
		}
		s.eventsByIdemKey[evt.IdempotencyKey] = evt
	}

	s.events[evt.ID.String()] = evt
	return nil
}

// GetEvent returns a copy of the event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, cascade.ErrEventNotFound
	}
	return copyEvent(evt), nil
}

// ListPendingEvents fetches the oldest received events, FIFO (concurrent-safe).
// Returned events are locked until the next UpdateEvent releases them, and are
// copies so callers can mutate without holding a lock.
func (s *Store) ListPendingEvents(_ context.Context, limit int) ([]*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if evt.Status != event.StatusReceived {
			continue
		}
		if s.locked[evt.ID.String()] {
			continue
		}
		candidates = append(candidates, evt)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*event.Event, 0, len(candidates))
	for _, evt := range candidates {
		s.locked[evt.ID.String()] = true
		result = append(result, copyEvent(evt))
	}
	return result, nil
}

// UpdateEvent modifies an event and releases its intake lock.
func (s *Store) UpdateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[evt.ID.String()]; !ok {
		return cascade.ErrEventNotFound
	}
	evt.UpdatedAt = time.Now().UTC()
	s.events[evt.ID.String()] = copyEvent(evt)
	delete(s.locked, evt.ID.String())
	return nil
}

// ListEvents returns events, optionally filtered, newest first.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if !matchEventOpts(evt, opts) {
			continue
		}
		result = append(result, copyEvent(evt))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListEventsByUser returns events owned by a specific user, newest first.
func (s *Store) ListEventsByUser(_ context.Context, userID string, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if evt.UserID != userID {
			continue
		}
		if !matchEventOpts(evt, opts) {
			continue
		}
		result = append(result, copyEvent(evt))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ──────────────────────────────────────────────────
// mapping.Store
// ──────────────────────────────────────────────────

// CreateMapping persists a new mapping.
func (s *Store) CreateMapping(_ context.Context, m *mapping.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mappings[m.ID.String()] = m
	return nil
}

// GetMapping returns a mapping by ID.
func (s *Store) GetMapping(_ context.Context, mapID id.ID) (*mapping.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[mapID.String()]
	if !ok {
		return nil, cascade.ErrMappingNotFound
	}
	return m, nil
}

// UpdateMapping modifies an existing mapping.
func (s *Store) UpdateMapping(_ context.Context, m *mapping.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[m.ID.String()]; !ok {
		return cascade.ErrMappingNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	s.mappings[m.ID.String()] = m
	return nil
}

// DeleteMapping removes a mapping.
func (s *Store) DeleteMapping(_ context.Context, mapID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[mapID.String()]; !ok {
		return cascade.ErrMappingNotFound
	}
	delete(s.mappings, mapID.String())
	return nil
}

// ListMappings returns mappings, optionally filtered.
func (s *Store) ListMappings(_ context.Context, opts mapping.ListOpts) ([]*mapping.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*mapping.Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		if opts.UserID != "" && m.UserID != opts.UserID {
			continue
		}
		if opts.ActionType != "" && m.Action.Type != opts.ActionType {
			continue
		}
		if opts.Active != nil && m.Active != *opts.Active {
			continue
		}
		result = append(result, m)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// GetOwnedActive returns the mapping only if it is owned by userID and active.
func (s *Store) GetOwnedActive(_ context.Context, mapID id.ID, userID string) (*mapping.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[mapID.String()]
	if !ok || !m.Active || m.UserID != userID {
		return nil, cascade.ErrMappingNotFound
	}
	return m, nil
}

// ListActiveByAction returns all users' active mappings for an action type.
func (s *Store) ListActiveByAction(_ context.Context, actionType string) ([]*mapping.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*mapping.Mapping
	for _, m := range s.mappings {
		if m.Active && m.Action.Type == actionType {
			result = append(result, m)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListActiveByOwnerAndAction returns one user's active mappings for an action type.
func (s *Store) ListActiveByOwnerAndAction(_ context.Context, userID, actionType string) ([]*mapping.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*mapping.Mapping
	for _, m := range s.mappings {
		if m.Active && m.UserID == userID && m.Action.Type == actionType {
			result = append(result, m)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListActiveUserIDs returns the distinct owners of active mappings whose
// action type starts with actionPrefix.
func (s *Store) ListActiveUserIDs(_ context.Context, actionPrefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, m := range s.mappings {
		if !m.Active || m.UserID == "" {
			continue
		}
		if !strings.HasPrefix(m.Action.Type, actionPrefix) {
			continue
		}
		seen[m.UserID] = true
	}

	result := make([]string, 0, len(seen))
	for userID := range seen {
		result = append(result, userID)
	}
	sort.Strings(result)
	return result, nil
}

// SetMappingActive toggles a mapping's active flag.
func (s *Store) SetMappingActive(_ context.Context, mapID id.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[mapID.String()]
	if !ok {
		return cascade.ErrMappingNotFound
	}
	m.Active = active
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// reaction.Store
// ──────────────────────────────────────────────────

// CreateReaction persists a new reaction record.
func (s *Store) CreateReaction(_ context.Context, rec *reaction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reactions[rec.ID.String()] = copyReaction(rec)
	return nil
}

// UpdateReaction modifies an existing reaction record.
func (s *Store) UpdateReaction(_ context.Context, rec *reaction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reactions[rec.ID.String()]; !ok {
		return cascade.ErrReactionNotFound
	}
	rec.UpdatedAt = time.Now().UTC()
	s.reactions[rec.ID.String()] = copyReaction(rec)
	return nil
}

// GetReaction returns a copy of the reaction record by ID.
func (s *Store) GetReaction(_ context.Context, recID id.ID) (*reaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.reactions[recID.String()]
	if !ok {
		return nil, cascade.ErrReactionNotFound
	}
	return copyReaction(rec), nil
}

// ListReactionsByEvent returns all reaction records for a specific event.
func (s *Store) ListReactionsByEvent(_ context.Context, evtID id.ID) ([]*reaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*reaction.Record
	for _, rec := range s.reactions {
		if rec.EventID.String() != evtID.String() {
			continue
		}
		result = append(result, copyReaction(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListReactions returns reaction records, optionally filtered, newest first.
func (s *Store) ListReactions(_ context.Context, opts reaction.ListOpts) ([]*reaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*reaction.Record, 0, len(s.reactions))
	for _, rec := range s.reactions {
		if opts.State != nil && rec.State != *opts.State {
			continue
		}
		result = append(result, copyReaction(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ──────────────────────────────────────────────────
// failure.Store
// ──────────────────────────────────────────────────

// PushFailure records a terminal reaction failure.
func (s *Store) PushFailure(_ context.Context, rec *failure.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[rec.ID.String()] = rec
	return nil
}

// ListFailures returns failure records, optionally filtered, newest first.
func (s *Store) ListFailures(_ context.Context, opts failure.ListOpts) ([]*failure.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*failure.Record, 0, len(s.failures))
	for _, rec := range s.failures {
		if opts.ActionType != "" && rec.ActionType != opts.ActionType {
			continue
		}
		if opts.Resolved != nil && rec.Resolved != *opts.Resolved {
			continue
		}
		if opts.From != nil && rec.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && rec.FailedAt.After(*opts.To) {
			continue
		}
		result = append(result, rec)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// GetFailure returns a failure record by ID.
func (s *Store) GetFailure(_ context.Context, flrID id.ID) (*failure.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.failures[flrID.String()]
	if !ok {
		return nil, cascade.ErrFailureNotFound
	}
	return rec, nil
}

// ResolveFailure marks a failure record as triaged.
func (s *Store) ResolveFailure(_ context.Context, flrID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.failures[flrID.String()]
	if !ok {
		return cascade.ErrFailureNotFound
	}

	now := time.Now().UTC()
	rec.Resolved = true
	rec.ResolvedAt = &now
	rec.UpdatedAt = now
	return nil
}

// PurgeFailures deletes failure records older than a threshold.
func (s *Store) PurgeFailures(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, rec := range s.failures {
		if rec.FailedAt.Before(before) {
			delete(s.failures, k)
			count++
		}
	}
	return count, nil
}

// CountFailures returns the number of unresolved failure records.
func (s *Store) CountFailures(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, rec := range s.failures {
		if !rec.Resolved {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// stats.Store
// ──────────────────────────────────────────────────

// IncrStats adds one execution to the bucket.
func (s *Store) IncrStats(_ context.Context, key stats.Key, success bool, processingMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.statBuckets[key]
	if !ok {
		b = &stats.Bucket{Key: key}
		s.statBuckets[key] = b
	}

	b.Count++
	if success {
		b.SuccessCount++
	} else {
		b.ErrorCount++
	}
	b.TotalProcessingMs += processingMs
	return nil
}

// ListStats returns all buckets for a given day.
func (s *Store) ListStats(_ context.Context, day string) ([]*stats.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*stats.Bucket
	for key, b := range s.statBuckets {
		if key.Day != day {
			continue
		}
		cp := *b
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Key.ActionType != result[j].Key.ActionType {
			return result[i].Key.ActionType < result[j].Key.ActionType
		}
		return result[i].Key.ReactionType < result[j].Key.ReactionType
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// scheduler.StateStore
// ──────────────────────────────────────────────────

// GetState returns the stored scheduler baseline for one user and kind.
func (s *Store) GetState(_ context.Context, kind, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.schedState[stateKey(kind, userID)], nil
}

// SetState stores the scheduler baseline for one user and kind.
func (s *Store) SetState(_ context.Context, kind, userID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedState[stateKey(kind, userID)] = value
	return nil
}

func stateKey(kind, userID string) string {
	return kind + "\x00" + userID
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// copyEvent returns a shallow copy of the event.
func copyEvent(evt *event.Event) *event.Event {
	cp := *evt
	return &cp
}

// copyReaction returns a shallow copy of the reaction record.
func copyReaction(rec *reaction.Record) *reaction.Record {
	cp := *rec
	return &cp
}

func matchEventOpts(evt *event.Event, opts event.ListOpts) bool {
	if opts.ActionType != "" && evt.ActionType != opts.ActionType {
		return false
	}
	if opts.Status != nil && evt.Status != *opts.Status {
		return false
	}
	if opts.From != nil && evt.CreatedAt.Before(*opts.From) {
		return false
	}
	if opts.To != nil && evt.CreatedAt.After(*opts.To) {
		return false
	}
	return true
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
