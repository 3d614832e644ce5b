package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	cascade "github.com/xraph/cascade"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
)

// eventModel is the JSON representation stored in Redis.
type eventModel struct {
	ID             string         `json:"id"`
	ActionType     string         `json:"action_type"`
	UserID         string         `json:"user_id,omitempty"`
	MappingID      string         `json:"mapping_id,omitempty"`
	Source         string         `json:"source"`
	Payload        map[string]any `json:"payload,omitempty"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
	ProcessingMs   int64          `json:"processing_ms,omitempty"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	m := &eventModel{
		ID:             evt.ID.String(),
		ActionType:     evt.ActionType,
		UserID:         evt.UserID,
		Source:         evt.Source,
		Payload:        evt.Payload,
		Status:         string(evt.Status),
		Error:          evt.Error,
		ProcessingMs:   evt.ProcessingMs,
		ProcessedAt:    evt.ProcessedAt,
		IdempotencyKey: evt.IdempotencyKey,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}
	if !evt.MappingID.IsNil() {
		m.MappingID = evt.MappingID.String()
	}
	return m
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	var mapID id.ID
	if m.MappingID != "" {
		mapID, err = id.ParseMappingID(m.MappingID)
		if err != nil {
			return nil, fmt.Errorf("parse mapping ID %q: %w", m.MappingID, err)
		}
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		ActionType:     m.ActionType,
		UserID:         m.UserID,
		MappingID:      mapID,
		Source:         m.Source,
		Payload:        m.Payload,
		Status:         event.Status(m.Status),
		Error:          m.Error,
		ProcessingMs:   m.ProcessingMs,
		ProcessedAt:    m.ProcessedAt,
		IdempotencyKey: m.IdempotencyKey,
	}, nil
}

// claimScript atomically claims the oldest pending event IDs so that
// concurrent engines never process the same event twice.
// KEYS[1] = cascade:z:evt:pending
// ARGV[1] = limit
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '+inf', 'LIMIT', 0, tonumber(ARGV[1]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
end
return ids
`)

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	key := entityKey(prefixEvent, m.ID)

	// Idempotency check via SET NX.
	if m.IdempotencyKey != "" {
		ok, err := s.rdb.SetNX(ctx, uniqueEventIdem+m.IdempotencyKey, m.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("cascade/redis: create event idem check: %w", err)
		}
		if !ok {
			return cascade.ErrDuplicateIdempotencyKey
		}
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("cascade/redis: create event: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zEventAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.UserID != "" {
		pipe.ZAdd(ctx, zEventUser+m.UserID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}
	if m.Status == string(event.StatusReceived) {
		pipe.ZAdd(ctx, zEventPending, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cascade/redis: create event indexes: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, cascade.ErrEventNotFound
		}
		return nil, fmt.Errorf("cascade/redis: get event: %w", err)
	}
	return fromEventModel(&m)
}

func (s *Store) ListPendingEvents(ctx context.Context, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := claimScript.Run(ctx, s.rdb, []string{zEventPending}, limit).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cascade/redis: claim pending events: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	result := make([]*event.Event, 0, len(ids))
	for _, evtID := range ids {
		var m eventModel
		if err := s.getEntity(ctx, entityKey(prefixEvent, evtID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("cascade/redis: claim pending get: %w", err)
		}
		if m.Status != string(event.StatusReceived) {
			continue
		}
		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}

	return result, nil
}

func (s *Store) UpdateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	m.UpdatedAt = now()
	key := entityKey(prefixEvent, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("cascade/redis: update event: %w", err)
	}

	// Claimed events leave the pending set; nothing returns them to it.
	if m.Status != string(event.StatusReceived) {
		s.rdb.ZRem(ctx, zEventPending, m.ID)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zEventAll, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list events: %w", err)
	}

	result, err := s.collectEvents(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListEventsByUser(ctx context.Context, userID string, opts event.ListOpts) ([]*event.Event, error) {
	ids, err := s.rdb.ZRange(ctx, zEventUser+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list events by user: %w", err)
	}

	result, err := s.collectEvents(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// collectEvents fetches events by ID in reverse (newest first) applying
// non-score filters.
func (s *Store) collectEvents(ctx context.Context, ids []string, opts event.ListOpts) ([]*event.Event, error) {
	result := make([]*event.Event, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m eventModel
		if err := s.getEntity(ctx, entityKey(prefixEvent, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.ActionType != "" && m.ActionType != opts.ActionType {
			continue
		}
		if opts.Status != nil && event.Status(m.Status) != *opts.Status {
			continue
		}
		if opts.From != nil && m.CreatedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && m.CreatedAt.After(*opts.To) {
			continue
		}
		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}
	return result, nil
}
