package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	cascade "github.com/xraph/cascade"
	"github.com/xraph/cascade/failure"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
)

// failureModel is the JSON representation stored in Redis.
type failureModel struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	MappingID    string         `json:"mapping_id"`
	ActionType   string         `json:"action_type"`
	ReactionType string         `json:"reaction_type"`
	Payload      map[string]any `json:"payload,omitempty"`
	Error        string         `json:"error"`
	RetryCount   int            `json:"retry_count"`
	Resolved     bool           `json:"resolved"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	FailedAt     time.Time      `json:"failed_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toFailureModel(rec *failure.Record) *failureModel {
	m := &failureModel{
		ID:           rec.ID.String(),
		EventID:      rec.EventID.String(),
		ActionType:   rec.ActionType,
		ReactionType: rec.ReactionType,
		Payload:      rec.Payload,
		Error:        rec.Error,
		RetryCount:   rec.RetryCount,
		Resolved:     rec.Resolved,
		ResolvedAt:   rec.ResolvedAt,
		FailedAt:     rec.FailedAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if !rec.MappingID.IsNil() {
		m.MappingID = rec.MappingID.String()
	}
	return m
}

func fromFailureModel(m *failureModel) (*failure.Record, error) {
	flrID, err := id.ParseFailureID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse failure ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	var mapID id.ID
	if m.MappingID != "" {
		mapID, err = id.ParseMappingID(m.MappingID)
		if err != nil {
			return nil, fmt.Errorf("parse mapping ID %q: %w", m.MappingID, err)
		}
	}
	return &failure.Record{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           flrID,
		EventID:      evtID,
		MappingID:    mapID,
		ActionType:   m.ActionType,
		ReactionType: m.ReactionType,
		Payload:      m.Payload,
		Error:        m.Error,
		RetryCount:   m.RetryCount,
		Resolved:     m.Resolved,
		ResolvedAt:   m.ResolvedAt,
		FailedAt:     m.FailedAt,
	}, nil
}

func (s *Store) PushFailure(ctx context.Context, rec *failure.Record) error {
	m := toFailureModel(rec)
	key := entityKey(prefixFailure, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("cascade/redis: push failure: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zFailureAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	if !m.Resolved {
		pipe.ZAdd(ctx, zFailureUnresolved, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cascade/redis: push failure indexes: %w", err)
	}
	return nil
}

func (s *Store) ListFailures(ctx context.Context, opts failure.ListOpts) ([]*failure.Record, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zFailureAll, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list failures: %w", err)
	}

	result := make([]*failure.Record, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m failureModel
		if err := s.getEntity(ctx, entityKey(prefixFailure, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.ActionType != "" && m.ActionType != opts.ActionType {
			continue
		}
		if opts.Resolved != nil && m.Resolved != *opts.Resolved {
			continue
		}
		rec, err := fromFailureModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetFailure(ctx context.Context, flrID id.ID) (*failure.Record, error) {
	var m failureModel
	if err := s.getEntity(ctx, entityKey(prefixFailure, flrID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, cascade.ErrFailureNotFound
		}
		return nil, fmt.Errorf("cascade/redis: get failure: %w", err)
	}
	return fromFailureModel(&m)
}

func (s *Store) ResolveFailure(ctx context.Context, flrID id.ID) error {
	key := entityKey(prefixFailure, flrID.String())

	var m failureModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return cascade.ErrFailureNotFound
		}
		return fmt.Errorf("cascade/redis: resolve failure: %w", err)
	}

	resolvedAt := now()
	m.Resolved = true
	m.ResolvedAt = &resolvedAt
	m.UpdatedAt = resolvedAt

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("cascade/redis: resolve failure: %w", err)
	}
	return s.rdb.ZRem(ctx, zFailureUnresolved, m.ID).Err()
}

func (s *Store) PurgeFailures(ctx context.Context, before time.Time) (int64, error) {
	maxScore := scoreFromTime(before)
	ids, err := s.zRangeByScoreIDs(ctx, zFailureAll, math.Inf(-1), maxScore)
	if err != nil {
		return 0, fmt.Errorf("cascade/redis: purge failures list: %w", err)
	}

	var count int64
	for _, flrID := range ids {
		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixFailure, flrID))
		pipe.ZRem(ctx, zFailureAll, flrID)
		pipe.ZRem(ctx, zFailureUnresolved, flrID)
		if _, err := pipe.Exec(ctx); err != nil {
			return count, fmt.Errorf("cascade/redis: purge failure: %w", err)
		}
		count++
	}

	return count, nil
}

func (s *Store) CountFailures(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zFailureUnresolved).Result()
	if err != nil {
		return 0, fmt.Errorf("cascade/redis: count failures: %w", err)
	}
	return count, nil
}
