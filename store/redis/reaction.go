package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	cascade "github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
	"github.com/xraph/cascade/reaction"
)

// reactionModel is the JSON representation stored in Redis.
type reactionModel struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	MappingID    string         `json:"mapping_id"`
	ReactionType string         `json:"reaction_type"`
	State        string         `json:"state"`
	Output       map[string]any `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	ExecutionMs  int64          `json:"execution_ms,omitempty"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toReactionModel(rec *reaction.Record) *reactionModel {
	return &reactionModel{
		ID:           rec.ID.String(),
		EventID:      rec.EventID.String(),
		MappingID:    rec.MappingID.String(),
		ReactionType: rec.ReactionType,
		State:        string(rec.State),
		Output:       rec.Output,
		Error:        rec.Error,
		ExecutionMs:  rec.ExecutionMs,
		ExecutedAt:   rec.ExecutedAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func fromReactionModel(m *reactionModel) (*reaction.Record, error) {
	recID, err := id.ParseReactionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse reaction ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	mapID, err := id.ParseMappingID(m.MappingID)
	if err != nil {
		return nil, fmt.Errorf("parse mapping ID %q: %w", m.MappingID, err)
	}
	return &reaction.Record{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           recID,
		EventID:      evtID,
		MappingID:    mapID,
		ReactionType: m.ReactionType,
		State:        reaction.State(m.State),
		Output:       m.Output,
		Error:        m.Error,
		ExecutionMs:  m.ExecutionMs,
		ExecutedAt:   m.ExecutedAt,
	}, nil
}

func (s *Store) CreateReaction(ctx context.Context, rec *reaction.Record) error {
	m := toReactionModel(rec)
	key := entityKey(prefixReaction, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("cascade/redis: create reaction: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zReactionAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zReactionEvent+m.EventID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cascade/redis: create reaction indexes: %w", err)
	}
	return nil
}

func (s *Store) UpdateReaction(ctx context.Context, rec *reaction.Record) error {
	m := toReactionModel(rec)
	m.UpdatedAt = now()
	key := entityKey(prefixReaction, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("cascade/redis: update reaction: %w", err)
	}
	return nil
}

func (s *Store) GetReaction(ctx context.Context, recID id.ID) (*reaction.Record, error) {
	var m reactionModel
	if err := s.getEntity(ctx, entityKey(prefixReaction, recID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, cascade.ErrReactionNotFound
		}
		return nil, fmt.Errorf("cascade/redis: get reaction: %w", err)
	}
	return fromReactionModel(&m)
}

func (s *Store) ListReactionsByEvent(ctx context.Context, evtID id.ID) ([]*reaction.Record, error) {
	ids, err := s.rdb.ZRange(ctx, zReactionEvent+evtID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list reactions by event: %w", err)
	}

	result := make([]*reaction.Record, 0, len(ids))
	for _, recID := range ids {
		var m reactionModel
		if err := s.getEntity(ctx, entityKey(prefixReaction, recID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		rec, err := fromReactionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	return result, nil
}

func (s *Store) ListReactions(ctx context.Context, opts reaction.ListOpts) ([]*reaction.Record, error) {
	ids, err := s.rdb.ZRange(ctx, zReactionAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list reactions: %w", err)
	}

	result := make([]*reaction.Record, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m reactionModel
		if err := s.getEntity(ctx, entityKey(prefixReaction, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && reaction.State(m.State) != *opts.State {
			continue
		}
		rec, err := fromReactionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
