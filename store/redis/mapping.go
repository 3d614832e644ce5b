package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	cascade "github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
	"github.com/xraph/cascade/mapping"
)

// mappingModel is the JSON representation stored in Redis. Action and
// reaction specs serialize through their own JSON tags.
type mappingModel struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Name      string                 `json:"name,omitempty"`
	Active    bool                   `json:"active"`
	Action    mapping.ActionSpec     `json:"action"`
	Reactions []mapping.ReactionSpec `json:"reactions"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func toMappingModel(m *mapping.Mapping) *mappingModel {
	return &mappingModel{
		ID:        m.ID.String(),
		UserID:    m.UserID,
		Name:      m.Name,
		Active:    m.Active,
		Action:    m.Action,
		Reactions: m.Reactions,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromMappingModel(m *mappingModel) (*mapping.Mapping, error) {
	mapID, err := id.ParseMappingID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse mapping ID %q: %w", m.ID, err)
	}
	return &mapping.Mapping{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        mapID,
		UserID:    m.UserID,
		Name:      m.Name,
		Active:    m.Active,
		Action:    m.Action,
		Reactions: m.Reactions,
	}, nil
}

func (s *Store) CreateMapping(ctx context.Context, m *mapping.Mapping) error {
	model := toMappingModel(m)
	key := entityKey(prefixMapping, model.ID)

	if err := s.setEntity(ctx, key, model); err != nil {
		return fmt.Errorf("cascade/redis: create mapping: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zMappingAll, goredis.Z{Score: scoreFromTime(model.CreatedAt), Member: model.ID})
	if model.UserID != "" {
		pipe.ZAdd(ctx, zMappingUser+model.UserID, goredis.Z{Score: scoreFromTime(model.CreatedAt), Member: model.ID})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cascade/redis: create mapping indexes: %w", err)
	}
	return nil
}

func (s *Store) GetMapping(ctx context.Context, mapID id.ID) (*mapping.Mapping, error) {
	var m mappingModel
	if err := s.getEntity(ctx, entityKey(prefixMapping, mapID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, cascade.ErrMappingNotFound
		}
		return nil, fmt.Errorf("cascade/redis: get mapping: %w", err)
	}
	return fromMappingModel(&m)
}

func (s *Store) UpdateMapping(ctx context.Context, m *mapping.Mapping) error {
	key := entityKey(prefixMapping, m.ID.String())

	var existing mappingModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isRedisNil(err) {
			return cascade.ErrMappingNotFound
		}
		return fmt.Errorf("cascade/redis: update mapping: %w", err)
	}

	model := toMappingModel(m)
	model.CreatedAt = existing.CreatedAt
	model.UpdatedAt = now()

	if err := s.setEntity(ctx, key, model); err != nil {
		return fmt.Errorf("cascade/redis: update mapping: %w", err)
	}

	// Reindex when ownership changed.
	if existing.UserID != model.UserID {
		pipe := s.rdb.Pipeline()
		if existing.UserID != "" {
			pipe.ZRem(ctx, zMappingUser+existing.UserID, model.ID)
		}
		if model.UserID != "" {
			pipe.ZAdd(ctx, zMappingUser+model.UserID, goredis.Z{Score: scoreFromTime(model.CreatedAt), Member: model.ID})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("cascade/redis: update mapping indexes: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteMapping(ctx context.Context, mapID id.ID) error {
	key := entityKey(prefixMapping, mapID.String())

	var m mappingModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return cascade.ErrMappingNotFound
		}
		return fmt.Errorf("cascade/redis: delete mapping: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, zMappingAll, m.ID)
	if m.UserID != "" {
		pipe.ZRem(ctx, zMappingUser+m.UserID, m.ID)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cascade/redis: delete mapping indexes: %w", err)
	}
	return nil
}

func (s *Store) ListMappings(ctx context.Context, opts mapping.ListOpts) ([]*mapping.Mapping, error) {
	indexKey := zMappingAll
	if opts.UserID != "" {
		indexKey = zMappingUser + opts.UserID
	}

	ids, err := s.rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list mappings: %w", err)
	}

	result := make([]*mapping.Mapping, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m mappingModel
		if err := s.getEntity(ctx, entityKey(prefixMapping, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.ActionType != "" && m.Action.Type != opts.ActionType {
			continue
		}
		if opts.Active != nil && m.Active != *opts.Active {
			continue
		}
		mp, err := fromMappingModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, mp)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetOwnedActive(ctx context.Context, mapID id.ID, userID string) (*mapping.Mapping, error) {
	m, err := s.GetMapping(ctx, mapID)
	if err != nil {
		return nil, err
	}
	if !m.Active || m.UserID != userID {
		return nil, cascade.ErrMappingNotFound
	}
	return m, nil
}

func (s *Store) ListActiveByAction(ctx context.Context, actionType string) ([]*mapping.Mapping, error) {
	active := true
	return s.ListMappings(ctx, mapping.ListOpts{ActionType: actionType, Active: &active})
}

func (s *Store) ListActiveByOwnerAndAction(ctx context.Context, userID, actionType string) ([]*mapping.Mapping, error) {
	active := true
	return s.ListMappings(ctx, mapping.ListOpts{UserID: userID, ActionType: actionType, Active: &active})
}

func (s *Store) ListActiveUserIDs(ctx context.Context, actionPrefix string) ([]string, error) {
	ids, err := s.rdb.ZRange(ctx, zMappingAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list active user ids: %w", err)
	}

	seen := make(map[string]bool)
	for _, mapID := range ids {
		var m mappingModel
		if err := s.getEntity(ctx, entityKey(prefixMapping, mapID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !m.Active || m.UserID == "" {
			continue
		}
		if !strings.HasPrefix(m.Action.Type, actionPrefix) {
			continue
		}
		seen[m.UserID] = true
	}

	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) SetMappingActive(ctx context.Context, mapID id.ID, active bool) error {
	key := entityKey(prefixMapping, mapID.String())

	var m mappingModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return cascade.ErrMappingNotFound
		}
		return fmt.Errorf("cascade/redis: set mapping active: %w", err)
	}

	m.Active = active
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("cascade/redis: set mapping active: %w", err)
	}
	return nil
}
