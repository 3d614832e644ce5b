package redis

import (
	"context"
	"fmt"
)

func (s *Store) GetState(ctx context.Context, kind, userID string) (string, error) {
	value, err := s.rdb.Get(ctx, schedStateKey(kind, userID)).Result()
	if err != nil {
		if isRedisNil(err) {
			return "", nil
		}
		return "", fmt.Errorf("cascade/redis: get scheduler state: %w", err)
	}
	return value, nil
}

func (s *Store) SetState(ctx context.Context, kind, userID, value string) error {
	if err := s.rdb.Set(ctx, schedStateKey(kind, userID), value, 0).Err(); err != nil {
		return fmt.Errorf("cascade/redis: set scheduler state: %w", err)
	}
	return nil
}
