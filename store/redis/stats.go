package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xraph/cascade/stats"
)

// Stats buckets live in one hash per day, with one field per bucket counter:
// "<action>|<reaction>|count", "...|success", "...|error", "...|ms".
const (
	statsFieldCount   = "count"
	statsFieldSuccess = "success"
	statsFieldError   = "error"
	statsFieldMs      = "ms"
)

func statsField(key stats.Key, metric string) string {
	return key.ActionType + "|" + key.ReactionType + "|" + metric
}

func (s *Store) IncrStats(ctx context.Context, key stats.Key, success bool, processingMs int64) error {
	hashKey := hashStatsDay + key.Day

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, hashKey, statsField(key, statsFieldCount), 1)
	if success {
		pipe.HIncrBy(ctx, hashKey, statsField(key, statsFieldSuccess), 1)
	} else {
		pipe.HIncrBy(ctx, hashKey, statsField(key, statsFieldError), 1)
	}
	pipe.HIncrBy(ctx, hashKey, statsField(key, statsFieldMs), processingMs)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cascade/redis: incr stats: %w", err)
	}
	return nil
}

func (s *Store) ListStats(ctx context.Context, day string) ([]*stats.Bucket, error) {
	fields, err := s.rdb.HGetAll(ctx, hashStatsDay+day).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list stats: %w", err)
	}

	buckets := make(map[stats.Key]*stats.Bucket)
	for field, raw := range fields {
		parts := strings.SplitN(field, "|", 3)
		if len(parts) != 3 {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}

		key := stats.Key{Day: day, ActionType: parts[0], ReactionType: parts[1]}
		b, ok := buckets[key]
		if !ok {
			b = &stats.Bucket{Key: key}
			buckets[key] = b
		}
		switch parts[2] {
		case statsFieldCount:
			b.Count = value
		case statsFieldSuccess:
			b.SuccessCount = value
		case statsFieldError:
			b.ErrorCount = value
		case statsFieldMs:
			b.TotalProcessingMs = value
		}
	}

	result := make([]*stats.Bucket, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, b)
	}
	return result, nil
}
