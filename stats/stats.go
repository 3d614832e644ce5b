// Package stats tracks per-day aggregate counters for observability
// dashboards. Counters are monotonically increasing and carry no
// control-flow significance.
package stats

import (
	"context"
	"time"
)

// DayFormat is the bucket key date layout.
const DayFormat = "2006-01-02"

// Key identifies one aggregate bucket.
type Key struct {
	// Day is the UTC date in DayFormat.
	Day string

	// ActionType is the triggering action type.
	ActionType string

	// ReactionType is the reaction name, or empty for event-level buckets.
	ReactionType string
}

// KeyFor builds a bucket key for the given instant.
func KeyFor(at time.Time, actionType, reactionType string) Key {
	return Key{
		Day:          at.UTC().Format(DayFormat),
		ActionType:   actionType,
		ReactionType: reactionType,
	}
}

// Bucket holds one key's counters.
type Bucket struct {
	Key Key `json:"key"`

	// Count is the total number of recorded executions.
	Count int64 `json:"count"`

	// SuccessCount and ErrorCount partition Count by outcome.
	SuccessCount int64 `json:"success_count"`
	ErrorCount   int64 `json:"error_count"`

	// TotalProcessingMs is the summed execution duration.
	TotalProcessingMs int64 `json:"total_processing_ms"`
}

// Store defines the persistence contract for aggregate stats.
type Store interface {
	// IncrStats adds one execution to the bucket. Implementations must keep
	// counters monotonically increasing under concurrent writers.
	IncrStats(ctx context.Context, key Key, success bool, processingMs int64) error

	// ListStats returns all buckets for a given day.
	ListStats(ctx context.Context, day string) ([]*Bucket, error)
}
