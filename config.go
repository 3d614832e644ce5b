package cascade

import "time"

// Config holds the configuration for a Cascade instance.
type Config struct {
	// PollInterval is how often the execution engine checks for received events.
	PollInterval time.Duration

	// BatchSize is the maximum number of events claimed per poll cycle.
	BatchSize int

	// MaxAttempts is the total number of execution attempts per reaction,
	// first try included.
	MaxAttempts int

	// RetrySchedule defines the delays between reaction attempts. When the
	// schedule is shorter than the attempt series, the last entry repeats.
	RetrySchedule []time.Duration

	// SchedulerInterval is the tick period for registered pollers.
	SchedulerInterval time.Duration

	// SchedulerConcurrency bounds concurrent per-user polls per scheduler.
	SchedulerConcurrency int

	// UserCacheTTL is how long a scheduler's active-user discovery is cached.
	UserCacheTTL time.Duration
}

// DefaultRetrySchedule defines the default delays between reaction attempts.
var DefaultRetrySchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:         1 * time.Second,
		BatchSize:            10,
		MaxAttempts:          3,
		RetrySchedule:        DefaultRetrySchedule,
		SchedulerInterval:    5 * time.Second,
		SchedulerConcurrency: 5,
		UserCacheTTL:         5 * time.Second,
	}
}
