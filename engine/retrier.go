package engine

import (
	"time"

	"github.com/xraph/cascade/executor"
)

// Decision is the outcome of evaluating a reaction attempt.
type Decision int

const (
	// Succeeded means the executor reported success.
	Succeeded Decision = iota

	// Retry means the attempt failed and budget remains.
	Retry

	// Exhausted means the attempt failed and the budget is spent.
	Exhausted
)

// Retrier decides what to do after a reaction attempt.
type Retrier struct {
	maxAttempts int
	schedule    []time.Duration
}

// NewRetrier creates a retrier with the given attempt budget and inter-attempt
// delay schedule.
func NewRetrier(maxAttempts int, schedule []time.Duration) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{maxAttempts: maxAttempts, schedule: schedule}
}

// Decide determines what to do with a reaction after an attempt. Both a
// returned error and a logical success=false result count as failure.
func (r *Retrier) Decide(res executor.Result, err error, attempt int) Decision {
	if err == nil && res.Success {
		return Succeeded
	}
	if attempt < r.maxAttempts {
		return Retry
	}
	return Exhausted
}

// MaxAttempts returns the total attempt budget.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// Delay returns the pause before the attempt following attemptCount. The
// schedule is indexed by completed attempts and its last entry repeats.
func (r *Retrier) Delay(attemptCount int) time.Duration {
	if len(r.schedule) == 0 {
		return 0
	}
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return r.schedule[idx]
}
