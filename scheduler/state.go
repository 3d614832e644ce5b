package scheduler

import "context"

// StateStore persists per-user, per-kind scheduler baselines. Low-frequency
// pollers keep their last observed value here so a restart does not replay
// transitions that never happened.
type StateStore interface {
	// GetState returns the stored baseline for one user and scheduler kind.
	// A user with no baseline yet returns ("", nil).
	GetState(ctx context.Context, kind, userID string) (string, error)

	// SetState stores the baseline for one user and scheduler kind.
	SetState(ctx context.Context, kind, userID, value string) error
}
