package lockout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockRecordNotFound is returned when a user has no failure record
var ErrLockRecordNotFound = errors.New("lock record not found")

// LockRecord tracks verification failures for one user. The window anchors at
// the first failure; LockedUntil is set while a lockout is in force and may
// linger past its expiry until the sweep or the next transition clears it.
type LockRecord struct {
	UserID        uuid.UUID  `json:"user_id"`
	FailureCount  int        `json:"failure_count"`
	WindowStartAt time.Time  `json:"window_start_at"`
	LastFailureAt time.Time  `json:"last_failure_at"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
}

// FailurePolicy carries the thresholds a failure transition is evaluated
// against.
type FailurePolicy struct {
	// Threshold is the failure count that triggers a lockout
	Threshold int
	// Window is how far apart failures still count together
	Window time.Duration
	// LockDuration is how long a triggered lockout lasts
	LockDuration time.Duration
}

// LockoutRepository defines storage for lockout state. RecordFailure must
// apply the whole transition as one atomic operation so concurrent failures
// cannot lose increments or double-trigger.
type LockoutRepository interface {
	// RecordFailure counts one failure at now under the policy and returns
	// the resulting record: the count resets when the window elapsed and no
	// lock is in force, and LockedUntil is set when the count crosses the
	// threshold.
	RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time, policy FailurePolicy) (*LockRecord, error)

	// Get returns the user's record, or ErrLockRecordNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*LockRecord, error)

	// Delete removes the user's record.
	Delete(ctx context.Context, userID uuid.UUID) error

	// DeleteStale removes records with no active lock at now and no failure
	// since staleBefore, returning how many went.
	DeleteStale(ctx context.Context, now, staleBefore time.Time) (int, error)
}
