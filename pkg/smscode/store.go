package smscode

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoCodePending is returned when no code is outstanding for the user,
	// either because none was delivered or because it already expired.
	ErrNoCodePending = errors.New("no sms code pending")

	// ErrTooManyAttempts is returned when the attempt bound for the
	// outstanding code is exhausted. The code is discarded at that point.
	ErrTooManyAttempts = errors.New("too many sms code attempts")
)

// CodeStore holds at most one outstanding code per user. Implementations must
// expire entries after the TTL passed to Put, and IncrAttempts must be an
// atomic increment so concurrent verifications cannot slip past the bound.
type CodeStore interface {
	// Put stores a code for the user, replacing any outstanding one and
	// resetting its attempt count.
	Put(ctx context.Context, userID uuid.UUID, code string, ttl time.Duration) error

	// Get returns the outstanding code, or ErrNoCodePending.
	Get(ctx context.Context, userID uuid.UUID) (string, error)

	// IncrAttempts counts one verification attempt and returns the total so
	// far, including this one. The counter shares the code's lifetime.
	IncrAttempts(ctx context.Context, userID uuid.UUID, ttl time.Duration) (int, error)

	// Delete removes the outstanding code and its attempt counter.
	Delete(ctx context.Context, userID uuid.UUID) error
}
