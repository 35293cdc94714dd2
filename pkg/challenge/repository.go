package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Challenge statuses. A challenge never becomes usable again once it leaves
// issued: consumed on the single successful verify, locked when attempts run
// out, expired lazily on a read past ExpiresAt.
const (
	STATUS_ISSUED   = "issued"
	STATUS_CONSUMED = "consumed"
	STATUS_LOCKED   = "locked"
	STATUS_EXPIRED  = "expired"
)

// ErrChallengeNotFound is returned when no challenge matches a token hash.
var ErrChallengeNotFound = errors.New("challenge not found")

// Challenge is the server-side record of one pending step-up. Only the
// SHA-256 hash of the opaque token is stored; the raw token is returned to
// the caller once at issuance.
type Challenge struct {
	TokenHash         string    `json:"token_hash"`
	UserID            uuid.UUID `json:"user_id"`
	Method            string    `json:"method"`
	Status            string    `json:"status"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
}

// ChallengeRepository persists challenges. Consume and RecordFailedAttempt
// are single conditional updates so concurrent submissions against one token
// serialize at the storage layer: at most one Consume wins, and every
// decrement lands exactly once.
type ChallengeRepository interface {
	// Create stores a freshly issued challenge.
	Create(ctx context.Context, challenge *Challenge) error

	// GetByTokenHash returns the challenge or ErrChallengeNotFound.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Challenge, error)

	// Consume flips issued to consumed when attempts remain and the expiry
	// has not passed. Returns false when the challenge was not consumable.
	Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// RecordFailedAttempt decrements the attempt budget and flips the
	// challenge to locked at zero, in one conditional update. Returns the
	// updated challenge and false when the challenge was not in a state
	// that accepts attempts.
	RecordFailedAttempt(ctx context.Context, tokenHash string, now time.Time) (*Challenge, bool, error)

	// MarkExpired flips an issued challenge to expired. Called lazily when
	// a read observes the expiry has passed.
	MarkExpired(ctx context.Context, tokenHash string, now time.Time) error

	// DeleteTerminalBefore removes consumed, locked and expired challenges
	// issued before the cutoff. Maintenance only; issued rows always stay.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// consumable reports whether a challenge can still accept an attempt.
func consumable(ch *Challenge, now time.Time) bool {
	return ch.Status == STATUS_ISSUED && ch.AttemptsRemaining > 0 && ch.ExpiresAt.After(now)
}

// applyConsume flips the challenge to consumed when possible.
// Caller must hold the repository lock.
func applyConsume(ch *Challenge, now time.Time) bool {
	if !consumable(ch, now) {
		return false
	}
	ch.Status = STATUS_CONSUMED
	return true
}

// applyFailedAttempt burns one attempt, locking the challenge at zero.
// Caller must hold the repository lock.
func applyFailedAttempt(ch *Challenge, now time.Time) bool {
	if !consumable(ch, now) {
		return false
	}
	ch.AttemptsRemaining--
	if ch.AttemptsRemaining <= 0 {
		ch.Status = STATUS_LOCKED
	}
	return true
}
