package challenge

import (
	"context"
	"sync"
	"time"
)

// InMemoryChallengeRepository is an in-memory implementation of
// ChallengeRepository for testing and development.
type InMemoryChallengeRepository struct {
	mu         sync.RWMutex
	challenges map[string]*Challenge
}

// NewInMemoryChallengeRepository creates a new in-memory challenge repository.
func NewInMemoryChallengeRepository() *InMemoryChallengeRepository {
	return &InMemoryChallengeRepository{
		challenges: make(map[string]*Challenge),
	}
}

func copyChallenge(ch *Challenge) *Challenge {
	copied := *ch
	return &copied
}

// Create stores a freshly issued challenge.
func (r *InMemoryChallengeRepository) Create(ctx context.Context, challenge *Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.challenges[challenge.TokenHash] = copyChallenge(challenge)
	return nil
}

// GetByTokenHash returns the challenge with the given token hash.
func (r *InMemoryChallengeRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return copyChallenge(ch), nil
}

// Consume flips issued to consumed when the challenge is still live.
func (r *InMemoryChallengeRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return false, ErrChallengeNotFound
	}
	return applyConsume(ch, now), nil
}

// RecordFailedAttempt burns one attempt, locking the challenge at zero.
func (r *InMemoryChallengeRepository) RecordFailedAttempt(ctx context.Context, tokenHash string, now time.Time) (*Challenge, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return nil, false, ErrChallengeNotFound
	}
	if !applyFailedAttempt(ch, now) {
		return copyChallenge(ch), false, nil
	}
	return copyChallenge(ch), true, nil
}

// MarkExpired flips an issued challenge to expired.
func (r *InMemoryChallengeRepository) MarkExpired(ctx context.Context, tokenHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return ErrChallengeNotFound
	}
	if ch.Status == STATUS_ISSUED {
		ch.Status = STATUS_EXPIRED
	}
	return nil
}

// DeleteTerminalBefore removes finished challenges issued before the cutoff.
func (r *InMemoryChallengeRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for hash, ch := range r.challenges {
		if ch.Status != STATUS_ISSUED && ch.IssuedAt.Before(cutoff) {
			delete(r.challenges, hash)
			removed++
		}
	}
	return removed, nil
}
