package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// UserContactResolver looks up delivery addresses for users. The host
// application implements it against its own user store; this package only
// holds verification state, never account records.
type UserContactResolver interface {
	// EmailForUser returns the user's notification email address.
	EmailForUser(ctx context.Context, userID uuid.UUID) (string, error)
}

// StaticContactResolver is a map-backed UserContactResolver for tests and
// in-memory deployments.
type StaticContactResolver struct {
	mu     sync.RWMutex
	emails map[uuid.UUID]string
}

// NewStaticContactResolver creates an empty resolver
func NewStaticContactResolver() *StaticContactResolver {
	return &StaticContactResolver{emails: make(map[uuid.UUID]string)}
}

// SetEmail registers a user's email address
func (r *StaticContactResolver) SetEmail(userID uuid.UUID, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails[userID] = email
}

// EmailForUser returns the registered address
func (r *StaticContactResolver) EmailForUser(ctx context.Context, userID uuid.UUID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email, ok := r.emails[userID]
	if !ok {
		return "", fmt.Errorf("no email on record for user %s", userID)
	}
	return email, nil
}
