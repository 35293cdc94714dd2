package smscode

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type codeRecord struct {
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

// InMemoryCodeStore implements CodeStore with in-memory storage and lazy
// expiry. Suitable for testing and single-instance deployments.
type InMemoryCodeStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]*codeRecord
	now   func() time.Time
}

// NewInMemoryCodeStore creates a new in-memory code store
func NewInMemoryCodeStore() *InMemoryCodeStore {
	return &InMemoryCodeStore{
		codes: make(map[uuid.UUID]*codeRecord),
		now:   time.Now,
	}
}

// WithClock overrides the store's time source, used by tests to force expiry
func (s *InMemoryCodeStore) WithClock(now func() time.Time) *InMemoryCodeStore {
	s.now = now
	return s
}

// Put stores a code, replacing any outstanding one
func (s *InMemoryCodeStore) Put(ctx context.Context, userID uuid.UUID, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[userID] = &codeRecord{
		Code:      code,
		ExpiresAt: s.now().Add(ttl),
	}
	return nil
}

// Get returns the outstanding code, dropping it lazily once expired
func (s *InMemoryCodeStore) Get(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[userID]
	if !ok {
		return "", ErrNoCodePending
	}
	if s.now().After(record.ExpiresAt) {
		delete(s.codes, userID)
		return "", ErrNoCodePending
	}
	return record.Code, nil
}

// IncrAttempts counts one verification attempt
func (s *InMemoryCodeStore) IncrAttempts(ctx context.Context, userID uuid.UUID, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[userID]
	if !ok || s.now().After(record.ExpiresAt) {
		return 0, ErrNoCodePending
	}
	record.Attempts++
	return record.Attempts, nil
}

// Delete removes the outstanding code
func (s *InMemoryCodeStore) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, userID)
	return nil
}
