package lockout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLockoutRepository implements LockoutRepository using in-memory
// storage. Suitable for testing and development.
type InMemoryLockoutRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*LockRecord
}

// NewInMemoryLockoutRepository creates a new in-memory lockout repository
func NewInMemoryLockoutRepository() *InMemoryLockoutRepository {
	return &InMemoryLockoutRepository{
		records: make(map[uuid.UUID]*LockRecord),
	}
}

// RecordFailure applies one failure transition under the repository lock
func (r *InMemoryLockoutRepository) RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time, policy FailurePolicy) (*LockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := applyFailure(r.records[userID], userID, now, policy)
	r.records[userID] = record

	result := *record
	return &result, nil
}

// Get returns the user's record
func (r *InMemoryLockoutRepository) Get(ctx context.Context, userID uuid.UUID) (*LockRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[userID]
	if !ok {
		return nil, ErrLockRecordNotFound
	}
	result := *record
	return &result, nil
}

// Delete removes the user's record
func (r *InMemoryLockoutRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, userID)
	return nil
}

// DeleteStale removes records with no active lock and no recent failure
func (r *InMemoryLockoutRepository) DeleteStale(ctx context.Context, now, staleBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for userID, record := range r.records {
		if isStale(record, now, staleBefore) {
			delete(r.records, userID)
			deleted++
		}
	}
	return deleted, nil
}

// applyFailure is the single failure transition, shared by the in-memory and
// file repositories; the Postgres repository runs the same logic in SQL.
func applyFailure(record *LockRecord, userID uuid.UUID, now time.Time, policy FailurePolicy) *LockRecord {
	if record == nil {
		record = &LockRecord{UserID: userID}
	}

	locked := record.LockedUntil != nil && record.LockedUntil.After(now)
	windowElapsed := record.FailureCount > 0 && !record.WindowStartAt.After(now.Add(-policy.Window))

	if !locked && windowElapsed {
		record.FailureCount = 1
		record.WindowStartAt = now
	} else {
		record.FailureCount++
		if record.FailureCount == 1 {
			record.WindowStartAt = now
		}
	}
	record.LastFailureAt = now

	switch {
	case locked:
		// An active lock stands as issued.
	case record.FailureCount >= policy.Threshold:
		until := now.Add(policy.LockDuration)
		record.LockedUntil = &until
	default:
		record.LockedUntil = nil
	}
	return record
}

func isStale(record *LockRecord, now, staleBefore time.Time) bool {
	if record.LockedUntil != nil && record.LockedUntil.After(now) {
		return false
	}
	return record.LastFailureAt.Before(staleBefore)
}
