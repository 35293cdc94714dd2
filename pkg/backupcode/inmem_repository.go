package backupcode

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryBackupCodeRepository implements BackupCodeRepository using
// in-memory storage. Suitable for testing and development.
type InMemoryBackupCodeRepository struct {
	mu    sync.RWMutex
	codes map[uuid.UUID][]BackupCode
}

// NewInMemoryBackupCodeRepository creates a new in-memory backup code repository
func NewInMemoryBackupCodeRepository() *InMemoryBackupCodeRepository {
	return &InMemoryBackupCodeRepository{
		codes: make(map[uuid.UUID][]BackupCode),
	}
}

// ReplaceUnused swaps the user's unused codes for the new batch
func (r *InMemoryBackupCodeRepository) ReplaceUnused(ctx context.Context, userID uuid.UUID, codes []BackupCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.codes[userID][:0:0]
	for _, code := range r.codes[userID] {
		if code.Used {
			kept = append(kept, code)
		}
	}
	r.codes[userID] = append(kept, codes...)
	return nil
}

// Insert stores additional codes
func (r *InMemoryBackupCodeRepository) Insert(ctx context.Context, codes []BackupCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, code := range codes {
		r.codes[code.UserID] = append(r.codes[code.UserID], code)
	}
	return nil
}

// ListUnused returns the user's unused codes
func (r *InMemoryBackupCodeRepository) ListUnused(ctx context.Context, userID uuid.UUID) ([]BackupCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unused []BackupCode
	for _, code := range r.codes[userID] {
		if !code.Used {
			unused = append(unused, code)
		}
	}
	return unused, nil
}

// MarkUsed flips a code to used if it still is unused
func (r *InMemoryBackupCodeRepository) MarkUsed(ctx context.Context, userID, codeID uuid.UUID, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, code := range r.codes[userID] {
		if code.ID == codeID && !code.Used {
			at := usedAt
			r.codes[userID][i].Used = true
			r.codes[userID][i].UsedAt = &at
			return true, nil
		}
	}
	return false, nil
}

// DeleteUnused removes the user's unused codes
func (r *InMemoryBackupCodeRepository) DeleteUnused(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.codes[userID][:0:0]
	deleted := 0
	for _, code := range r.codes[userID] {
		if code.Used {
			kept = append(kept, code)
		} else {
			deleted++
		}
	}
	r.codes[userID] = kept
	return deleted, nil
}

// CountUsable counts unused, non-expired codes
func (r *InMemoryBackupCodeRepository) CountUsable(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, code := range r.codes[userID] {
		if !code.Used && (code.ExpiresAt == nil || code.ExpiresAt.After(now)) {
			count++
		}
	}
	return count, nil
}
