package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryCredentialRepository is an in-memory implementation of
// CredentialRepository for development and testing.
type InMemoryCredentialRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*CredentialRecord
}

// NewInMemoryCredentialRepository creates a new in-memory credential repository.
func NewInMemoryCredentialRepository() *InMemoryCredentialRepository {
	return &InMemoryCredentialRepository{
		records: make(map[uuid.UUID]*CredentialRecord),
	}
}

func copyRecord(record *CredentialRecord) *CredentialRecord {
	dup := *record
	if record.TwoFactorVerifiedAt != nil {
		at := *record.TwoFactorVerifiedAt
		dup.TwoFactorVerifiedAt = &at
	}
	return &dup
}

func (r *InMemoryCredentialRepository) Get(ctx context.Context, userID uuid.UUID) (*CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[userID]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return copyRecord(record), nil
}

func (r *InMemoryCredentialRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, now time.Time) (*CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok {
		record = &CredentialRecord{
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.records[userID] = record
	}
	return copyRecord(record), nil
}

func (r *InMemoryCredentialRepository) SetPendingTotpSecret(ctx context.Context, userID uuid.UUID, encryptedSecret string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := r.ensureLocked(userID, now)
	record.TotpSecretEncrypted = encryptedSecret
	record.TotpEnabled = false
	record.UpdatedAt = now
	return nil
}

func (r *InMemoryCredentialRepository) ConfirmTotp(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok || record.TotpSecretEncrypted == "" || record.TotpEnabled {
		return false, nil
	}
	record.TotpEnabled = true
	record.UpdatedAt = now
	return true, nil
}

func (r *InMemoryCredentialRepository) SetPendingPhone(ctx context.Context, userID uuid.UUID, phone string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := r.ensureLocked(userID, now)
	record.PhoneNumber = phone
	record.PhoneVerified = false
	record.UpdatedAt = now
	return nil
}

func (r *InMemoryCredentialRepository) ConfirmPhone(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok || record.PhoneNumber == "" || record.PhoneVerified {
		return false, nil
	}
	record.PhoneVerified = true
	record.UpdatedAt = now
	return true, nil
}

func (r *InMemoryCredentialRepository) SetPreferredMethod(ctx context.Context, userID uuid.UUID, method string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok {
		return ErrCredentialsNotFound
	}
	record.PreferredMethod = method
	record.UpdatedAt = now
	return nil
}

func (r *InMemoryCredentialRepository) SetTwoFactorVerifiedAt(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok {
		return ErrCredentialsNotFound
	}
	verifiedAt := at
	record.TwoFactorVerifiedAt = &verifiedAt
	record.UpdatedAt = at
	return nil
}

func (r *InMemoryCredentialRepository) ClearAll(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok {
		return false, nil
	}
	record.TotpSecretEncrypted = ""
	record.TotpEnabled = false
	record.PhoneNumber = ""
	record.PhoneVerified = false
	record.PreferredMethod = ""
	record.TwoFactorVerifiedAt = nil
	record.UpdatedAt = now
	return true, nil
}

func (r *InMemoryCredentialRepository) Stats(ctx context.Context) (*CredentialStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &CredentialStats{}
	for _, record := range r.records {
		stats.TotalRecords++
		if record.TotpEnabled {
			stats.TotpEnabled++
		}
		if record.PhoneVerified {
			stats.SmsEnabled++
		}
		if record.TotpEnabled || record.PhoneVerified {
			stats.AnyEnabled++
		}
		if record.TotpEnabled && record.PhoneVerified {
			stats.BothEnabled++
		}
		switch record.PreferredMethod {
		case METHOD_TOTP:
			stats.PreferredTotp++
		case METHOD_SMS:
			stats.PreferredSms++
		}
	}
	return stats, nil
}

// ensureLocked returns the record for userID, creating it if absent.
// Caller must hold the write lock.
func (r *InMemoryCredentialRepository) ensureLocked(userID uuid.UUID, now time.Time) *CredentialRecord {
	record, ok := r.records[userID]
	if !ok {
		record = &CredentialRecord{
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.records[userID] = record
	}
	return record
}
