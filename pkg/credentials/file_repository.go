package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const credentialsFileName = "credentials.json"

// FileCredentialRepository implements CredentialRepository using JSON file
// storage. Suitable for development and small single-instance deployments.
// Note that TOTP secrets are stored encrypted by the service before they
// reach the repository, so the JSON file never holds plaintext secrets.
type FileCredentialRepository struct {
	dataDir string
	records map[string]*CredentialRecord
	mutex   sync.RWMutex
}

// NewFileCredentialRepository creates a new file-based credential repository
func NewFileCredentialRepository(dataDir string) (*FileCredentialRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileCredentialRepository{
		dataDir: dataDir,
		records: make(map[string]*CredentialRecord),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load credential records: %w", err)
	}
	return repo, nil
}

func (r *FileCredentialRepository) Get(ctx context.Context, userID uuid.UUID) (*CredentialRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, ok := r.records[userID.String()]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return copyRecord(record), nil
}

func (r *FileCredentialRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, now time.Time) (*CredentialRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	if record, ok := r.records[key]; ok {
		return copyRecord(record), nil
	}

	record := &CredentialRecord{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.records[key] = record
	if err := r.saveOrRollback(key, nil); err != nil {
		return nil, err
	}
	return copyRecord(record), nil
}

func (r *FileCredentialRepository) SetPendingTotpSecret(ctx context.Context, userID uuid.UUID, encryptedSecret string, now time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	previous := r.snapshot(key)
	record := r.ensureLocked(userID, now)
	record.TotpSecretEncrypted = encryptedSecret
	record.TotpEnabled = false
	record.UpdatedAt = now
	return r.saveOrRollback(key, previous)
}

func (r *FileCredentialRepository) ConfirmTotp(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	record, ok := r.records[key]
	if !ok || record.TotpSecretEncrypted == "" || record.TotpEnabled {
		return false, nil
	}
	previous := r.snapshot(key)
	record.TotpEnabled = true
	record.UpdatedAt = now
	if err := r.saveOrRollback(key, previous); err != nil {
		return false, err
	}
	return true, nil
}

func (r *FileCredentialRepository) SetPendingPhone(ctx context.Context, userID uuid.UUID, phone string, now time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	previous := r.snapshot(key)
	record := r.ensureLocked(userID, now)
	record.PhoneNumber = phone
	record.PhoneVerified = false
	record.UpdatedAt = now
	return r.saveOrRollback(key, previous)
}

func (r *FileCredentialRepository) ConfirmPhone(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	record, ok := r.records[key]
	if !ok || record.PhoneNumber == "" || record.PhoneVerified {
		return false, nil
	}
	previous := r.snapshot(key)
	record.PhoneVerified = true
	record.UpdatedAt = now
	if err := r.saveOrRollback(key, previous); err != nil {
		return false, err
	}
	return true, nil
}

func (r *FileCredentialRepository) SetPreferredMethod(ctx context.Context, userID uuid.UUID, method string, now time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	record, ok := r.records[key]
	if !ok {
		return ErrCredentialsNotFound
	}
	previous := r.snapshot(key)
	record.PreferredMethod = method
	record.UpdatedAt = now
	return r.saveOrRollback(key, previous)
}

func (r *FileCredentialRepository) SetTwoFactorVerifiedAt(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	record, ok := r.records[key]
	if !ok {
		return ErrCredentialsNotFound
	}
	previous := r.snapshot(key)
	verifiedAt := at
	record.TwoFactorVerifiedAt = &verifiedAt
	record.UpdatedAt = at
	return r.saveOrRollback(key, previous)
}

func (r *FileCredentialRepository) ClearAll(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	record, ok := r.records[key]
	if !ok {
		return false, nil
	}
	previous := r.snapshot(key)
	record.TotpSecretEncrypted = ""
	record.TotpEnabled = false
	record.PhoneNumber = ""
	record.PhoneVerified = false
	record.PreferredMethod = ""
	record.TwoFactorVerifiedAt = nil
	record.UpdatedAt = now
	if err := r.saveOrRollback(key, previous); err != nil {
		return false, err
	}
	return true, nil
}

func (r *FileCredentialRepository) Stats(ctx context.Context) (*CredentialStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

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
func (r *FileCredentialRepository) ensureLocked(userID uuid.UUID, now time.Time) *CredentialRecord {
	key := userID.String()
	record, ok := r.records[key]
	if !ok {
		record = &CredentialRecord{
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.records[key] = record
	}
	return record
}

// snapshot copies the current record for rollback, nil when absent.
// Caller must hold the write lock.
func (r *FileCredentialRepository) snapshot(key string) *CredentialRecord {
	record, ok := r.records[key]
	if !ok {
		return nil
	}
	return copyRecord(record)
}

// saveOrRollback persists the map, restoring the previous state for key when
// the write fails. Caller must hold the write lock.
func (r *FileCredentialRepository) saveOrRollback(key string, previous *CredentialRecord) error {
	if err := r.save(); err != nil {
		if previous != nil {
			r.records[key] = previous
		} else {
			delete(r.records, key)
		}
		return fmt.Errorf("failed to save credential records: %w", err)
	}
	return nil
}

func (r *FileCredentialRepository) load() error {
	filePath := filepath.Join(r.dataDir, credentialsFileName)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &r.records); err != nil {
		return fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}
	return nil
}

func (r *FileCredentialRepository) save() error {
	data, err := json.MarshalIndent(r.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential records: %w", err)
	}

	filePath := filepath.Join(r.dataDir, credentialsFileName)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace file %s: %w", filePath, err)
	}
	return nil
}
