package backupcode

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

const codesFileName = "backup_codes.json"

// FileBackupCodeRepository implements BackupCodeRepository using JSON file
// storage. Suitable for development and small single-instance deployments.
type FileBackupCodeRepository struct {
	dataDir string
	codes   map[string][]BackupCode
	mutex   sync.RWMutex
}

// NewFileBackupCodeRepository creates a new file-based backup code repository
func NewFileBackupCodeRepository(dataDir string) (*FileBackupCodeRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileBackupCodeRepository{
		dataDir: dataDir,
		codes:   make(map[string][]BackupCode),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load backup codes: %w", err)
	}
	return repo, nil
}

// ReplaceUnused swaps the user's unused codes for the new batch
func (r *FileBackupCodeRepository) ReplaceUnused(ctx context.Context, userID uuid.UUID, codes []BackupCode) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	previous := r.codes[key]
	kept := previous[:0:0]
	for _, code := range previous {
		if code.Used {
			kept = append(kept, code)
		}
	}
	r.codes[key] = append(kept, codes...)
	if err := r.save(); err != nil {
		r.codes[key] = previous
		return fmt.Errorf("failed to save backup codes: %w", err)
	}
	return nil
}

// Insert stores additional codes
func (r *FileBackupCodeRepository) Insert(ctx context.Context, codes []BackupCode) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	touched := make(map[string][]BackupCode)
	for _, code := range codes {
		key := code.UserID.String()
		if _, ok := touched[key]; !ok {
			touched[key] = r.codes[key]
		}
		r.codes[key] = append(r.codes[key], code)
	}
	if err := r.save(); err != nil {
		for key, previous := range touched {
			r.codes[key] = previous
		}
		return fmt.Errorf("failed to save backup codes: %w", err)
	}
	return nil
}

// ListUnused returns the user's unused codes
func (r *FileBackupCodeRepository) ListUnused(ctx context.Context, userID uuid.UUID) ([]BackupCode, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var unused []BackupCode
	for _, code := range r.codes[userID.String()] {
		if !code.Used {
			unused = append(unused, code)
		}
	}
	return unused, nil
}

// MarkUsed flips a code to used if it still is unused
func (r *FileBackupCodeRepository) MarkUsed(ctx context.Context, userID, codeID uuid.UUID, usedAt time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	for i, code := range r.codes[key] {
		if code.ID == codeID && !code.Used {
			at := usedAt
			r.codes[key][i].Used = true
			r.codes[key][i].UsedAt = &at
			if err := r.save(); err != nil {
				r.codes[key][i].Used = false
				r.codes[key][i].UsedAt = nil
				return false, fmt.Errorf("failed to save backup codes: %w", err)
			}
			return true, nil
		}
	}
	return false, nil
}

// DeleteUnused removes the user's unused codes
func (r *FileBackupCodeRepository) DeleteUnused(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	previous := r.codes[key]
	kept := previous[:0:0]
	deleted := 0
	for _, code := range previous {
		if code.Used {
			kept = append(kept, code)
		} else {
			deleted++
		}
	}
	if deleted == 0 {
		return 0, nil
	}
	r.codes[key] = kept
	if err := r.save(); err != nil {
		r.codes[key] = previous
		return 0, fmt.Errorf("failed to save backup codes: %w", err)
	}
	return deleted, nil
}

// CountUsable counts unused, non-expired codes
func (r *FileBackupCodeRepository) CountUsable(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	for _, code := range r.codes[userID.String()] {
		if !code.Used && (code.ExpiresAt == nil || code.ExpiresAt.After(now)) {
			count++
		}
	}
	return count, nil
}

func (r *FileBackupCodeRepository) load() error {
	filePath := filepath.Join(r.dataDir, codesFileName)

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
	if err := json.Unmarshal(data, &r.codes); err != nil {
		return fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}
	return nil
}

func (r *FileBackupCodeRepository) save() error {
	data, err := json.MarshalIndent(r.codes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}

	filePath := filepath.Join(r.dataDir, codesFileName)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace file %s: %w", filePath, err)
	}
	return nil
}
