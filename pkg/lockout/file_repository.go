package lockout

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

const recordsFileName = "lockouts.json"

// FileLockoutRepository implements LockoutRepository using JSON file storage.
// Suitable for development and small single-instance deployments.
type FileLockoutRepository struct {
	dataDir string
	records map[string]*LockRecord
	mutex   sync.RWMutex
}

// NewFileLockoutRepository creates a new file-based lockout repository
func NewFileLockoutRepository(dataDir string) (*FileLockoutRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileLockoutRepository{
		dataDir: dataDir,
		records: make(map[string]*LockRecord),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load lockout records: %w", err)
	}
	return repo, nil
}

// RecordFailure applies one failure transition under the repository lock
func (r *FileLockoutRepository) RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time, policy FailurePolicy) (*LockRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	var previous *LockRecord
	if existing, ok := r.records[key]; ok {
		copied := *existing
		previous = &copied
	}

	record := applyFailure(r.records[key], userID, now, policy)
	r.records[key] = record
	if err := r.save(); err != nil {
		if previous != nil {
			r.records[key] = previous
		} else {
			delete(r.records, key)
		}
		return nil, fmt.Errorf("failed to save lockout records: %w", err)
	}

	result := *record
	return &result, nil
}

// Get returns the user's record
func (r *FileLockoutRepository) Get(ctx context.Context, userID uuid.UUID) (*LockRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, ok := r.records[userID.String()]
	if !ok {
		return nil, ErrLockRecordNotFound
	}
	result := *record
	return &result, nil
}

// Delete removes the user's record
func (r *FileLockoutRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := userID.String()
	previous, ok := r.records[key]
	if !ok {
		return nil
	}
	delete(r.records, key)
	if err := r.save(); err != nil {
		r.records[key] = previous
		return fmt.Errorf("failed to save lockout records: %w", err)
	}
	return nil
}

// DeleteStale removes records with no active lock and no recent failure
func (r *FileLockoutRepository) DeleteStale(ctx context.Context, now, staleBefore time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := make(map[string]*LockRecord)
	for key, record := range r.records {
		if isStale(record, now, staleBefore) {
			removed[key] = record
			delete(r.records, key)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := r.save(); err != nil {
		for key, record := range removed {
			r.records[key] = record
		}
		return 0, fmt.Errorf("failed to save lockout records: %w", err)
	}
	return len(removed), nil
}

func (r *FileLockoutRepository) load() error {
	filePath := filepath.Join(r.dataDir, recordsFileName)

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

func (r *FileLockoutRepository) save() error {
	data, err := json.MarshalIndent(r.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lockout records: %w", err)
	}

	filePath := filepath.Join(r.dataDir, recordsFileName)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace file %s: %w", filePath, err)
	}
	return nil
}
