package smscode

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

const codesFileName = "sms_codes.json"

// FileCodeStore implements CodeStore with JSON file storage. Codes survive
// restarts; expiry stays lazy against the wall clock.
type FileCodeStore struct {
	dataDir string
	codes   map[string]*codeRecord
	mutex   sync.Mutex
	now     func() time.Time
}

// NewFileCodeStore creates a new file-based code store
func NewFileCodeStore(dataDir string) (*FileCodeStore, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &FileCodeStore{
		dataDir: dataDir,
		codes:   make(map[string]*codeRecord),
		now:     time.Now,
	}
	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load sms codes: %w", err)
	}
	return store, nil
}

// Put stores a code, replacing any outstanding one
func (s *FileCodeStore) Put(ctx context.Context, userID uuid.UUID, code string, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := userID.String()
	previous := s.codes[key]
	s.codes[key] = &codeRecord{
		Code:      code,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.save(); err != nil {
		if previous != nil {
			s.codes[key] = previous
		} else {
			delete(s.codes, key)
		}
		return fmt.Errorf("failed to save sms codes: %w", err)
	}
	return nil
}

// Get returns the outstanding code, dropping it lazily once expired
func (s *FileCodeStore) Get(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, ok := s.codes[userID.String()]
	if !ok {
		return "", ErrNoCodePending
	}
	if s.now().After(record.ExpiresAt) {
		delete(s.codes, userID.String())
		if err := s.save(); err != nil {
			return "", fmt.Errorf("failed to save sms codes: %w", err)
		}
		return "", ErrNoCodePending
	}
	return record.Code, nil
}

// IncrAttempts counts one verification attempt
func (s *FileCodeStore) IncrAttempts(ctx context.Context, userID uuid.UUID, ttl time.Duration) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, ok := s.codes[userID.String()]
	if !ok || s.now().After(record.ExpiresAt) {
		return 0, ErrNoCodePending
	}
	record.Attempts++
	if err := s.save(); err != nil {
		record.Attempts--
		return 0, fmt.Errorf("failed to save sms codes: %w", err)
	}
	return record.Attempts, nil
}

// Delete removes the outstanding code
func (s *FileCodeStore) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := userID.String()
	previous, ok := s.codes[key]
	if !ok {
		return nil
	}
	delete(s.codes, key)
	if err := s.save(); err != nil {
		s.codes[key] = previous
		return fmt.Errorf("failed to save sms codes: %w", err)
	}
	return nil
}

func (s *FileCodeStore) load() error {
	filePath := filepath.Join(s.dataDir, codesFileName)

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
	if err := json.Unmarshal(data, &s.codes); err != nil {
		return fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}
	return nil
}

func (s *FileCodeStore) save() error {
	data, err := json.MarshalIndent(s.codes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sms codes: %w", err)
	}

	filePath := filepath.Join(s.dataDir, codesFileName)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace file %s: %w", filePath, err)
	}
	return nil
}
