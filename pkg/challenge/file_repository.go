package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const challengesFileName = "challenges.json"

// FileChallengeRepository implements ChallengeRepository using JSON file
// storage. Suitable for development and small single-instance deployments.
type FileChallengeRepository struct {
	dataDir    string
	challenges map[string]*Challenge
	mutex      sync.RWMutex
}

// NewFileChallengeRepository creates a new file-based challenge repository
func NewFileChallengeRepository(dataDir string) (*FileChallengeRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileChallengeRepository{
		dataDir:    dataDir,
		challenges: make(map[string]*Challenge),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load challenges: %w", err)
	}
	return repo, nil
}

func (r *FileChallengeRepository) Create(ctx context.Context, challenge *Challenge) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.challenges[challenge.TokenHash] = copyChallenge(challenge)
	if err := r.save(); err != nil {
		delete(r.challenges, challenge.TokenHash)
		return fmt.Errorf("failed to save challenges: %w", err)
	}
	return nil
}

func (r *FileChallengeRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Challenge, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return copyChallenge(ch), nil
}

func (r *FileChallengeRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return false, ErrChallengeNotFound
	}
	previous := copyChallenge(ch)
	if !applyConsume(ch, now) {
		return false, nil
	}
	if err := r.saveOrRollback(tokenHash, previous); err != nil {
		return false, err
	}
	return true, nil
}

func (r *FileChallengeRepository) RecordFailedAttempt(ctx context.Context, tokenHash string, now time.Time) (*Challenge, bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return nil, false, ErrChallengeNotFound
	}
	previous := copyChallenge(ch)
	if !applyFailedAttempt(ch, now) {
		return copyChallenge(ch), false, nil
	}
	if err := r.saveOrRollback(tokenHash, previous); err != nil {
		return nil, false, err
	}
	return copyChallenge(ch), true, nil
}

func (r *FileChallengeRepository) MarkExpired(ctx context.Context, tokenHash string, now time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch, ok := r.challenges[tokenHash]
	if !ok {
		return ErrChallengeNotFound
	}
	if ch.Status != STATUS_ISSUED {
		return nil
	}
	previous := copyChallenge(ch)
	ch.Status = STATUS_EXPIRED
	return r.saveOrRollback(tokenHash, previous)
}

func (r *FileChallengeRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := 0
	for hash, ch := range r.challenges {
		if ch.Status != STATUS_ISSUED && ch.IssuedAt.Before(cutoff) {
			delete(r.challenges, hash)
			removed++
		}
	}
	if removed > 0 {
		if err := r.save(); err != nil {
			return 0, fmt.Errorf("failed to save challenges: %w", err)
		}
	}
	return removed, nil
}

// saveOrRollback persists the map, restoring the previous state for the token
// hash when the write fails. Caller must hold the write lock.
func (r *FileChallengeRepository) saveOrRollback(tokenHash string, previous *Challenge) error {
	if err := r.save(); err != nil {
		r.challenges[tokenHash] = previous
		return fmt.Errorf("failed to save challenges: %w", err)
	}
	return nil
}

func (r *FileChallengeRepository) load() error {
	filePath := filepath.Join(r.dataDir, challengesFileName)

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
	if err := json.Unmarshal(data, &r.challenges); err != nil {
		return fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}
	return nil
}

func (r *FileChallengeRepository) save() error {
	data, err := json.MarshalIndent(r.challenges, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal challenges: %w", err)
	}

	filePath := filepath.Join(r.dataDir, challengesFileName)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace file %s: %w", filePath, err)
	}
	return nil
}
