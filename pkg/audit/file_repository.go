package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	liveFileName    = "audit.json"
	archiveFileName = "audit_archive.json"
)

// FileAuditRepository implements AuditRepository using file-based storage.
// Live and archived entries persist to separate JSON files.
type FileAuditRepository struct {
	dataDir  string
	live     []AuditEvent
	archived []AuditEvent
	mutex    sync.RWMutex
}

// NewFileAuditRepository creates a new file-based audit repository
func NewFileAuditRepository(dataDir string) (*FileAuditRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileAuditRepository{
		dataDir: dataDir,
	}

	// Load existing data
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// Head returns the latest entry's seq and hash
func (r *FileAuditRepository) Head(ctx context.Context) (int64, string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if len(r.live) == 0 {
		return 0, "", nil
	}
	head := r.live[len(r.live)-1]
	return head.Seq, head.EntryHash, nil
}

// Append stores the event if the head still matches the expected predecessor
func (r *FileAuditRepository) Append(ctx context.Context, event AuditEvent, expectedPrevSeq int64, expectedPrevHash string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	headSeq, headHash := int64(0), ""
	if len(r.live) > 0 {
		head := r.live[len(r.live)-1]
		headSeq, headHash = head.Seq, head.EntryHash
	}
	if headSeq != expectedPrevSeq || headHash != expectedPrevHash {
		return ErrChainConflict
	}

	r.live = append(r.live, event)

	if err := r.saveFile(liveFileName, r.live); err != nil {
		// Rollback
		r.live = r.live[:len(r.live)-1]
		return fmt.Errorf("failed to save: %w", err)
	}

	return nil
}

// GetBySeq returns a single entry, searching archive and live storage
func (r *FileAuditRepository) GetBySeq(ctx context.Context, seq int64) (AuditEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, event := range r.archived {
		if event.Seq == seq {
			return event, nil
		}
	}
	for _, event := range r.live {
		if event.Seq == seq {
			return event, nil
		}
	}
	return AuditEvent{}, ErrEventNotFound
}

// ListRange returns entries with seq in [fromSeq, toSeq], spanning archive and live
func (r *FileAuditRepository) ListRange(ctx context.Context, fromSeq, toSeq int64) ([]AuditEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []AuditEvent
	for _, event := range r.archived {
		if event.Seq >= fromSeq && event.Seq <= toSeq {
			result = append(result, event)
		}
	}
	for _, event := range r.live {
		if event.Seq >= fromSeq && event.Seq <= toSeq {
			result = append(result, event)
		}
	}
	return result, nil
}

// ListByTimeRange returns entries with timestamps in [from, to), spanning archive and live
func (r *FileAuditRepository) ListByTimeRange(ctx context.Context, from, to time.Time) ([]AuditEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []AuditEvent
	for _, event := range r.archived {
		if !event.Timestamp.Before(from) && event.Timestamp.Before(to) {
			result = append(result, event)
		}
	}
	for _, event := range r.live {
		if !event.Timestamp.Before(from) && event.Timestamp.Before(to) {
			result = append(result, event)
		}
	}
	return result, nil
}

// ArchiveBefore moves the contiguous prefix of entries older than cutoff to
// the archive file. The chain head always stays live.
func (r *FileAuditRepository) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	moved := 0
	for moved < len(r.live)-1 && r.live[moved].Timestamp.Before(cutoff) {
		moved++
	}
	if moved == 0 {
		return 0, nil
	}

	newArchived := append(append([]AuditEvent{}, r.archived...), r.live[:moved]...)
	newLive := append([]AuditEvent{}, r.live[moved:]...)

	if err := r.saveFile(archiveFileName, newArchived); err != nil {
		return 0, fmt.Errorf("failed to save archive: %w", err)
	}
	if err := r.saveFile(liveFileName, newLive); err != nil {
		return 0, fmt.Errorf("failed to save: %w", err)
	}

	r.archived = newArchived
	r.live = newLive
	return moved, nil
}

// load reads audit data from the live and archive files
func (r *FileAuditRepository) load() error {
	if err := r.loadFile(liveFileName, &r.live); err != nil {
		return err
	}
	return r.loadFile(archiveFileName, &r.archived)
}

func (r *FileAuditRepository) loadFile(name string, into *[]AuditEvent) error {
	filePath := filepath.Join(r.dataDir, name)

	// If file doesn't exist, start with empty slice
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// If file is empty, start with empty slice
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}

// saveFile writes a slice of entries to a file atomically
func (r *FileAuditRepository) saveFile(name string, events []AuditEvent) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(r.dataDir, name+".tmp")
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	finalFile := filepath.Join(r.dataDir, name)
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
