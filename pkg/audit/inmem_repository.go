package audit

import (
	"context"
	"sync"
	"time"
)

// InMemoryAuditRepository implements AuditRepository using in-memory storage.
// Entries are held in seq order; archived entries move to a second slice.
type InMemoryAuditRepository struct {
	mu       sync.RWMutex
	live     []AuditEvent
	archived []AuditEvent
}

// NewInMemoryAuditRepository creates a new in-memory audit repository
func NewInMemoryAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{}
}

// Head returns the latest entry's seq and hash
func (r *InMemoryAuditRepository) Head(ctx context.Context) (int64, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.live) == 0 {
		return 0, "", nil
	}
	head := r.live[len(r.live)-1]
	return head.Seq, head.EntryHash, nil
}

// Append stores the event if the head still matches the expected predecessor
func (r *InMemoryAuditRepository) Append(ctx context.Context, event AuditEvent, expectedPrevSeq int64, expectedPrevHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	headSeq, headHash := int64(0), ""
	if len(r.live) > 0 {
		head := r.live[len(r.live)-1]
		headSeq, headHash = head.Seq, head.EntryHash
	}
	if headSeq != expectedPrevSeq || headHash != expectedPrevHash {
		return ErrChainConflict
	}

	r.live = append(r.live, event)
	return nil
}

// GetBySeq returns a single entry, searching archive and live storage
func (r *InMemoryAuditRepository) GetBySeq(ctx context.Context, seq int64) (AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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
func (r *InMemoryAuditRepository) ListRange(ctx context.Context, fromSeq, toSeq int64) ([]AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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
func (r *InMemoryAuditRepository) ListByTimeRange(ctx context.Context, from, to time.Time) ([]AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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
// the archive slice. Only a prefix moves so archived seqs always precede live
// ones, and the chain head always stays live.
func (r *InMemoryAuditRepository) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	moved := 0
	for moved < len(r.live)-1 && r.live[moved].Timestamp.Before(cutoff) {
		moved++
	}
	if moved == 0 {
		return 0, nil
	}

	r.archived = append(r.archived, r.live[:moved]...)
	r.live = append(r.live[:0:0], r.live[moved:]...)
	return moved, nil
}
