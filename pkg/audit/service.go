package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// appendRetries bounds how often an append re-reads the chain head after
// losing a head race to another instance.
const appendRetries = 3

// AuditService appends to and verifies the hash-chained audit log. Appends
// are serialized through a per-instance mutex; the repository's conditional
// append guards against other instances claiming the same predecessor.
type AuditService struct {
	repo AuditRepository
	mu   sync.Mutex
	now  func() time.Time
}

// Option configures an AuditService
type Option func(*AuditService)

// WithClock sets the time source, used by tests for deterministic entries
func WithClock(now func() time.Time) Option {
	return func(s *AuditService) {
		s.now = now
	}
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditRepository, opts ...Option) *AuditService {
	s := &AuditService{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordParams describes the event to append. Seq, timestamps and hashes are
// assigned by the service.
type RecordParams struct {
	UserID   uuid.NullUUID
	Action   string
	Success  bool
	Metadata EventMetadata
}

// Record appends a new entry to the chain and returns it. The entry links to
// the current head; losing the head to a concurrent instance is retried a
// bounded number of times.
func (s *AuditService) Record(ctx context.Context, params RecordParams) (*AuditEvent, error) {
	if !ValidAction(params.Action) {
		return nil, fmt.Errorf("unknown audit action: %s", params.Action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < appendRetries; attempt++ {
		prevSeq, prevHash, err := s.repo.Head(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit chain head: %w", err)
		}

		event := AuditEvent{
			ID:  uuid.New(),
			Seq: prevSeq + 1,
			// Microsecond precision so the hashed rendering survives
			// storage in a timestamptz column.
			Timestamp:         s.now().UTC().Truncate(time.Microsecond),
			UserID:            params.UserID,
			Action:            params.Action,
			Success:           params.Success,
			Metadata:          params.Metadata,
			PreviousEntryHash: prevHash,
		}
		event.EntryHash = ComputeEntryHash(event)

		err = s.repo.Append(ctx, event, prevSeq, prevHash)
		if err == nil {
			return &event, nil
		}
		if !errors.Is(err, ErrChainConflict) {
			return nil, fmt.Errorf("failed to append audit event: %w", err)
		}
		slog.Warn("Audit chain head moved during append, retrying", "action", params.Action, "attempt", attempt+1)
	}

	return nil, fmt.Errorf("audit append lost the chain head %d times: %w", appendRetries, ErrChainConflict)
}

// VerifyReport is the result of a chain verification run
type VerifyReport struct {
	Valid          bool
	FirstBrokenSeq int64
	Checked        int
}

// VerifyChainIntegrity recomputes every entry hash in [fromSeq, toSeq] from
// stored fields and checks predecessor linkage, including the link to the
// entry preceding fromSeq. toSeq <= 0 means verify up to the current head.
func (s *AuditService) VerifyChainIntegrity(ctx context.Context, fromSeq, toSeq int64) (*VerifyReport, error) {
	if fromSeq < 1 {
		fromSeq = 1
	}
	if toSeq <= 0 {
		headSeq, _, err := s.repo.Head(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit chain head: %w", err)
		}
		toSeq = headSeq
	}
	if toSeq < fromSeq {
		return &VerifyReport{Valid: true}, nil
	}

	prevHash := ""
	if fromSeq > 1 {
		prev, err := s.repo.GetBySeq(ctx, fromSeq-1)
		if err != nil {
			return nil, fmt.Errorf("failed to load entry %d preceding the range: %w", fromSeq-1, err)
		}
		prevHash = prev.EntryHash
	}

	entries, err := s.repo.ListRange(ctx, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entries: %w", err)
	}

	report := &VerifyReport{Valid: true}
	expectedSeq := fromSeq
	for _, entry := range entries {
		report.Checked++
		if entry.Seq != expectedSeq ||
			entry.PreviousEntryHash != prevHash ||
			ComputeEntryHash(entry) != entry.EntryHash {
			report.Valid = false
			report.FirstBrokenSeq = expectedSeq
			return report, nil
		}
		prevHash = entry.EntryHash
		expectedSeq++
	}

	// Fewer entries than the range demands means entries were removed
	if int64(report.Checked) != toSeq-fromSeq+1 {
		report.Valid = false
		report.FirstBrokenSeq = expectedSeq
	}

	return report, nil
}

// EventsBetween returns all entries with timestamps in [from, to), spanning
// archived and live storage, ordered by seq.
func (s *AuditService) EventsBetween(ctx context.Context, from, to time.Time) ([]AuditEvent, error) {
	events, err := s.repo.ListByTimeRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

// GetBySeq returns a single entry by sequence number
func (s *AuditService) GetBySeq(ctx context.Context, seq int64) (AuditEvent, error) {
	return s.repo.GetBySeq(ctx, seq)
}

// ArchiveBefore moves entries older than cutoff to the archive store and
// returns how many were moved. Stored hashes are untouched, so verification
// over archived ranges keeps working.
func (s *AuditService) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	moved, err := s.repo.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive audit events: %w", err)
	}
	if moved > 0 {
		slog.Info("Archived audit events", "moved", moved, "cutoff", cutoff)
	}
	return moved, nil
}
