package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Recorded actions
const (
	ACTION_SETUP                    = "setup"
	ACTION_DISABLE                  = "disable"
	ACTION_SUCCESSFUL_AUTH          = "successful_auth"
	ACTION_FAILED_ATTEMPT           = "failed_attempt"
	ACTION_LOCKOUT                  = "lockout"
	ACTION_ADMIN_RESET              = "admin_reset"
	ACTION_ADMIN_RESET_BLOCKED      = "admin_reset_blocked"
	ACTION_EMERGENCY_CODE_GENERATED = "emergency_code_generated"
	ACTION_BACKUP_CODE_USAGE        = "backup_code_usage"
	ACTION_CHALLENGE_ISSUED         = "challenge_issued"
)

// Common errors
var (
	// ErrChainConflict means the stored chain head moved between reading it
	// and appending, usually because another instance appended first.
	ErrChainConflict = errors.New("audit chain head changed")
	ErrEventNotFound = errors.New("audit event not found")
)

// EventMetadata carries the structured context recorded with an audit event.
// Known fields are typed; anything else goes in Extra.
type EventMetadata struct {
	IP            string            `json:"ip,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	Method        string            `json:"method,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	AdminID       string            `json:"admin_id,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// AuditEvent is one entry in the hash-chained audit log. EntryHash covers the
// entry's own fields plus PreviousEntryHash, so editing or removing any stored
// entry breaks verification for every entry after it.
type AuditEvent struct {
	ID                uuid.UUID     `json:"id"`
	Seq               int64         `json:"seq"`
	Timestamp         time.Time     `json:"timestamp"`
	UserID            uuid.NullUUID `json:"user_id"`
	Action            string        `json:"action"`
	Success           bool          `json:"success"`
	Metadata          EventMetadata `json:"metadata"`
	PreviousEntryHash string        `json:"previous_entry_hash"`
	EntryHash         string        `json:"entry_hash"`
}

// AuditRepository defines storage for the audit chain. Append must be
// conditional on the stored head still matching (expectedPrevSeq,
// expectedPrevHash) and fail with ErrChainConflict otherwise. Ranged reads
// span archived and live entries so the chain stays verifiable after
// archival.
type AuditRepository interface {
	// Head returns the latest entry's seq and hash, or (0, "") when empty
	Head(ctx context.Context) (int64, string, error)
	Append(ctx context.Context, event AuditEvent, expectedPrevSeq int64, expectedPrevHash string) error
	GetBySeq(ctx context.Context, seq int64) (AuditEvent, error)
	ListRange(ctx context.Context, fromSeq, toSeq int64) ([]AuditEvent, error)
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]AuditEvent, error)
	// ArchiveBefore moves entries older than cutoff to the archive store,
	// hashes untouched. The chain head is always retained live.
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ValidAction reports whether the action is one of the recorded action names
func ValidAction(action string) bool {
	switch action {
	case ACTION_SETUP, ACTION_DISABLE, ACTION_SUCCESSFUL_AUTH, ACTION_FAILED_ATTEMPT,
		ACTION_LOCKOUT, ACTION_ADMIN_RESET, ACTION_ADMIN_RESET_BLOCKED,
		ACTION_EMERGENCY_CODE_GENERATED, ACTION_BACKUP_CODE_USAGE, ACTION_CHALLENGE_ISSUED:
		return true
	}
	return false
}
