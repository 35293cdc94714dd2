package backupcode

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BackupCode is one recovery code, stored as a bcrypt hash. ExpiresAt is set
// only on emergency codes; regular batch codes never expire. Used codes stay
// on record with their UsedAt time.
type BackupCode struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	CodeHash  string     `json:"code_hash"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// BackupCodeRepository defines storage for backup codes. ReplaceUnused must
// be all-or-nothing, and MarkUsed must be conditional on the code still being
// unused so exactly one concurrent consumer wins.
type BackupCodeRepository interface {
	// ReplaceUnused removes the user's unused codes and stores the new batch
	// in their place, atomically.
	ReplaceUnused(ctx context.Context, userID uuid.UUID, codes []BackupCode) error

	// Insert stores additional codes without touching existing ones.
	Insert(ctx context.Context, codes []BackupCode) error

	// ListUnused returns the user's unused codes, expired ones included.
	ListUnused(ctx context.Context, userID uuid.UUID) ([]BackupCode, error)

	// MarkUsed flips a code to used and reports whether this call did the
	// flipping. A false return means another consumer got there first.
	MarkUsed(ctx context.Context, userID, codeID uuid.UUID, usedAt time.Time) (bool, error)

	// DeleteUnused removes the user's unused codes and returns how many went.
	DeleteUnused(ctx context.Context, userID uuid.UUID) (int, error)

	// CountUsable counts unused codes that have not expired as of now.
	CountUsable(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
}
