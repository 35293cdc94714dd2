package backupcode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/licensemart/stepup-auth/pkg/utils"
)

// codeCharset omits 0/O and 1/I so codes read back unambiguously.
const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeGroups      = 3
	codeGroupLength = 4

	DEFAULT_BATCH_SIZE     = 10
	DEFAULT_EMERGENCY_SIZE = 3
	DEFAULT_EMERGENCY_TTL  = 4 * time.Hour
)

// BackupCodeService issues and consumes single-use recovery codes. Plaintext
// codes leave the service exactly once, at generation; storage only ever sees
// bcrypt hashes.
type BackupCodeService struct {
	repo     BackupCodeRepository
	hashCost int
	now      func() time.Time
}

// Option configures a BackupCodeService
type Option func(*BackupCodeService)

// WithClock sets the time source, used by tests for deterministic expiry
func WithClock(now func() time.Time) Option {
	return func(s *BackupCodeService) {
		s.now = now
	}
}

// WithHashCost overrides the bcrypt cost, used by tests to keep hashing fast
func WithHashCost(cost int) Option {
	return func(s *BackupCodeService) {
		s.hashCost = cost
	}
}

// NewBackupCodeService creates a new backup code service
func NewBackupCodeService(repo BackupCodeRepository, opts ...Option) *BackupCodeService {
	s := &BackupCodeService{
		repo:     repo,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EmergencyBatch is the result of an emergency code issuance
type EmergencyBatch struct {
	Codes     []string
	ExpiresAt time.Time
}

// Generate mints a fresh batch of backup codes for the user, replacing any
// unused ones. The returned plaintexts are shown once and never recoverable.
func (s *BackupCodeService) Generate(ctx context.Context, userID uuid.UUID, count int) ([]string, error) {
	if count <= 0 {
		count = DEFAULT_BATCH_SIZE
	}

	plaintexts, records, err := s.mintCodes(userID, count, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceUnused(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}

	slog.Info("Generated backup codes", "userID", userID, "count", count)
	return plaintexts, nil
}

// GenerateEmergency mints short-lived codes on top of the user's existing
// ones, for admin-assisted recovery when the user lost every other factor.
func (s *BackupCodeService) GenerateEmergency(ctx context.Context, userID uuid.UUID, count int, ttl time.Duration) (*EmergencyBatch, error) {
	if count <= 0 {
		count = DEFAULT_EMERGENCY_SIZE
	}
	if ttl <= 0 {
		ttl = DEFAULT_EMERGENCY_TTL
	}

	expiresAt := s.now().UTC().Add(ttl)
	plaintexts, records, err := s.mintCodes(userID, count, &expiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to store emergency codes: %w", err)
	}

	slog.Info("Generated emergency codes", "userID", userID, "count", count, "expiresAt", expiresAt)
	return &EmergencyBatch{Codes: plaintexts, ExpiresAt: expiresAt}, nil
}

// Consume redeems a code. Exactly one concurrent consumer of a given code
// wins; expired emergency codes never match.
func (s *BackupCodeService) Consume(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	normalized := normalize(code)
	if !IsBackupCodeFormat(normalized) {
		return false, nil
	}

	unused, err := s.repo.ListUnused(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load backup codes: %w", err)
	}

	now := s.now()
	for _, candidate := range unused {
		if candidate.ExpiresAt != nil && !candidate.ExpiresAt.After(now) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(candidate.CodeHash), []byte(normalized)) != nil {
			continue
		}

		won, err := s.repo.MarkUsed(ctx, userID, candidate.ID, now.UTC())
		if err != nil {
			return false, fmt.Errorf("failed to mark backup code used: %w", err)
		}
		if !won {
			slog.Warn("Backup code lost to a concurrent consumer", "userID", userID)
			return false, nil
		}
		slog.Info("Backup code consumed", "userID", userID)
		return true, nil
	}
	return false, nil
}

// CountRemaining reports how many usable codes the user has left
func (s *BackupCodeService) CountRemaining(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repo.CountUsable(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

// InvalidateAll removes every unused code the user has, emergency codes
// included. Disabling 2FA and admin resets go through here.
func (s *BackupCodeService) InvalidateAll(ctx context.Context, userID uuid.UUID) (int, error) {
	deleted, err := s.repo.DeleteUnused(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate backup codes: %w", err)
	}
	if deleted > 0 {
		slog.Info("Invalidated backup codes", "userID", userID, "count", deleted)
	}
	return deleted, nil
}

func (s *BackupCodeService) mintCodes(userID uuid.UUID, count int, expiresAt *time.Time) ([]string, []BackupCode, error) {
	now := s.now().UTC()
	plaintexts := make([]string, 0, count)
	records := make([]BackupCode, 0, count)
	for i := 0; i < count; i++ {
		plaintext := formatCode()
		hash, err := bcrypt.GenerateFromPassword([]byte(normalize(plaintext)), s.hashCost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		plaintexts = append(plaintexts, plaintext)
		records = append(records, BackupCode{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  string(hash),
			ExpiresAt: expiresAt,
			CreatedAt: now,
		})
	}
	return plaintexts, records, nil
}

// IsBackupCodeFormat reports whether the input reads as a backup code rather
// than a one-time passcode. Dashes, spaces and case are ignored.
func IsBackupCodeFormat(code string) bool {
	normalized := normalize(code)
	if len(normalized) != codeGroups*codeGroupLength {
		return false
	}
	for _, r := range normalized {
		if !strings.ContainsRune(codeCharset, r) {
			return false
		}
	}
	return true
}

// normalize strips dashes and spaces and uppercases, matching how codes are
// hashed at generation.
func normalize(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// formatCode builds one code like "XHJM-29QD-LWTK"
func formatCode() string {
	groups := make([]string, codeGroups)
	for g := range groups {
		chars := make([]byte, codeGroupLength)
		for i := range chars {
			chars[i] = codeCharset[utils.RandomInt(len(codeCharset))]
		}
		groups[g] = string(chars)
	}
	return strings.Join(groups, "-")
}
