package override

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/backupcode"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/errors"
	"github.com/licensemart/stepup-auth/pkg/notification"
)

// EmergencyCodes is the short-lived recovery batch handed to an admin for a
// locked-out user. The plaintext codes appear here once and are never
// retrievable again.
type EmergencyCodes struct {
	Codes     []string  `json:"codes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OverrideService performs privileged 2FA interventions on behalf of support
// staff. Every operation requires a justification, refuses to act on the
// admin's own account, and lands in the audit trail with the admin's
// identity attached. Request transport details are read from the context when
// the audit middleware captured them.
type OverrideService struct {
	credentialRepo      credentials.CredentialRepository
	backupCodes         *backupcode.BackupCodeService
	auditService        *audit.AuditService
	notificationManager *notification.NotificationManager
	contacts            notification.UserContactResolver
	emergencyCount      int
	emergencyTTL        time.Duration
	now                 func() time.Time
}

// Option configures an OverrideService
type Option func(*OverrideService)

// WithAuditService enables audit trail recording
func WithAuditService(auditService *audit.AuditService) Option {
	return func(s *OverrideService) {
		s.auditService = auditService
	}
}

// WithNotificationManager enables security notices to the affected user
func WithNotificationManager(nm *notification.NotificationManager) Option {
	return func(s *OverrideService) {
		s.notificationManager = nm
	}
}

// WithContactResolver supplies user contact lookup for notices
func WithContactResolver(contacts notification.UserContactResolver) Option {
	return func(s *OverrideService) {
		s.contacts = contacts
	}
}

// WithEmergencyCodeCount overrides how many emergency codes one issuance mints
func WithEmergencyCodeCount(count int) Option {
	return func(s *OverrideService) {
		s.emergencyCount = count
	}
}

// WithEmergencyCodeTTL overrides how long emergency codes stay usable
func WithEmergencyCodeTTL(ttl time.Duration) Option {
	return func(s *OverrideService) {
		s.emergencyTTL = ttl
	}
}

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *OverrideService) {
		s.now = now
	}
}

// NewOverrideService creates an admin override service
func NewOverrideService(credentialRepo credentials.CredentialRepository, backupCodes *backupcode.BackupCodeService, opts ...Option) *OverrideService {
	s := &OverrideService{
		credentialRepo: credentialRepo,
		backupCodes:    backupCodes,
		emergencyCount: backupcode.DEFAULT_EMERGENCY_SIZE,
		emergencyTTL:   backupcode.DEFAULT_EMERGENCY_TTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResetUser2FA clears the target's entire 2FA configuration: TOTP secret and
// flag, phone number and verification, preferred method, and every backup
// code. The target can then enroll from scratch. Self-reset is refused so an
// admin cannot quietly strip the control from their own account; the refusal
// itself is audited.
func (s *OverrideService) ResetUser2FA(ctx context.Context, targetUserID, adminID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.Validation("reason", "a justification is required for admin overrides")
	}
	if targetUserID == adminID {
		metadata := overrideMetadata(ctx, adminID, reason)
		s.recordAuditEvent(ctx, targetUserID, audit.ACTION_ADMIN_RESET_BLOCKED, false, metadata)
		slog.Warn("Blocked admin self-reset", "adminID", adminID)
		return errors.Forbidden("administrators cannot reset their own two-factor authentication")
	}

	now := s.now().UTC()
	record, err := s.credentialRepo.Get(ctx, targetUserID)
	if err != nil {
		if stderrors.Is(err, credentials.ErrCredentialsNotFound) {
			return errors.NotFound("user", targetUserID.String())
		}
		return errors.InternalWrap(err, "failed to load credential record")
	}
	methodsCleared := record.EnabledMethods()

	// Invalidate recovery codes before clearing the record, so a failure
	// partway leaves 2FA enabled rather than disabled with live codes.
	if _, err := s.backupCodes.InvalidateAll(ctx, targetUserID); err != nil {
		return errors.InternalWrap(err, "failed to invalidate backup codes")
	}
	if _, err := s.credentialRepo.ClearAll(ctx, targetUserID, now); err != nil {
		return errors.InternalWrap(err, "failed to clear credential record")
	}

	metadata := overrideMetadata(ctx, adminID, reason)
	if len(methodsCleared) > 0 {
		metadata.Extra = map[string]string{"methods_cleared": strings.Join(methodsCleared, ",")}
	}
	s.recordAuditEvent(ctx, targetUserID, audit.ACTION_ADMIN_RESET, true, metadata)

	s.notifyUser(ctx, targetUserID, notification.SecurityAlertEmail, map[string]string{
		"Event": "Two-factor authentication was reset by an administrator",
		"Time":  now.Format(time.RFC1123),
	})

	slog.Info("Admin reset 2FA", "targetUserID", targetUserID, "adminID", adminID)
	return nil
}

// GenerateEmergencyCodes mints a small, fast-expiring batch of one-time codes
// for a user who cannot complete normal verification. The batch sits
// alongside any regular backup codes and dies on its own expiry.
func (s *OverrideService) GenerateEmergencyCodes(ctx context.Context, targetUserID, adminID uuid.UUID, reason string) (*EmergencyCodes, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation("reason", "a justification is required for admin overrides")
	}
	if targetUserID == adminID {
		slog.Warn("Blocked admin self-issue of emergency codes", "adminID", adminID)
		return nil, errors.Forbidden("administrators cannot issue emergency codes to themselves")
	}

	record, err := s.credentialRepo.Get(ctx, targetUserID)
	if err != nil {
		if stderrors.Is(err, credentials.ErrCredentialsNotFound) {
			// Nothing to provide emergency access around.
			return nil, errors.NotEnabled(targetUserID.String())
		}
		return nil, errors.InternalWrap(err, "failed to load credential record")
	}
	if !record.HasEnabledMethod() {
		return nil, errors.NotEnabled(targetUserID.String())
	}

	batch, err := s.backupCodes.GenerateEmergency(ctx, targetUserID, s.emergencyCount, s.emergencyTTL)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to generate emergency codes")
	}

	metadata := overrideMetadata(ctx, adminID, reason)
	metadata.Extra = map[string]string{
		"code_count": strconv.Itoa(len(batch.Codes)),
		"expires_at": batch.ExpiresAt.Format(time.RFC3339),
	}
	s.recordAuditEvent(ctx, targetUserID, audit.ACTION_EMERGENCY_CODE_GENERATED, true, metadata)

	s.notifyUser(ctx, targetUserID, notification.EmergencyCodesIssuedEmail, map[string]string{
		"ExpiresAt": batch.ExpiresAt.Format(time.RFC1123),
		"Time":      s.now().UTC().Format(time.RFC1123),
	})

	slog.Info("Issued emergency codes", "targetUserID", targetUserID, "adminID", adminID, "expiresAt", batch.ExpiresAt)
	return &EmergencyCodes{Codes: batch.Codes, ExpiresAt: batch.ExpiresAt}, nil
}

// overrideMetadata stitches the admin identity and justification onto
// whatever transport details the audit middleware captured.
func overrideMetadata(ctx context.Context, adminID uuid.UUID, reason string) audit.EventMetadata {
	metadata := audit.RequestInfoFromContext(ctx).Metadata()
	metadata.AdminID = adminID.String()
	metadata.Reason = reason
	return metadata
}

func (s *OverrideService) recordAuditEvent(ctx context.Context, userID uuid.UUID, action string, success bool, metadata audit.EventMetadata) {
	if s.auditService == nil {
		return
	}
	_, err := s.auditService.Record(ctx, audit.RecordParams{
		UserID:   uuid.NullUUID{UUID: userID, Valid: true},
		Action:   action,
		Success:  success,
		Metadata: metadata,
	})
	if err != nil {
		slog.Error("Failed to record audit event", "action", action, "userID", userID, "error", err)
	}
}

func (s *OverrideService) notifyUser(ctx context.Context, userID uuid.UUID, noticeType notification.NoticeType, data map[string]string) {
	if s.notificationManager == nil || s.contacts == nil {
		return
	}
	email, err := s.contacts.EmailForUser(ctx, userID)
	if err != nil || email == "" {
		slog.Warn("no email on file for security notice", "user_id", userID, "notice", noticeType)
		return
	}
	err = s.notificationManager.Send(noticeType, notification.NotificationData{
		To:   email,
		Data: data,
	})
	if err != nil {
		slog.Warn("failed to send security notice", "user_id", userID, "notice", noticeType, "error", err)
	}
}
