package credentials

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/backupcode"
	"github.com/licensemart/stepup-auth/pkg/errors"
	"github.com/licensemart/stepup-auth/pkg/notification"
	"github.com/licensemart/stepup-auth/pkg/smscode"
	"github.com/licensemart/stepup-auth/pkg/totp"
	"github.com/licensemart/stepup-auth/pkg/utils"
)

// phonePattern matches E.164 numbers: + followed by 7 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// TotpSetup is returned by EnableTotp. The secret and URI are shown to the
// user exactly once; only the encrypted secret is stored.
type TotpSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// SetupResult is returned when a method confirmation succeeds. BackupCodes is
// populated only when this confirmation enabled the user's first method.
type SetupResult struct {
	Method      string   `json:"method"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}

// Status summarizes a user's 2FA configuration for display. Destinations are
// masked; secrets never appear.
type Status struct {
	TotpEnabled          bool       `json:"totp_enabled"`
	SmsEnabled           bool       `json:"sms_enabled"`
	PreferredMethod      string     `json:"preferred_method,omitempty"`
	MaskedPhone          string     `json:"masked_phone,omitempty"`
	PendingTotpSetup     bool       `json:"pending_totp_setup,omitempty"`
	PendingSmsSetup      bool       `json:"pending_sms_setup,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	TwoFactorVerifiedAt  *time.Time `json:"two_factor_verified_at,omitempty"`
}

// CredentialService manages the lifecycle of a user's second-factor
// configuration: TOTP and SMS enrollment with confirm steps, preferred
// method, backup-code issuance, status and disable.
type CredentialService struct {
	repo                CredentialRepository
	cipher              *SecretCipher
	totpVerifier        *totp.Verifier
	smsCodes            *smscode.SmsCodeService
	backupCodes         *backupcode.BackupCodeService
	auditService        *audit.AuditService
	notificationManager *notification.NotificationManager
	contacts            notification.UserContactResolver
	backupBatchSize     int
	now                 func() time.Time
}

// Option configures a CredentialService
type Option func(*CredentialService)

// WithTotpVerifier sets the TOTP verifier used for enrollment checks
func WithTotpVerifier(verifier *totp.Verifier) Option {
	return func(s *CredentialService) {
		s.totpVerifier = verifier
	}
}

// WithSmsCodeService sets the SMS code service used for phone verification
func WithSmsCodeService(smsCodes *smscode.SmsCodeService) Option {
	return func(s *CredentialService) {
		s.smsCodes = smsCodes
	}
}

// WithBackupCodeService sets the backup code service
func WithBackupCodeService(backupCodes *backupcode.BackupCodeService) Option {
	return func(s *CredentialService) {
		s.backupCodes = backupCodes
	}
}

// WithAuditService sets the audit service for lifecycle events
func WithAuditService(auditService *audit.AuditService) Option {
	return func(s *CredentialService) {
		s.auditService = auditService
	}
}

// WithNotificationManager sets the notification manager for security alerts
func WithNotificationManager(manager *notification.NotificationManager) Option {
	return func(s *CredentialService) {
		s.notificationManager = manager
	}
}

// WithContactResolver sets the resolver used to find user email addresses
func WithContactResolver(contacts notification.UserContactResolver) Option {
	return func(s *CredentialService) {
		s.contacts = contacts
	}
}

// WithBackupBatchSize overrides the size of generated backup-code batches
func WithBackupBatchSize(size int) Option {
	return func(s *CredentialService) {
		s.backupBatchSize = size
	}
}

// WithClock overrides the time source, used in tests
func WithClock(now func() time.Time) Option {
	return func(s *CredentialService) {
		s.now = now
	}
}

// NewCredentialService creates a new credential service
func NewCredentialService(repo CredentialRepository, cipher *SecretCipher, opts ...Option) *CredentialService {
	service := &CredentialService{
		repo:            repo,
		cipher:          cipher,
		totpVerifier:    totp.NewVerifier(),
		backupBatchSize: backupcode.DEFAULT_BATCH_SIZE,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// EnableTotp starts TOTP enrollment: it generates a secret, stores it
// encrypted and unconfirmed, and returns the secret with its provisioning
// URI for the authenticator app. The method stays disabled until
// ConfirmTotpSetup succeeds.
func (s *CredentialService) EnableTotp(ctx context.Context, userID uuid.UUID) (*TotpSetup, error) {
	now := s.now().UTC()

	record, err := s.repo.GetOrCreate(ctx, userID, now)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to load credential record")
	}
	if record.TotpEnabled {
		return nil, errors.Validation("totp", "totp is already enabled; disable it before re-enrolling")
	}

	accountName := s.accountName(ctx, userID)
	secret, uri, err := s.totpVerifier.GenerateSecret(accountName)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to generate totp secret")
	}

	encrypted, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to encrypt totp secret")
	}
	if err := s.repo.SetPendingTotpSecret(ctx, userID, encrypted, now); err != nil {
		return nil, errors.InternalWrap(err, "failed to store pending totp secret")
	}

	slog.Info("totp enrollment started", "user_id", userID)
	return &TotpSetup{Secret: secret, ProvisioningURI: uri}, nil
}

// ConfirmTotpSetup validates code against the pending secret and enables
// TOTP. When this is the user's first enabled method, a fresh backup-code
// batch is generated and returned once.
func (s *CredentialService) ConfirmTotpSetup(ctx context.Context, userID uuid.UUID, code string) (*SetupResult, error) {
	now := s.now().UTC()

	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return nil, errors.NotFound("totp enrollment", userID.String())
		}
		return nil, errors.InternalWrap(err, "failed to load credential record")
	}
	if record.TotpEnabled {
		return nil, errors.Validation("totp", "totp is already enabled")
	}
	if record.TotpSecretEncrypted == "" {
		return nil, errors.Validation("code", "no pending totp enrollment")
	}

	secret, err := s.cipher.Decrypt(record.TotpSecretEncrypted)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to decrypt pending totp secret")
	}
	valid, err := s.totpVerifier.Validate(secret, code)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to validate totp code")
	}
	if !valid {
		return nil, errors.New(errors.ErrCodeInvalidCode, "totp code does not match")
	}

	firstMethod := !record.HasEnabledMethod()
	confirmed, err := s.repo.ConfirmTotp(ctx, userID, now)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to confirm totp enrollment")
	}
	if !confirmed {
		return nil, errors.Validation("code", "no pending totp enrollment")
	}

	return s.finishSetup(ctx, userID, record, METHOD_TOTP, firstMethod, now)
}

// EnableSms starts SMS enrollment: it stores the phone number unverified and
// sends a verification code to it. Returns the masked destination.
func (s *CredentialService) EnableSms(ctx context.Context, userID uuid.UUID, phone string) (string, error) {
	now := s.now().UTC()

	if !phonePattern.MatchString(phone) {
		return "", errors.Validation("phone", "must be in E.164 format, e.g. +15551234567")
	}
	if s.smsCodes == nil {
		return "", errors.Internal("sms delivery is not configured")
	}

	record, err := s.repo.GetOrCreate(ctx, userID, now)
	if err != nil {
		return "", errors.InternalWrap(err, "failed to load credential record")
	}
	if record.PhoneVerified {
		return "", errors.Validation("phone", "a verified phone is already on file; disable two-factor authentication before changing numbers")
	}

	if err := s.repo.SetPendingPhone(ctx, userID, phone, now); err != nil {
		return "", errors.InternalWrap(err, "failed to store pending phone")
	}

	masked, err := s.smsCodes.SubmitPhoneVerification(ctx, userID, phone)
	if err != nil {
		return "", errors.InternalWrap(err, "failed to send verification code")
	}

	slog.Info("sms enrollment started", "user_id", userID, "phone", utils.MaskPhone(phone))
	return masked, nil
}

// ConfirmSmsSetup verifies the delivered code and marks the phone verified.
// When this is the user's first enabled method, a fresh backup-code batch is
// generated and returned once.
func (s *CredentialService) ConfirmSmsSetup(ctx context.Context, userID uuid.UUID, code string) (*SetupResult, error) {
	now := s.now().UTC()

	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return nil, errors.NotFound("sms enrollment", userID.String())
		}
		return nil, errors.InternalWrap(err, "failed to load credential record")
	}
	if record.PhoneVerified {
		return nil, errors.Validation("phone", "phone is already verified")
	}
	if record.PhoneNumber == "" {
		return nil, errors.Validation("code", "no pending phone verification")
	}
	if s.smsCodes == nil {
		return nil, errors.Internal("sms delivery is not configured")
	}

	outcome, err := s.smsCodes.Verify(ctx, userID, code)
	if err != nil {
		switch {
		case stderrors.Is(err, smscode.ErrNoCodePending):
			return nil, errors.Validation("code", "verification code expired or missing; request a new code")
		case stderrors.Is(err, smscode.ErrTooManyAttempts):
			return nil, errors.Validation("code", "too many attempts; request a new code")
		default:
			return nil, errors.InternalWrap(err, "failed to verify sms code")
		}
	}
	if !outcome.Verified {
		return nil, errors.InvalidCode(outcome.AttemptsRemaining)
	}

	firstMethod := !record.HasEnabledMethod()
	confirmed, err := s.repo.ConfirmPhone(ctx, userID, now)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to confirm phone")
	}
	if !confirmed {
		return nil, errors.Validation("code", "no pending phone verification")
	}

	return s.finishSetup(ctx, userID, record, METHOD_SMS, firstMethod, now)
}

// Disable2FA removes every configured method: the record is nulled in place
// and all backup codes are invalidated. A security alert is sent to the user.
func (s *CredentialService) Disable2FA(ctx context.Context, userID uuid.UUID) error {
	now := s.now().UTC()

	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return errors.NotFound("credentials", userID.String())
		}
		return errors.InternalWrap(err, "failed to load credential record")
	}

	// Invalidate codes before clearing so a failure leaves 2FA intact
	// rather than disabled with live recovery codes.
	if s.backupCodes != nil {
		if _, err := s.backupCodes.InvalidateAll(ctx, userID); err != nil {
			return errors.InternalWrap(err, "failed to invalidate backup codes")
		}
	}
	if _, err := s.repo.ClearAll(ctx, userID, now); err != nil {
		return errors.InternalWrap(err, "failed to clear credential record")
	}

	// Nothing was enabled, so there is no security change to report.
	if !record.HasEnabledMethod() {
		slog.Info("2fa disable on unenrolled record", "user_id", userID)
		return nil
	}

	s.recordAuditEvent(ctx, userID, audit.ACTION_DISABLE, true, audit.EventMetadata{
		Extra: map[string]string{"methods_disabled": strings.Join(record.EnabledMethods(), ",")},
	})
	s.notifyUser(ctx, userID, notification.SecurityAlertEmail, map[string]string{
		"Event": "Two-factor authentication was disabled on your account",
		"Time":  now.Format(time.RFC1123),
	})

	slog.Info("2fa disabled", "user_id", userID, "methods", record.EnabledMethods())
	return nil
}

// SetPreferredMethod updates the method challenges default to. The method
// must be enabled for the user; an empty method clears the preference.
func (s *CredentialService) SetPreferredMethod(ctx context.Context, userID uuid.UUID, method string) error {
	now := s.now().UTC()

	if method != "" {
		if err := ValidateMethod(method); err != nil {
			return errors.Validation("preferred_method", err.Error())
		}
	}

	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return errors.NotFound("credentials", userID.String())
		}
		return errors.InternalWrap(err, "failed to load credential record")
	}
	if method != "" && !record.MethodEnabled(method) {
		return errors.Validation("preferred_method", fmt.Sprintf("%s is not enabled for this account", method))
	}

	if err := s.repo.SetPreferredMethod(ctx, userID, method, now); err != nil {
		return errors.InternalWrap(err, "failed to set preferred method")
	}

	slog.Info("preferred 2fa method updated", "user_id", userID, "method", method)
	return nil
}

// GetStatus returns the user's 2FA configuration with masked destinations.
// Unknown users get a zero status rather than an error.
func (s *CredentialService) GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error) {
	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return &Status{}, nil
		}
		return nil, errors.InternalWrap(err, "failed to load credential record")
	}

	status := &Status{
		TotpEnabled:         record.TotpEnabled,
		SmsEnabled:          record.PhoneVerified,
		PreferredMethod:     record.PreferredMethod,
		PendingTotpSetup:    record.TotpSecretEncrypted != "" && !record.TotpEnabled,
		PendingSmsSetup:     record.PhoneNumber != "" && !record.PhoneVerified,
		TwoFactorVerifiedAt: record.TwoFactorVerifiedAt,
	}
	if record.PhoneNumber != "" {
		status.MaskedPhone = utils.MaskPhone(record.PhoneNumber)
	}
	if s.backupCodes != nil {
		remaining, err := s.backupCodes.CountRemaining(ctx, userID)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to count backup codes")
		}
		status.BackupCodesRemaining = remaining
	}
	return status, nil
}

// RegenerateBackupCodes replaces the user's unused backup codes with a fresh
// batch, returned once. Requires at least one enabled method.
func (s *CredentialService) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	now := s.now().UTC()

	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return nil, errors.NotFound("credentials", userID.String())
		}
		return nil, errors.InternalWrap(err, "failed to load credential record")
	}
	if !record.HasEnabledMethod() {
		return nil, errors.NotEnabled(userID.String())
	}
	if s.backupCodes == nil {
		return nil, errors.Internal("backup codes are not configured")
	}

	codes, err := s.backupCodes.Generate(ctx, userID, s.backupBatchSize)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to generate backup codes")
	}

	s.recordAuditEvent(ctx, userID, audit.ACTION_SETUP, true, audit.EventMetadata{
		Method: METHOD_BACKUP,
		Reason: "backup_codes_regenerated",
	})
	s.notifyUser(ctx, userID, notification.BackupCodesRegeneratedEmail, map[string]string{
		"Time": now.Format(time.RFC1123),
	})

	slog.Info("backup codes regenerated", "user_id", userID, "count", len(codes))
	return codes, nil
}

// Get returns the raw credential record. Callers branch on
// ErrCredentialsNotFound; the TOTP secret stays encrypted.
func (s *CredentialService) Get(ctx context.Context, userID uuid.UUID) (*CredentialRecord, error) {
	return s.repo.Get(ctx, userID)
}

// TotpSecret returns the decrypted TOTP secret for verification. Returns a
// NOT_ENABLED error unless TOTP is confirmed for the user.
func (s *CredentialService) TotpSecret(ctx context.Context, userID uuid.UUID) (string, error) {
	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return "", errors.NotEnabled(userID.String())
		}
		return "", errors.InternalWrap(err, "failed to load credential record")
	}
	if !record.TotpEnabled {
		return "", errors.NotEnabled(userID.String())
	}
	secret, err := s.cipher.Decrypt(record.TotpSecretEncrypted)
	if err != nil {
		return "", errors.InternalWrap(err, "failed to decrypt totp secret")
	}
	return secret, nil
}

// VerifiedPhone returns the verified phone number for SMS delivery. Returns a
// NOT_ENABLED error unless the phone is confirmed.
func (s *CredentialService) VerifiedPhone(ctx context.Context, userID uuid.UUID) (string, error) {
	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, ErrCredentialsNotFound) {
			return "", errors.NotEnabled(userID.String())
		}
		return "", errors.InternalWrap(err, "failed to load credential record")
	}
	if !record.PhoneVerified {
		return "", errors.NotEnabled(userID.String())
	}
	return record.PhoneNumber, nil
}

// MarkTwoFactorVerified records the time of a successful step-up on the
// credential record.
func (s *CredentialService) MarkTwoFactorVerified(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if err := s.repo.SetTwoFactorVerifiedAt(ctx, userID, at.UTC()); err != nil {
		return fmt.Errorf("failed to record verification time: %w", err)
	}
	return nil
}

// finishSetup handles the shared tail of both confirm paths: default the
// preferred method, mint the first backup-code batch, audit and log.
func (s *CredentialService) finishSetup(ctx context.Context, userID uuid.UUID, record *CredentialRecord, method string, firstMethod bool, now time.Time) (*SetupResult, error) {
	if record.PreferredMethod == "" {
		if err := s.repo.SetPreferredMethod(ctx, userID, method, now); err != nil {
			return nil, errors.InternalWrap(err, "failed to set preferred method")
		}
	}

	result := &SetupResult{Method: method}
	if firstMethod && s.backupCodes != nil {
		codes, err := s.backupCodes.Generate(ctx, userID, s.backupBatchSize)
		if err != nil {
			// The method is already enabled; the user can regenerate later.
			slog.Error("failed to generate initial backup codes", "user_id", userID, "error", err)
		} else {
			result.BackupCodes = codes
		}
	}

	s.recordAuditEvent(ctx, userID, audit.ACTION_SETUP, true, audit.EventMetadata{Method: method})

	slog.Info("2fa method enabled", "user_id", userID, "method", method, "first_method", firstMethod)
	return result, nil
}

// accountName resolves a label for the provisioning URI, preferring the
// user's email when a contact resolver is wired.
func (s *CredentialService) accountName(ctx context.Context, userID uuid.UUID) string {
	if s.contacts != nil {
		email, err := s.contacts.EmailForUser(ctx, userID)
		if err == nil && email != "" {
			return email
		}
	}
	return userID.String()
}

// recordAuditEvent appends a lifecycle event to the audit chain. Best effort:
// a failure is logged and never blocks the lifecycle operation.
func (s *CredentialService) recordAuditEvent(ctx context.Context, userID uuid.UUID, action string, success bool, metadata audit.EventMetadata) {
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
		slog.Error("failed to record credential audit event", "user_id", userID, "action", action, "error", err)
	}
}

// notifyUser sends an email notice to the user's resolved address. Best
// effort: missing wiring or delivery failures are logged and swallowed.
func (s *CredentialService) notifyUser(ctx context.Context, userID uuid.UUID, noticeType notification.NoticeType, data map[string]string) {
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
