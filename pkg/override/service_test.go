package override

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/backupcode"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/errors"
	"github.com/licensemart/stepup-auth/pkg/notification"
)

var overrideBase = time.Date(2025, 4, 14, 11, 0, 0, 0, time.UTC)

type overrideFixture struct {
	service   *OverrideService
	repo      *credentials.InMemoryCredentialRepository
	backup    *backupcode.BackupCodeService
	auditSvc  *audit.AuditService
	contacts  *notification.StaticContactResolver
	emailMock *notification.MockNotifier
	current   time.Time
}

func (f *overrideFixture) advance(d time.Duration) {
	f.current = f.current.Add(d)
}

func setupOverrideFixture(t *testing.T) *overrideFixture {
	t.Helper()

	f := &overrideFixture{current: overrideBase}
	clock := func() time.Time { return f.current }

	manager := notification.NewNotificationManager("https://licensemart.example")
	f.emailMock = &notification.MockNotifier{}
	manager.RegisterNotifier(notification.EmailSystem, f.emailMock)
	require.NoError(t, manager.RegisterNotification(notification.SecurityAlertEmail, notification.EmailSystem, notification.NoticeTemplate{
		Subject: "Security alert",
		Text:    "{{.Event}} at {{.Time}}",
	}))
	require.NoError(t, manager.RegisterNotification(notification.EmergencyCodesIssuedEmail, notification.EmailSystem, notification.NoticeTemplate{
		Subject: "Emergency codes issued",
		Text:    "Emergency codes valid until {{.ExpiresAt}} were issued at {{.Time}}",
	}))

	f.repo = credentials.NewInMemoryCredentialRepository()
	f.backup = backupcode.NewBackupCodeService(
		backupcode.NewInMemoryBackupCodeRepository(),
		backupcode.WithHashCost(bcrypt.MinCost),
		backupcode.WithClock(clock),
	)
	f.auditSvc = audit.NewAuditService(audit.NewInMemoryAuditRepository(), audit.WithClock(clock))
	f.contacts = notification.NewStaticContactResolver()

	f.service = NewOverrideService(f.repo, f.backup,
		WithAuditService(f.auditSvc),
		WithNotificationManager(manager),
		WithContactResolver(f.contacts),
		WithClock(clock),
	)
	return f
}

// enroll marks the user as TOTP-enabled directly in the repository and mints
// a regular backup-code batch, which is all the override service looks at.
func (f *overrideFixture) enroll(t *testing.T, userID uuid.UUID) []string {
	t.Helper()

	_, err := f.repo.GetOrCreate(context.Background(), userID, f.current)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetPendingTotpSecret(context.Background(), userID, "encrypted-secret", f.current))
	confirmed, err := f.repo.ConfirmTotp(context.Background(), userID, f.current)
	require.NoError(t, err)
	require.True(t, confirmed)

	codes, err := f.backup.Generate(context.Background(), userID, backupcode.DEFAULT_BATCH_SIZE)
	require.NoError(t, err)
	return codes
}

// lastAudit returns the most recently recorded event.
func (f *overrideFixture) lastAudit(t *testing.T) audit.AuditEvent {
	t.Helper()
	events, err := f.auditSvc.EventsBetween(context.Background(), overrideBase.Add(-time.Hour), f.current.Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, events, "An audit event should have been recorded")
	return events[len(events)-1]
}

func TestResetUser2FAClearsEverything(t *testing.T) {
	f := setupOverrideFixture(t)
	targetID, adminID := uuid.New(), uuid.New()
	codes := f.enroll(t, targetID)
	f.contacts.SetEmail(targetID, "seller@example.com")

	err := f.service.ResetUser2FA(context.Background(), targetID, adminID, "support ticket LM-4821: lost device")
	require.NoError(t, err)

	record, err := f.repo.Get(context.Background(), targetID)
	require.NoError(t, err)
	assert.False(t, record.TotpEnabled, "TOTP should be disabled")
	assert.Empty(t, record.TotpSecretEncrypted, "The secret should be gone")
	assert.Empty(t, record.PhoneNumber)
	assert.Empty(t, record.PreferredMethod)

	remaining, err := f.backup.CountRemaining(context.Background(), targetID)
	require.NoError(t, err)
	assert.Zero(t, remaining, "Backup codes should be invalidated")
	used, err := f.backup.Consume(context.Background(), targetID, codes[0])
	require.NoError(t, err)
	assert.False(t, used, "An invalidated code should not consume")

	event := f.lastAudit(t)
	assert.Equal(t, audit.ACTION_ADMIN_RESET, event.Action)
	assert.True(t, event.Success)
	assert.Equal(t, targetID, event.UserID.UUID)
	assert.Equal(t, adminID.String(), event.Metadata.AdminID, "The audit entry should name the admin")
	assert.Contains(t, event.Metadata.Reason, "LM-4821")
	assert.Equal(t, "totp", event.Metadata.Extra["methods_cleared"])

	require.NotEmpty(t, f.emailMock.SentNotifications, "The user should be told about the reset")
	notice := f.emailMock.SentNotifications[len(f.emailMock.SentNotifications)-1]
	assert.Equal(t, "seller@example.com", notice.To)
	assert.Contains(t, notice.Data["Event"], "administrator")
}

func TestResetUser2FARequiresReason(t *testing.T) {
	f := setupOverrideFixture(t)
	targetID := uuid.New()
	f.enroll(t, targetID)

	for _, reason := range []string{"", "   "} {
		err := f.service.ResetUser2FA(context.Background(), targetID, uuid.New(), reason)
		require.Error(t, err, "Reason %q should be rejected", reason)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	}

	record, err := f.repo.Get(context.Background(), targetID)
	require.NoError(t, err)
	assert.True(t, record.TotpEnabled, "A rejected reset must not touch the record")
}

func TestResetUser2FABlocksSelfReset(t *testing.T) {
	f := setupOverrideFixture(t)
	adminID := uuid.New()
	f.enroll(t, adminID)

	err := f.service.ResetUser2FA(context.Background(), adminID, adminID, "routine cleanup")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeForbidden))

	record, err := f.repo.Get(context.Background(), adminID)
	require.NoError(t, err)
	assert.True(t, record.TotpEnabled, "A blocked self-reset must not touch the record")
	remaining, err := f.backup.CountRemaining(context.Background(), adminID)
	require.NoError(t, err)
	assert.Equal(t, backupcode.DEFAULT_BATCH_SIZE, remaining, "Backup codes must survive a blocked reset")

	event := f.lastAudit(t)
	assert.Equal(t, audit.ACTION_ADMIN_RESET_BLOCKED, event.Action, "The blocked attempt itself should be on record")
	assert.False(t, event.Success)
	assert.Equal(t, adminID.String(), event.Metadata.AdminID)
}

func TestResetUser2FAUnknownTarget(t *testing.T) {
	f := setupOverrideFixture(t)

	err := f.service.ResetUser2FA(context.Background(), uuid.New(), uuid.New(), "ticket LM-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestGenerateEmergencyCodesIssuesShortLivedBatch(t *testing.T) {
	f := setupOverrideFixture(t)
	targetID, adminID := uuid.New(), uuid.New()
	f.enroll(t, targetID)
	f.contacts.SetEmail(targetID, "seller@example.com")

	issued, err := f.service.GenerateEmergencyCodes(context.Background(), targetID, adminID, "locked out, identity verified by phone")
	require.NoError(t, err)

	assert.Len(t, issued.Codes, backupcode.DEFAULT_EMERGENCY_SIZE)
	assert.Equal(t, f.current.Add(backupcode.DEFAULT_EMERGENCY_TTL), issued.ExpiresAt)

	used, err := f.backup.Consume(context.Background(), targetID, issued.Codes[0])
	require.NoError(t, err)
	assert.True(t, used, "A fresh emergency code should consume")

	event := f.lastAudit(t)
	assert.Equal(t, audit.ACTION_EMERGENCY_CODE_GENERATED, event.Action)
	assert.Equal(t, adminID.String(), event.Metadata.AdminID)
	assert.Equal(t, "3", event.Metadata.Extra["code_count"])

	require.NotEmpty(t, f.emailMock.SentNotifications)
	notice := f.emailMock.SentNotifications[len(f.emailMock.SentNotifications)-1]
	assert.Equal(t, "seller@example.com", notice.To)
	assert.NotEmpty(t, notice.Data["ExpiresAt"])

	// The rest of the batch dies on its own expiry.
	f.advance(backupcode.DEFAULT_EMERGENCY_TTL + time.Minute)
	used, err = f.backup.Consume(context.Background(), targetID, issued.Codes[1])
	require.NoError(t, err)
	assert.False(t, used, "Expired emergency codes should not consume")
}

func TestGenerateEmergencyCodesRequiresEnabled2FA(t *testing.T) {
	f := setupOverrideFixture(t)

	_, err := f.service.GenerateEmergencyCodes(context.Background(), uuid.New(), uuid.New(), "ticket LM-2")
	require.Error(t, err, "An unknown user has nothing to bypass")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotEnabled))

	// A record with only a pending setup is just as unenrolled.
	targetID := uuid.New()
	_, err = f.repo.GetOrCreate(context.Background(), targetID, f.current)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetPendingTotpSecret(context.Background(), targetID, "encrypted-secret", f.current))

	_, err = f.service.GenerateEmergencyCodes(context.Background(), targetID, uuid.New(), "ticket LM-3")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotEnabled))
}

func TestGenerateEmergencyCodesBlocksSelfIssue(t *testing.T) {
	f := setupOverrideFixture(t)
	adminID := uuid.New()
	f.enroll(t, adminID)

	_, err := f.service.GenerateEmergencyCodes(context.Background(), adminID, adminID, "need codes")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeForbidden))

	remaining, err := f.backup.CountRemaining(context.Background(), adminID)
	require.NoError(t, err)
	assert.Equal(t, backupcode.DEFAULT_BATCH_SIZE, remaining, "No emergency codes should have been minted")
}

func TestGenerateEmergencyCodesRequiresReason(t *testing.T) {
	f := setupOverrideFixture(t)
	targetID := uuid.New()
	f.enroll(t, targetID)

	_, err := f.service.GenerateEmergencyCodes(context.Background(), targetID, uuid.New(), "  ")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestEmergencyCodesSitAlongsideRegularBatch(t *testing.T) {
	f := setupOverrideFixture(t)
	targetID, adminID := uuid.New(), uuid.New()
	f.enroll(t, targetID)

	_, err := f.service.GenerateEmergencyCodes(context.Background(), targetID, adminID, "ticket LM-9")
	require.NoError(t, err)

	remaining, err := f.backup.CountRemaining(context.Background(), targetID)
	require.NoError(t, err)
	assert.Equal(t, backupcode.DEFAULT_BATCH_SIZE+backupcode.DEFAULT_EMERGENCY_SIZE, remaining,
		"Emergency codes add to the regular batch")

	f.advance(backupcode.DEFAULT_EMERGENCY_TTL + time.Minute)
	remaining, err = f.backup.CountRemaining(context.Background(), targetID)
	require.NoError(t, err)
	assert.Equal(t, backupcode.DEFAULT_BATCH_SIZE, remaining,
		"Only the emergency codes should age out")
}
