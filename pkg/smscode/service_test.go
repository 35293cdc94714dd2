package smscode

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensemart/stepup-auth/pkg/notification"
)

func setupNotificationCapture(t *testing.T) (*notification.NotificationManager, *notification.MockNotifier) {
	t.Helper()

	manager := notification.NewNotificationManager("")
	mock := &notification.MockNotifier{}
	manager.RegisterNotifier(notification.SMSSystem, mock)

	err := manager.RegisterNotification(notification.TwofaCodeSms, notification.SMSSystem, notification.NoticeTemplate{
		Subject: "2FA Code",
		Text:    "Your 2FA code is: {{.TwofaPasscode}}",
	})
	require.NoError(t, err)

	err = manager.RegisterNotification(notification.PhoneVerificationSms, notification.SMSSystem, notification.NoticeTemplate{
		Subject: "Phone Verification",
		Text:    "Your phone verification code is: {{.Passcode}}",
	})
	require.NoError(t, err)

	return manager, mock
}

func TestSubmitDeliversAndVerifies(t *testing.T) {
	manager, mock := setupNotificationCapture(t)
	store := NewInMemoryCodeStore()
	service := NewSmsCodeService(store, WithNotificationManager(manager))
	userID := uuid.New()

	masked, err := service.Submit(context.Background(), userID, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "*******4567", masked, "Only the last four digits should show")

	require.Len(t, mock.SentNotifications, 1, "One SMS should go out")
	sent := mock.SentNotifications[0]
	assert.Equal(t, "+15551234567", sent.To, "The SMS should go to the unmasked number")
	code := sent.Data["TwofaPasscode"]
	require.Len(t, code, 6, "Codes should be six digits by default")

	outcome, err := service.Verify(context.Background(), userID, code)
	require.NoError(t, err)
	assert.True(t, outcome.Verified, "The delivered code should verify")

	_, err = service.Verify(context.Background(), userID, code)
	assert.ErrorIs(t, err, ErrNoCodePending, "A verified code should be gone")
}

func TestSubmitPhoneVerificationUsesEnrollmentWording(t *testing.T) {
	manager, mock := setupNotificationCapture(t)
	service := NewSmsCodeService(NewInMemoryCodeStore(), WithNotificationManager(manager))

	_, err := service.SubmitPhoneVerification(context.Background(), uuid.New(), "+15551234567")
	require.NoError(t, err)

	require.Len(t, mock.SentNotifications, 1)
	assert.NotEmpty(t, mock.SentNotifications[0].Data["Passcode"], "Enrollment codes should use the Passcode template key")
	assert.Empty(t, mock.SentNotifications[0].Data["TwofaPasscode"], "Enrollment codes should not reuse the challenge template key")
}

func TestSubmitRequiresPhone(t *testing.T) {
	service := NewSmsCodeService(NewInMemoryCodeStore())

	_, err := service.Submit(context.Background(), uuid.New(), "")
	assert.Error(t, err)
}

func TestVerifyCountsDownAttempts(t *testing.T) {
	store := NewInMemoryCodeStore()
	service := NewSmsCodeService(store)
	userID := uuid.New()

	require.NoError(t, store.Put(context.Background(), userID, "123456", time.Minute))

	for _, wantRemaining := range []int{2, 1, 0} {
		outcome, err := service.Verify(context.Background(), userID, "000000")
		require.NoError(t, err)
		assert.False(t, outcome.Verified)
		assert.Equal(t, wantRemaining, outcome.AttemptsRemaining)
	}

	// The third miss burned the code; even the right one is too late now.
	_, err := service.Verify(context.Background(), userID, "123456")
	assert.ErrorIs(t, err, ErrNoCodePending)
}

func TestVerifySucceedsOnFinalAttempt(t *testing.T) {
	store := NewInMemoryCodeStore()
	service := NewSmsCodeService(store)
	userID := uuid.New()

	require.NoError(t, store.Put(context.Background(), userID, "123456", time.Minute))

	for i := 0; i < 2; i++ {
		outcome, err := service.Verify(context.Background(), userID, "999999")
		require.NoError(t, err)
		require.False(t, outcome.Verified)
	}

	outcome, err := service.Verify(context.Background(), userID, "123456")
	require.NoError(t, err)
	assert.True(t, outcome.Verified, "The last allowed attempt should still verify")
}

func TestVerifyPastTheBoundReportsTooManyAttempts(t *testing.T) {
	store := NewInMemoryCodeStore()
	service := NewSmsCodeService(store, WithMaxAttempts(1))
	userID := uuid.New()

	require.NoError(t, store.Put(context.Background(), userID, "123456", time.Minute))

	// Another verifier already spent the only attempt.
	_, err := store.IncrAttempts(context.Background(), userID, time.Minute)
	require.NoError(t, err)

	_, err = service.Verify(context.Background(), userID, "123456")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	_, err = service.Verify(context.Background(), userID, "123456")
	assert.ErrorIs(t, err, ErrNoCodePending, "An exhausted code should be discarded")
}

func TestVerifyExpiredCode(t *testing.T) {
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryCodeStore().WithClock(func() time.Time { return current })
	service := NewSmsCodeService(store)
	userID := uuid.New()

	require.NoError(t, store.Put(context.Background(), userID, "123456", 5*time.Minute))

	current = current.Add(6 * time.Minute)

	_, err := service.Verify(context.Background(), userID, "123456")
	assert.ErrorIs(t, err, ErrNoCodePending, "Expired codes should read as absent")
}

func TestSubmitReplacesOutstandingCode(t *testing.T) {
	store := NewInMemoryCodeStore()
	service := NewSmsCodeService(store)
	userID := uuid.New()

	// A seeded non-numeric code can never collide with a generated one.
	require.NoError(t, store.Put(context.Background(), userID, "oldcode", time.Minute))

	// Spend an attempt, then issue a replacement.
	outcome, err := service.Verify(context.Background(), userID, "000000")
	require.NoError(t, err)
	require.Equal(t, 2, outcome.AttemptsRemaining)

	_, err = service.Submit(context.Background(), userID, "+15551234567")
	require.NoError(t, err)

	outcome, err = service.Verify(context.Background(), userID, "oldcode")
	require.NoError(t, err)
	assert.False(t, outcome.Verified, "The replaced code should no longer match")
	assert.Equal(t, 2, outcome.AttemptsRemaining, "A replacement should reset the attempt budget")

	replacement, err := store.Get(context.Background(), userID)
	require.NoError(t, err)
	outcome, err = service.Verify(context.Background(), userID, replacement)
	require.NoError(t, err)
	assert.True(t, outcome.Verified)
}

func TestGenerateCode(t *testing.T) {
	for _, length := range []int{6, 7, 8} {
		for i := 0; i < 50; i++ {
			code := generateCode(length)
			require.Len(t, code, length, "Codes should be zero-padded to the full length")
			for _, r := range code {
				require.True(t, r >= '0' && r <= '9', "Codes should be numeric, got %q", code)
			}
		}
	}
}

func TestFileStoreSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()

	store, err := NewFileCodeStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), userID, "123456", time.Hour))
	_, err = store.IncrAttempts(context.Background(), userID, time.Hour)
	require.NoError(t, err)

	reloaded, err := NewFileCodeStore(dir)
	require.NoError(t, err)

	code, err := reloaded.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "123456", code, "Codes should survive a reload")

	attempts, err := reloaded.IncrAttempts(context.Background(), userID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "Attempt counts should survive a reload")

	require.NoError(t, reloaded.Delete(context.Background(), userID))
	_, err = reloaded.Get(context.Background(), userID)
	assert.ErrorIs(t, err, ErrNoCodePending)
}
