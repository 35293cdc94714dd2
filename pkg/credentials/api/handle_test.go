package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/backupcode"
	"github.com/licensemart/stepup-auth/pkg/client"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/notification"
	"github.com/licensemart/stepup-auth/pkg/sessiongrant"
	"github.com/licensemart/stepup-auth/pkg/smscode"
	"github.com/licensemart/stepup-auth/pkg/totp"
)

var apiBase = time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

type apiFixture struct {
	handler  http.Handler
	service  *credentials.CredentialService
	grants   *sessiongrant.GrantService
	verifier *totp.Verifier
	smsMock  *notification.MockNotifier
	current  time.Time
}

func setupApiFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{current: apiBase}
	clock := func() time.Time { return f.current }

	manager := notification.NewNotificationManager("https://licensemart.example")
	f.smsMock = &notification.MockNotifier{}
	manager.RegisterNotifier(notification.SMSSystem, f.smsMock)
	manager.RegisterNotifier(notification.EmailSystem, &notification.MockNotifier{})

	require.NoError(t, manager.RegisterNotification(notification.PhoneVerificationSms, notification.SMSSystem, notification.NoticeTemplate{
		Subject: "Phone Verification",
		Text:    "Your phone verification code is: {{.Passcode}}",
	}))

	f.verifier = totp.NewVerifier(totp.WithClock(clock))
	smsService := smscode.NewSmsCodeService(
		smscode.NewInMemoryCodeStore().WithClock(clock),
		smscode.WithNotificationManager(manager),
	)
	backup := backupcode.NewBackupCodeService(
		backupcode.NewInMemoryBackupCodeRepository(),
		backupcode.WithHashCost(bcrypt.MinCost),
		backupcode.WithClock(clock),
	)
	auditSvc := audit.NewAuditService(audit.NewInMemoryAuditRepository(), audit.WithClock(clock))

	cipher, err := credentials.NewSecretCipher("unit-test-encryption-key")
	require.NoError(t, err)

	f.service = credentials.NewCredentialService(credentials.NewInMemoryCredentialRepository(), cipher,
		credentials.WithTotpVerifier(f.verifier),
		credentials.WithSmsCodeService(smsService),
		credentials.WithBackupCodeService(backup),
		credentials.WithAuditService(auditSvc),
		credentials.WithClock(clock),
	)

	f.grants = sessiongrant.NewGrantService(
		sessiongrant.NewJwtTokenGenerator("unit-test-grant-secret", "stepup-auth", "licensemart"))

	f.handler = Handler(NewHandle(f.service, f.grants))
	return f
}

// do runs an authenticated request through the router. A non-nil grant is
// attached as the stepup grant cookie.
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, userID uuid.UUID, grant *sessiongrant.Grant) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	authUser := &client.AuthUser{UserId: userID.String(), UserUuid: userID}
	req = req.WithContext(context.WithValue(req.Context(), client.AuthUserKey, authUser))
	if grant != nil {
		req.AddCookie(&http.Cookie{Name: sessiongrant.GRANT_COOKIE_NAME, Value: grant.Token})
	}

	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&out))
	return out
}

// enrollTotp drives the full enrollment flow through the API and returns the
// plaintext secret plus the first backup-code batch.
func (f *apiFixture) enrollTotp(t *testing.T, userID uuid.UUID) (string, []string) {
	t.Helper()

	recorder := f.do(t, http.MethodPost, "/totp/setup", nil, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	setup := decodeBody[TotpSetupResponse](t, recorder)

	code, err := f.verifier.GenerateCode(setup.Secret, f.current)
	require.NoError(t, err)

	recorder = f.do(t, http.MethodPost, "/totp/confirm", ConfirmRequest{Code: code}, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	result := decodeBody[SetupResultResponse](t, recorder)
	return setup.Secret, result.BackupCodes
}

func (f *apiFixture) grantFor(t *testing.T, userID uuid.UUID) *sessiongrant.Grant {
	t.Helper()

	grant, err := f.grants.IssueGrant(context.Background(), userID, "totp")
	require.NoError(t, err)
	return grant
}

func wrongCodeFor(t *testing.T, v *totp.Verifier, secret string, at time.Time) string {
	t.Helper()

	valid := map[string]bool{}
	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := v.GenerateCode(secret, at.Add(offset))
		require.NoError(t, err)
		valid[code] = true
	}
	for candidate := 0; ; candidate++ {
		code := fmt.Sprintf("%06d", candidate)
		if !valid[code] {
			return code
		}
	}
}

func TestGetStatus(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()

	recorder := f.do(t, http.MethodGet, "/status", nil, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	status := decodeBody[StatusResponse](t, recorder)
	assert.False(t, status.TotpEnabled)
	assert.False(t, status.SmsEnabled)

	f.enrollTotp(t, userID)

	recorder = f.do(t, http.MethodGet, "/status", nil, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	status = decodeBody[StatusResponse](t, recorder)
	assert.True(t, status.TotpEnabled)
	assert.Equal(t, "totp", status.PreferredMethod)
	assert.Equal(t, 10, status.BackupCodesRemaining)
}

func TestGetStatusRequiresAuthentication(t *testing.T) {
	f := setupApiFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestTotpEnrollmentFlow(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()

	recorder := f.do(t, http.MethodPost, "/totp/setup", nil, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	setup := decodeBody[TotpSetupResponse](t, recorder)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")

	code, err := f.verifier.GenerateCode(setup.Secret, f.current)
	require.NoError(t, err)

	recorder = f.do(t, http.MethodPost, "/totp/confirm", ConfirmRequest{Code: code}, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	result := decodeBody[SetupResultResponse](t, recorder)
	assert.Equal(t, "totp", result.Method)
	assert.Len(t, result.BackupCodes, 10, "First enabled method hands out backup codes")
}

func TestConfirmTotpRejectsWrongCode(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()

	recorder := f.do(t, http.MethodPost, "/totp/setup", nil, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	setup := decodeBody[TotpSetupResponse](t, recorder)

	wrong := wrongCodeFor(t, f.verifier, setup.Secret, f.current)
	recorder = f.do(t, http.MethodPost, "/totp/confirm", ConfirmRequest{Code: wrong}, userID, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, "INVALID_CODE", body.Code)
}

func TestConfirmTotpValidatesBody(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()

	recorder := f.do(t, http.MethodPost, "/totp/confirm", ConfirmRequest{}, userID, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestSmsEnrollmentFlow(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()

	recorder := f.do(t, http.MethodPost, "/sms/setup", SmsSetupRequest{Phone: "+15559874567"}, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	setup := decodeBody[SmsSetupResponse](t, recorder)
	assert.Equal(t, "*******4567", setup.MaskedPhone)

	require.NotEmpty(t, f.smsMock.SentNotifications)
	code := f.smsMock.SentNotifications[len(f.smsMock.SentNotifications)-1].Data["Passcode"]
	require.NotEmpty(t, code)

	recorder = f.do(t, http.MethodPost, "/sms/confirm", ConfirmRequest{Code: code}, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	result := decodeBody[SetupResultResponse](t, recorder)
	assert.Equal(t, "sms", result.Method)
	assert.Len(t, result.BackupCodes, 10)
}

func TestSetupSmsRejectsBadPhone(t *testing.T) {
	f := setupApiFixture(t)

	recorder := f.do(t, http.MethodPost, "/sms/setup", SmsSetupRequest{Phone: "555-1234"}, uuid.New(), nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestDisableRequiresFreshGrant(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	f.enrollTotp(t, userID)

	recorder := f.do(t, http.MethodPost, "/disable", nil, userID, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code, "Disable without a grant should be rejected")

	recorder = f.do(t, http.MethodPost, "/disable", nil, userID, f.grantFor(t, userID))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = f.do(t, http.MethodGet, "/status", nil, userID, nil)
	status := decodeBody[StatusResponse](t, recorder)
	assert.False(t, status.TotpEnabled, "Disable should clear the enrolled method")
}

func TestDisableRejectsAnotherUsersGrant(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	f.enrollTotp(t, userID)

	recorder := f.do(t, http.MethodPost, "/disable", nil, userID, f.grantFor(t, uuid.New()))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code, "A grant issued to someone else proves nothing")
}

func TestSetPreferredMethod(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	f.enrollTotp(t, userID)

	recorder := f.do(t, http.MethodPost, "/sms/setup", SmsSetupRequest{Phone: "+15559874567"}, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	code := f.smsMock.SentNotifications[len(f.smsMock.SentNotifications)-1].Data["Passcode"]
	recorder = f.do(t, http.MethodPost, "/sms/confirm", ConfirmRequest{Code: code}, userID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = f.do(t, http.MethodPut, "/preferred-method", PreferredMethodRequest{Method: "sms"}, userID, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code, "Changing the preferred method needs a grant")

	recorder = f.do(t, http.MethodPut, "/preferred-method", PreferredMethodRequest{Method: "sms"}, userID, f.grantFor(t, userID))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = f.do(t, http.MethodGet, "/status", nil, userID, nil)
	status := decodeBody[StatusResponse](t, recorder)
	assert.Equal(t, "sms", status.PreferredMethod)
}

func TestRegenerateBackupCodes(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	_, firstBatch := f.enrollTotp(t, userID)

	recorder := f.do(t, http.MethodPost, "/backup-codes/regenerate", nil, userID, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = f.do(t, http.MethodPost, "/backup-codes/regenerate", nil, userID, f.grantFor(t, userID))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	regen := decodeBody[RegenerateResponse](t, recorder)
	assert.Len(t, regen.BackupCodes, 10)
	assert.NotEqual(t, firstBatch, regen.BackupCodes)
}
