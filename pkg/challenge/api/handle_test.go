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
	"github.com/licensemart/stepup-auth/pkg/challenge"
	"github.com/licensemart/stepup-auth/pkg/client"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/lockout"
	"github.com/licensemart/stepup-auth/pkg/notification"
	"github.com/licensemart/stepup-auth/pkg/ratelimit"
	"github.com/licensemart/stepup-auth/pkg/sessiongrant"
	"github.com/licensemart/stepup-auth/pkg/smscode"
	"github.com/licensemart/stepup-auth/pkg/totp"
)

var apiBase = time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC)

type apiFixture struct {
	handler  http.Handler
	creds    *credentials.CredentialService
	grants   *sessiongrant.GrantService
	verifier *totp.Verifier
	current  time.Time
}

func (f *apiFixture) advance(d time.Duration) {
	f.current = f.current.Add(d)
}

func setupApiFixture(t *testing.T, orchestratorOpts ...challenge.Option) *apiFixture {
	t.Helper()

	f := &apiFixture{current: apiBase}
	clock := func() time.Time { return f.current }

	manager := notification.NewNotificationManager("https://licensemart.example")
	manager.RegisterNotifier(notification.SMSSystem, &notification.MockNotifier{})
	require.NoError(t, manager.RegisterNotification(notification.TwofaCodeSms, notification.SMSSystem, notification.NoticeTemplate{
		Subject: "Verification code",
		Text:    "Your verification code is: {{.TwofaPasscode}}",
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
	lockouts := lockout.NewLockoutService(
		lockout.NewInMemoryLockoutRepository(),
		lockout.WithAuditService(auditSvc),
		lockout.WithClock(clock),
	)
	f.grants = sessiongrant.NewGrantService(
		sessiongrant.NewJwtTokenGenerator("unit-test-grant-secret", "stepup-auth", "licensemart"))

	cipher, err := credentials.NewSecretCipher("unit-test-encryption-key")
	require.NoError(t, err)
	f.creds = credentials.NewCredentialService(
		credentials.NewInMemoryCredentialRepository(), cipher,
		credentials.WithTotpVerifier(f.verifier),
		credentials.WithSmsCodeService(smsService),
		credentials.WithBackupCodeService(backup),
		credentials.WithClock(clock),
	)

	opts := append([]challenge.Option{
		challenge.WithTotpVerifier(f.verifier),
		challenge.WithSmsCodeService(smsService),
		challenge.WithBackupCodeService(backup),
		challenge.WithAuditService(auditSvc),
		challenge.WithClock(clock),
	}, orchestratorOpts...)
	orchestrator := challenge.NewChallengeOrchestrator(
		challenge.NewInMemoryChallengeRepository(), f.creds, lockouts, f.grants, opts...)

	cookies := sessiongrant.NewGrantCookieService(true, true, http.SameSiteStrictMode)
	f.handler = Handler(NewHandle(orchestrator, cookies))
	return f
}

func (f *apiFixture) enrollTotp(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	setup, err := f.creds.EnableTotp(context.Background(), userID)
	require.NoError(t, err)
	code, err := f.verifier.GenerateCode(setup.Secret, f.current)
	require.NoError(t, err)
	_, err = f.creds.ConfirmTotpSetup(context.Background(), userID, code)
	require.NoError(t, err)
	return setup.Secret
}

func (f *apiFixture) do(t *testing.T, path string, body interface{}, caller *client.AuthUser) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	if caller != nil {
		req = req.WithContext(context.WithValue(req.Context(), client.AuthUserKey, caller))
	}

	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, req)
	return recorder
}

func asUser(userID uuid.UUID, roles ...string) *client.AuthUser {
	return &client.AuthUser{
		UserId:      userID.String(),
		UserUuid:    userID,
		ExtraClaims: client.ExtraClaims{Roles: roles},
	}
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&out))
	return out
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

func TestInitiateAndVerifyTotp(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	secret := f.enrollTotp(t, userID)

	recorder := f.do(t, "/initiate", nil, asUser(userID))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	issued := decodeBody[ChallengeResponse](t, recorder)
	assert.Equal(t, "totp", issued.Method)
	assert.NotEmpty(t, issued.ChallengeToken)
	assert.True(t, issued.ExpiresAt.Equal(f.current.Add(5*time.Minute)), "Challenge should expire five minutes out")

	code, err := f.verifier.GenerateCode(secret, f.current)
	require.NoError(t, err)

	recorder = f.do(t, "/verify", VerifyRequest{ChallengeToken: issued.ChallengeToken, Code: code}, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	result := decodeBody[VerifyResponse](t, recorder)
	assert.True(t, result.Success)
	require.NotNil(t, result.Grant)
	assert.Equal(t, "totp", result.Grant.Method)

	claims, err := f.grants.ValidateGrant(context.Background(), result.Grant.Token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestVerifySetsGrantCookie(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	secret := f.enrollTotp(t, userID)

	recorder := f.do(t, "/initiate", nil, asUser(userID))
	require.Equal(t, http.StatusOK, recorder.Code)
	issued := decodeBody[ChallengeResponse](t, recorder)

	code, err := f.verifier.GenerateCode(secret, f.current)
	require.NoError(t, err)
	recorder = f.do(t, "/verify", VerifyRequest{ChallengeToken: issued.ChallengeToken, Code: code}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := recorder.Result()
	defer response.Body.Close()
	var grantCookie *http.Cookie
	for _, cookie := range response.Cookies() {
		if cookie.Name == sessiongrant.GRANT_COOKIE_NAME {
			grantCookie = cookie
		}
	}
	require.NotNil(t, grantCookie, "A successful verification should set the grant cookie")
	assert.NotEmpty(t, grantCookie.Value)
	assert.True(t, grantCookie.HttpOnly)
}

func TestInitiateRequiresAuthentication(t *testing.T) {
	f := setupApiFixture(t)

	recorder := f.do(t, "/initiate", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestInitiateUnknownUserLooksUnavailable(t *testing.T) {
	f := setupApiFixture(t)
	admin := asUser(uuid.New(), "admin")

	recorder := f.do(t, "/initiate", InitiateRequest{UserID: uuid.New().String()}, admin)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, "NOT_ENABLED", body.Code)
	assert.Equal(t, unavailableMessage, body.Error)
	assert.Empty(t, body.Details, "The response must not say why the account is unavailable")
}

func TestInitiateUnenrolledCallerLooksUnavailable(t *testing.T) {
	f := setupApiFixture(t)

	recorder := f.do(t, "/initiate", nil, asUser(uuid.New()))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, unavailableMessage, body.Error)
}

func TestInitiateForOtherUserRequiresAdmin(t *testing.T) {
	f := setupApiFixture(t)
	target := uuid.New()
	f.enrollTotp(t, target)

	recorder := f.do(t, "/initiate", InitiateRequest{UserID: target.String()}, asUser(uuid.New(), "user"))
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = f.do(t, "/initiate", InitiateRequest{UserID: target.String()}, asUser(uuid.New(), "admin"))
	assert.Equal(t, http.StatusOK, recorder.Code, "Admins may initiate on behalf of a user")
}

func TestVerifyWrongCodeBurnsAttempt(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	secret := f.enrollTotp(t, userID)

	recorder := f.do(t, "/initiate", nil, asUser(userID))
	require.Equal(t, http.StatusOK, recorder.Code)
	issued := decodeBody[ChallengeResponse](t, recorder)

	wrong := wrongCodeFor(t, f.verifier, secret, f.current)
	recorder = f.do(t, "/verify", VerifyRequest{ChallengeToken: issued.ChallengeToken, Code: wrong}, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	result := decodeBody[VerifyResponse](t, recorder)
	assert.False(t, result.Success)
	assert.Equal(t, 4, result.AttemptsRemaining)
	assert.Nil(t, result.Grant)
}

func TestVerifyExpiredChallenge(t *testing.T) {
	f := setupApiFixture(t)
	userID := uuid.New()
	secret := f.enrollTotp(t, userID)

	recorder := f.do(t, "/initiate", nil, asUser(userID))
	require.Equal(t, http.StatusOK, recorder.Code)
	issued := decodeBody[ChallengeResponse](t, recorder)

	f.advance(6 * time.Minute)
	code, err := f.verifier.GenerateCode(secret, f.current)
	require.NoError(t, err)

	recorder = f.do(t, "/verify", VerifyRequest{ChallengeToken: issued.ChallengeToken, Code: code}, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, "CHALLENGE_EXPIRED", body.Code)
}

func TestVerifyUnknownToken(t *testing.T) {
	f := setupApiFixture(t)

	recorder := f.do(t, "/verify", VerifyRequest{ChallengeToken: "no-such-token", Code: "123456"}, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, "CHALLENGE_NOT_FOUND", body.Code)
}

func TestVerifyValidatesBody(t *testing.T) {
	f := setupApiFixture(t)

	recorder := f.do(t, "/verify", VerifyRequest{Code: "123456"}, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = f.do(t, "/verify", VerifyRequest{ChallengeToken: "token"}, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestInitiateRateLimited(t *testing.T) {
	f := setupApiFixture(t, challenge.WithRateLimiter(ratelimit.NewRateLimiter(2, 0, time.Hour)))
	userID := uuid.New()
	f.enrollTotp(t, userID)

	caller := asUser(userID)
	for i := 0; i < 2; i++ {
		recorder := f.do(t, "/initiate", nil, caller)
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	recorder := f.do(t, "/initiate", nil, caller)
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	body := decodeBody[ErrorResponse](t, recorder)
	assert.Equal(t, "RATE_LIMITED", body.Code)
}
