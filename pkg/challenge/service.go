package challenge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/backupcode"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/errors"
	"github.com/licensemart/stepup-auth/pkg/lockout"
	"github.com/licensemart/stepup-auth/pkg/ratelimit"
	"github.com/licensemart/stepup-auth/pkg/sessiongrant"
	"github.com/licensemart/stepup-auth/pkg/smscode"
	"github.com/licensemart/stepup-auth/pkg/totp"
)

const (
	DEFAULT_CHALLENGE_TTL = 5 * time.Minute
	DEFAULT_MAX_ATTEMPTS  = 5
)

// ChallengeService issues step-up challenges and verifies submitted codes.
type ChallengeService interface {
	InitiateChallenge(ctx context.Context, userID uuid.UUID, info audit.RequestInfo) (*ChallengeInfo, error)
	VerifyChallenge(ctx context.Context, token, code string, info audit.RequestInfo) (*VerifyResult, error)
}

// ChallengeInfo is returned to the caller at issuance. Token is the opaque
// challenge token; this is the only time it leaves the service.
type ChallengeInfo struct {
	Token             string    `json:"challenge_token"`
	Method            string    `json:"method"`
	ExpiresAt         time.Time `json:"expires_at"`
	MaskedDestination string    `json:"masked_destination,omitempty"`
}

// VerifyResult reports the outcome of a verification attempt. A wrong code is
// a result, not an error: Success is false and AttemptsRemaining tells the
// caller how many tries are left on this challenge.
type VerifyResult struct {
	Success           bool                `json:"success"`
	AttemptsRemaining int                 `json:"attempts_remaining"`
	Grant             *sessiongrant.Grant `json:"grant,omitempty"`
}

// ChallengeOrchestrator coordinates one step-up round trip: it picks the
// verification method from the user's enrollment, delivers SMS codes when
// needed, enforces the per-challenge attempt budget and the account lockout
// policy, and issues a session grant on success.
type ChallengeOrchestrator struct {
	repo         ChallengeRepository
	credentials  *credentials.CredentialService
	lockouts     *lockout.LockoutService
	grants       *sessiongrant.GrantService
	totpVerifier *totp.Verifier
	smsCodes     *smscode.SmsCodeService
	backupCodes  *backupcode.BackupCodeService
	auditService *audit.AuditService
	limiter      *ratelimit.RateLimiter
	challengeTTL time.Duration
	maxAttempts  int
	now          func() time.Time
}

// Option configures a ChallengeOrchestrator
type Option func(*ChallengeOrchestrator)

// WithTotpVerifier overrides the TOTP verifier
func WithTotpVerifier(verifier *totp.Verifier) Option {
	return func(s *ChallengeOrchestrator) {
		s.totpVerifier = verifier
	}
}

// WithSmsCodeService enables the SMS method
func WithSmsCodeService(smsCodes *smscode.SmsCodeService) Option {
	return func(s *ChallengeOrchestrator) {
		s.smsCodes = smsCodes
	}
}

// WithBackupCodeService enables the backup code recovery path
func WithBackupCodeService(backupCodes *backupcode.BackupCodeService) Option {
	return func(s *ChallengeOrchestrator) {
		s.backupCodes = backupCodes
	}
}

// WithAuditService enables audit trail recording
func WithAuditService(auditService *audit.AuditService) Option {
	return func(s *ChallengeOrchestrator) {
		s.auditService = auditService
	}
}

// WithRateLimiter bounds how often a user can open new challenges
func WithRateLimiter(limiter *ratelimit.RateLimiter) Option {
	return func(s *ChallengeOrchestrator) {
		s.limiter = limiter
	}
}

// WithChallengeTTL overrides how long an issued challenge stays valid
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *ChallengeOrchestrator) {
		s.challengeTTL = ttl
	}
}

// WithMaxAttempts overrides the per-challenge attempt budget
func WithMaxAttempts(max int) Option {
	return func(s *ChallengeOrchestrator) {
		s.maxAttempts = max
	}
}

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *ChallengeOrchestrator) {
		s.now = now
	}
}

// NewChallengeOrchestrator creates a challenge orchestrator. The credential,
// lockout and grant services are required; SMS delivery, backup codes, audit
// and rate limiting attach through options.
func NewChallengeOrchestrator(repo ChallengeRepository, creds *credentials.CredentialService, lockouts *lockout.LockoutService, grants *sessiongrant.GrantService, opts ...Option) *ChallengeOrchestrator {
	s := &ChallengeOrchestrator{
		repo:         repo,
		credentials:  creds,
		lockouts:     lockouts,
		grants:       grants,
		totpVerifier: totp.NewVerifier(),
		challengeTTL: DEFAULT_CHALLENGE_TTL,
		maxAttempts:  DEFAULT_MAX_ATTEMPTS,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitiateChallenge opens a step-up challenge for the user and returns the
// opaque token the client must present with its code. The method comes from
// the user's enrollment: the preferred method when one is set, otherwise TOTP
// when available, otherwise SMS. For SMS a fresh code is delivered to the
// verified phone before the challenge is handed out.
func (s *ChallengeOrchestrator) InitiateChallenge(ctx context.Context, userID uuid.UUID, info audit.RequestInfo) (*ChallengeInfo, error) {
	now := s.now().UTC()

	state, err := s.lockouts.State(ctx, userID)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to check lockout state")
	}
	if state.Locked {
		return nil, errors.AccountLocked(state.LockedUntil)
	}

	if s.limiter != nil && !s.limiter.Allow(userID.String()) {
		slog.Warn("Challenge initiation rate limited", "userID", userID)
		return nil, errors.RateLimited("")
	}

	record, err := s.credentials.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, credentials.ErrCredentialsNotFound) {
			return nil, errors.NotEnabled(userID.String())
		}
		return nil, errors.InternalWrap(err, "failed to load credential record")
	}
	if !record.HasEnabledMethod() {
		return nil, errors.NotEnabled(userID.String())
	}

	method := selectMethod(record)

	maskedDestination := ""
	if method == credentials.METHOD_SMS {
		if s.smsCodes == nil {
			return nil, errors.Internal("sms delivery is not configured")
		}
		phone, err := s.credentials.VerifiedPhone(ctx, userID)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to resolve verified phone")
		}
		masked, err := s.smsCodes.Submit(ctx, userID, phone)
		if err != nil {
			return nil, errors.InternalWrap(err, "failed to deliver sms code")
		}
		maskedDestination = masked
	}

	token, err := NewChallengeToken()
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to generate challenge token")
	}

	ch := &Challenge{
		TokenHash:         HashToken(token),
		UserID:            userID,
		Method:            method,
		Status:            STATUS_ISSUED,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.challengeTTL),
		AttemptsRemaining: s.maxAttempts,
	}
	if err := s.repo.Create(ctx, ch); err != nil {
		return nil, errors.InternalWrap(err, "failed to store challenge")
	}

	metadata := info.Metadata()
	metadata.Method = method
	s.recordAuditEvent(ctx, userID, audit.ACTION_CHALLENGE_ISSUED, true, metadata)

	slog.Info("Step-up challenge issued", "userID", userID, "method", method, "expiresAt", ch.ExpiresAt)
	return &ChallengeInfo{
		Token:             token,
		Method:            method,
		ExpiresAt:         ch.ExpiresAt,
		MaskedDestination: maskedDestination,
	}, nil
}

// VerifyChallenge checks a submitted code against an open challenge. Backup
// codes are recognized by format and accepted regardless of the challenge
// method. On success the challenge is consumed, the user's failure history is
// cleared and a session grant is issued. A wrong code burns one attempt and
// counts toward the account lockout policy.
func (s *ChallengeOrchestrator) VerifyChallenge(ctx context.Context, token, code string, info audit.RequestInfo) (*VerifyResult, error) {
	now := s.now().UTC()
	tokenHash := HashToken(token)

	ch, err := s.repo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if stderrors.Is(err, ErrChallengeNotFound) {
			return nil, errors.ChallengeNotFound()
		}
		return nil, errors.InternalWrap(err, "failed to load challenge")
	}

	switch ch.Status {
	case STATUS_CONSUMED, STATUS_LOCKED:
		// A finished challenge is indistinguishable from no challenge.
		return nil, errors.ChallengeNotFound()
	case STATUS_EXPIRED:
		return nil, errors.ChallengeExpired()
	}
	if !ch.ExpiresAt.After(now) {
		if err := s.repo.MarkExpired(ctx, tokenHash, now); err != nil {
			slog.Warn("Failed to mark challenge expired", "userID", ch.UserID, "error", err)
		}
		return nil, errors.ChallengeExpired()
	}

	// The lockout gate runs before any code comparison, so a locked account
	// stays locked even when the submitted code is correct.
	state, err := s.lockouts.State(ctx, ch.UserID)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to check lockout state")
	}
	if state.Locked {
		return nil, errors.AccountLocked(state.LockedUntil)
	}

	usedMethod, valid, failureReason, err := s.validateCode(ctx, ch, code)
	if err != nil {
		return nil, err
	}

	if !valid {
		return s.recordFailure(ctx, ch, tokenHash, usedMethod, failureReason, now, info)
	}
	return s.recordSuccess(ctx, ch, tokenHash, usedMethod, now, info)
}

// validateCode routes the submitted code to the right checker and reports
// whether it matched. Errors are reserved for states where no comparison
// could run at all.
func (s *ChallengeOrchestrator) validateCode(ctx context.Context, ch *Challenge, code string) (string, bool, string, error) {
	if s.backupCodes != nil && backupcode.IsBackupCodeFormat(code) {
		used, err := s.backupCodes.Consume(ctx, ch.UserID, code)
		if err != nil {
			return "", false, "", errors.InternalWrap(err, "failed to check backup code")
		}
		return credentials.METHOD_BACKUP, used, "invalid_backup_code", nil
	}

	switch ch.Method {
	case credentials.METHOD_TOTP:
		secret, err := s.credentials.TotpSecret(ctx, ch.UserID)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeNotEnabled) {
				// Enrollment vanished under the challenge, likely a disable
				// or admin reset. The challenge is no longer answerable.
				return "", false, "", errors.ChallengeNotFound()
			}
			return "", false, "", errors.InternalWrap(err, "failed to load totp secret")
		}
		valid, err := s.totpVerifier.Validate(secret, code)
		if err != nil {
			return "", false, "", errors.InternalWrap(err, "failed to validate totp code")
		}
		return credentials.METHOD_TOTP, valid, "invalid_code", nil

	case credentials.METHOD_SMS:
		if s.smsCodes == nil {
			return "", false, "", errors.Internal("sms delivery is not configured")
		}
		outcome, err := s.smsCodes.Verify(ctx, ch.UserID, code)
		if stderrors.Is(err, smscode.ErrNoCodePending) {
			return credentials.METHOD_SMS, false, "sms_code_expired", nil
		}
		if stderrors.Is(err, smscode.ErrTooManyAttempts) {
			return credentials.METHOD_SMS, false, "sms_code_exhausted", nil
		}
		if err != nil {
			return "", false, "", errors.InternalWrap(err, "failed to verify sms code")
		}
		return credentials.METHOD_SMS, outcome.Verified, "invalid_code", nil

	default:
		return "", false, "", errors.Internal(fmt.Sprintf("challenge has unknown method: %s", ch.Method))
	}
}

// recordFailure burns one challenge attempt and one lockout failure, then
// reports the attempts left. The caller sees an error only when the account
// locked on this attempt or the challenge itself was already finished.
func (s *ChallengeOrchestrator) recordFailure(ctx context.Context, ch *Challenge, tokenHash, usedMethod, failureReason string, now time.Time, info audit.RequestInfo) (*VerifyResult, error) {
	updated, applied, err := s.repo.RecordFailedAttempt(ctx, tokenHash, now)
	if err != nil {
		if stderrors.Is(err, ErrChallengeNotFound) {
			return nil, errors.ChallengeNotFound()
		}
		return nil, errors.InternalWrap(err, "failed to record challenge attempt")
	}
	if !applied {
		// Raced with another submission that consumed or locked it.
		return nil, errors.ChallengeNotFound()
	}

	// Account-level lockout counting must not be lost; a storage failure
	// here fails the whole verification.
	lockState, err := s.lockouts.RecordFailure(ctx, ch.UserID)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to record verification failure")
	}

	metadata := info.Metadata()
	metadata.Method = usedMethod
	metadata.FailureReason = failureReason
	s.recordAuditEvent(ctx, ch.UserID, audit.ACTION_FAILED_ATTEMPT, false, metadata)

	if updated.Status == STATUS_LOCKED {
		slog.Warn("Challenge locked after repeated failures", "userID", ch.UserID, "method", usedMethod)
	}
	if lockState.Locked {
		return nil, errors.AccountLocked(lockState.LockedUntil)
	}

	return &VerifyResult{Success: false, AttemptsRemaining: updated.AttemptsRemaining}, nil
}

// recordSuccess consumes the challenge and issues the session grant. Exactly
// one concurrent submission can get here with a consumable challenge; losers
// of that race are told the challenge is gone.
func (s *ChallengeOrchestrator) recordSuccess(ctx context.Context, ch *Challenge, tokenHash, usedMethod string, now time.Time, info audit.RequestInfo) (*VerifyResult, error) {
	consumed, err := s.repo.Consume(ctx, tokenHash, now)
	if err != nil {
		if stderrors.Is(err, ErrChallengeNotFound) {
			return nil, errors.ChallengeNotFound()
		}
		return nil, errors.InternalWrap(err, "failed to consume challenge")
	}
	if !consumed {
		return nil, errors.ChallengeNotFound()
	}

	if err := s.lockouts.RecordSuccess(ctx, ch.UserID); err != nil {
		slog.Error("Failed to clear lockout state after verification", "userID", ch.UserID, "error", err)
	}
	if err := s.credentials.MarkTwoFactorVerified(ctx, ch.UserID, now); err != nil {
		slog.Error("Failed to stamp verification time", "userID", ch.UserID, "error", err)
	}

	grant, err := s.grants.IssueGrant(ctx, ch.UserID, usedMethod)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to issue session grant")
	}

	metadata := info.Metadata()
	metadata.Method = usedMethod
	s.recordAuditEvent(ctx, ch.UserID, audit.ACTION_SUCCESSFUL_AUTH, true, metadata)

	if usedMethod == credentials.METHOD_BACKUP {
		usage := info.Metadata()
		usage.Method = usedMethod
		if remaining, err := s.backupCodes.CountRemaining(ctx, ch.UserID); err == nil {
			usage.Extra = map[string]string{"codes_remaining": strconv.Itoa(remaining)}
		}
		s.recordAuditEvent(ctx, ch.UserID, audit.ACTION_BACKUP_CODE_USAGE, true, usage)
	}

	slog.Info("Step-up verification succeeded", "userID", ch.UserID, "method", usedMethod)
	return &VerifyResult{Success: true, Grant: grant}, nil
}

// selectMethod picks the verification method for a new challenge.
func selectMethod(record *credentials.CredentialRecord) string {
	if record.PreferredMethod != "" && record.MethodEnabled(record.PreferredMethod) {
		return record.PreferredMethod
	}
	if record.TotpEnabled {
		return credentials.METHOD_TOTP
	}
	return credentials.METHOD_SMS
}

func (s *ChallengeOrchestrator) recordAuditEvent(ctx context.Context, userID uuid.UUID, action string, success bool, metadata audit.EventMetadata) {
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
