package smscode

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/licensemart/stepup-auth/pkg/notification"
	"github.com/licensemart/stepup-auth/pkg/utils"
)

const (
	DEFAULT_CODE_TTL     = 5 * time.Minute
	DEFAULT_MAX_ATTEMPTS = 3
	DEFAULT_CODE_LENGTH  = 6
)

// SmsCodeService delivers short-lived numeric codes over SMS and verifies
// them. Codes live in a CodeStore with their own TTL and attempt bound,
// independent of any challenge the caller runs them under.
type SmsCodeService struct {
	store               CodeStore
	notificationManager *notification.NotificationManager
	codeTTL             time.Duration
	maxAttempts         int
	codeLength          int
}

// Option configures an SmsCodeService
type Option func(*SmsCodeService)

// WithNotificationManager sets the manager used to deliver codes. Without
// one, codes are stored but not sent, which only makes sense in tests.
func WithNotificationManager(nm *notification.NotificationManager) Option {
	return func(s *SmsCodeService) {
		s.notificationManager = nm
	}
}

// WithCodeTTL overrides how long a delivered code stays valid
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *SmsCodeService) {
		s.codeTTL = ttl
	}
}

// WithMaxAttempts overrides how many verification attempts a code allows
func WithMaxAttempts(max int) Option {
	return func(s *SmsCodeService) {
		s.maxAttempts = max
	}
}

// WithCodeLength overrides the number of digits per code
func WithCodeLength(length int) Option {
	return func(s *SmsCodeService) {
		s.codeLength = length
	}
}

// NewSmsCodeService creates a new SMS code service
func NewSmsCodeService(store CodeStore, opts ...Option) *SmsCodeService {
	s := &SmsCodeService{
		store:       store,
		codeTTL:     DEFAULT_CODE_TTL,
		maxAttempts: DEFAULT_MAX_ATTEMPTS,
		codeLength:  DEFAULT_CODE_LENGTH,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyOutcome reports a verification attempt. AttemptsRemaining is
// meaningful only when Verified is false.
type VerifyOutcome struct {
	Verified          bool
	AttemptsRemaining int
}

// Submit generates a code, stores it and delivers it to the phone as a
// two-factor verification code. Returns the masked phone number for display.
func (s *SmsCodeService) Submit(ctx context.Context, userID uuid.UUID, phone string) (string, error) {
	return s.submit(ctx, userID, phone, notification.TwofaCodeSms, "TwofaPasscode")
}

// SubmitPhoneVerification is Submit with the phone-enrollment wording, used
// when a user first proves ownership of a number.
func (s *SmsCodeService) SubmitPhoneVerification(ctx context.Context, userID uuid.UUID, phone string) (string, error) {
	return s.submit(ctx, userID, phone, notification.PhoneVerificationSms, "Passcode")
}

func (s *SmsCodeService) submit(ctx context.Context, userID uuid.UUID, phone string, noticeType notification.NoticeType, dataKey string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("phone number is required")
	}

	code := generateCode(s.codeLength)
	if err := s.store.Put(ctx, userID, code, s.codeTTL); err != nil {
		return "", fmt.Errorf("failed to store sms code: %w", err)
	}

	masked := utils.MaskPhone(phone)
	if s.notificationManager != nil {
		err := s.notificationManager.Send(noticeType, notification.NotificationData{
			To:   phone,
			Data: map[string]string{dataKey: code},
		})
		if err != nil {
			slog.Error("Failed to deliver sms code", "userID", userID, "phone", masked, "error", err)
			return "", fmt.Errorf("failed to deliver sms code: %w", err)
		}
	}

	slog.Info("Delivered sms code", "userID", userID, "phone", masked)
	return masked, nil
}

// Verify checks a submitted code against the outstanding one. Every call
// counts against the attempt bound before the comparison runs; the code is
// discarded on success and when its attempts run out.
func (s *SmsCodeService) Verify(ctx context.Context, userID uuid.UUID, code string) (*VerifyOutcome, error) {
	stored, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoCodePending) {
			return nil, ErrNoCodePending
		}
		return nil, fmt.Errorf("failed to load sms code: %w", err)
	}

	attempts, err := s.store.IncrAttempts(ctx, userID, s.codeTTL)
	if err != nil {
		if errors.Is(err, ErrNoCodePending) {
			return nil, ErrNoCodePending
		}
		return nil, fmt.Errorf("failed to count sms attempt: %w", err)
	}
	if attempts > s.maxAttempts {
		// Concurrent attempts raced past the bound; discard the code.
		if err := s.store.Delete(ctx, userID); err != nil {
			slog.Warn("Failed to discard exhausted sms code", "userID", userID, "error", err)
		}
		return nil, ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		remaining := s.maxAttempts - attempts
		slog.Warn("Sms code mismatch", "userID", userID, "attemptsRemaining", remaining)
		if remaining <= 0 {
			if err := s.store.Delete(ctx, userID); err != nil {
				slog.Warn("Failed to discard exhausted sms code", "userID", userID, "error", err)
			}
		}
		return &VerifyOutcome{Verified: false, AttemptsRemaining: remaining}, nil
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to clear verified sms code: %w", err)
	}
	slog.Info("Sms code verified", "userID", userID)
	return &VerifyOutcome{Verified: true}, nil
}

// generateCode returns a zero-padded numeric code of the given length
func generateCode(length int) string {
	max := 1
	for i := 0; i < length; i++ {
		max *= 10
	}
	return fmt.Sprintf("%0*d", length, utils.RandomInt(max))
}
