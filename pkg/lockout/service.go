package lockout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/config"
	"github.com/licensemart/stepup-auth/pkg/notification"
	"github.com/licensemart/stepup-auth/pkg/utils"
)

const (
	DEFAULT_THRESHOLD     = 5
	DEFAULT_WINDOW        = 15 * time.Minute
	DEFAULT_LOCK_DURATION = 30 * time.Minute
)

// LockoutService tracks verification failures per user and locks
// verification once too many pile up inside the failure window. Lock expiry
// is computed lazily against the clock, so a lock ends on time whether or not
// the background sweep has run.
type LockoutService struct {
	repo                LockoutRepository
	auditService        *audit.AuditService
	notificationManager *notification.NotificationManager
	contacts            notification.UserContactResolver
	policy              FailurePolicy
	retry               config.RetryConfig
	now                 func() time.Time
}

// Option configures a LockoutService
type Option func(*LockoutService)

// WithPolicy overrides the failure thresholds
func WithPolicy(policy FailurePolicy) Option {
	return func(s *LockoutService) {
		s.policy = policy
	}
}

// WithAuditService enables lockout events on the audit trail
func WithAuditService(auditService *audit.AuditService) Option {
	return func(s *LockoutService) {
		s.auditService = auditService
	}
}

// WithNotificationManager enables lockout notices. User email notices also
// need a contact resolver via WithContactResolver.
func WithNotificationManager(nm *notification.NotificationManager) Option {
	return func(s *LockoutService) {
		s.notificationManager = nm
	}
}

// WithContactResolver sets the lookup for user notification addresses
func WithContactResolver(contacts notification.UserContactResolver) Option {
	return func(s *LockoutService) {
		s.contacts = contacts
	}
}

// WithRetryConfig overrides the sweep retry policy
func WithRetryConfig(retry config.RetryConfig) Option {
	return func(s *LockoutService) {
		s.retry = retry
	}
}

// WithClock sets the time source, used by tests for deterministic windows
func WithClock(now func() time.Time) Option {
	return func(s *LockoutService) {
		s.now = now
	}
}

// NewLockoutService creates a new lockout service
func NewLockoutService(repo LockoutRepository, opts ...Option) *LockoutService {
	s := &LockoutService{
		repo: repo,
		policy: FailurePolicy{
			Threshold:    DEFAULT_THRESHOLD,
			Window:       DEFAULT_WINDOW,
			LockDuration: DEFAULT_LOCK_DURATION,
		},
		retry: config.DefaultRetryConfig(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockState is the user-facing view of a lock record
type LockState struct {
	Locked       bool
	LockedUntil  time.Time
	FailureCount int
}

// RecordFailure counts one verification failure and reports the resulting
// state. Crossing the threshold triggers the lockout side effects: an audit
// entry, an ops alert and a best-effort user notice.
func (s *LockoutService) RecordFailure(ctx context.Context, userID uuid.UUID) (*LockState, error) {
	// Microsecond precision survives a timestamptz roundtrip, which the
	// just-locked comparison below depends on.
	now := s.now().UTC().Truncate(time.Microsecond)

	record, err := s.repo.RecordFailure(ctx, userID, now, s.policy)
	if err != nil {
		return nil, fmt.Errorf("failed to record verification failure: %w", err)
	}

	justLocked := record.LockedUntil != nil && record.LockedUntil.Equal(now.Add(s.policy.LockDuration))
	if justLocked {
		slog.Warn("Verification locked", "userID", userID, "failureCount", record.FailureCount, "lockedUntil", *record.LockedUntil)
		s.recordLockoutEvent(ctx, userID, record)
		s.sendLockoutNotices(ctx, userID, record)
	}

	return stateFromRecord(record, now), nil
}

// RecordSuccess clears the user's failure history
func (s *LockoutService) RecordSuccess(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear failure history: %w", err)
	}
	return nil
}

// IsLocked reports whether verification is currently locked for the user
func (s *LockoutService) IsLocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	state, err := s.State(ctx, userID)
	if err != nil {
		return false, err
	}
	return state.Locked, nil
}

// State returns the user's current lock state. Users without a failure
// record report as unlocked with a zero count.
func (s *LockoutService) State(ctx context.Context, userID uuid.UUID) (*LockState, error) {
	record, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrLockRecordNotFound) {
		return &LockState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lockout state: %w", err)
	}
	return stateFromRecord(record, s.now()), nil
}

// SweepExpired removes records whose lock ended and whose failures fell out
// of the window, returning how many were removed.
func (s *LockoutService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	removed, err := s.repo.DeleteStale(ctx, now, now.Add(-s.policy.Window))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep lockout records: %w", err)
	}
	return removed, nil
}

// StartSweep runs SweepExpired on a ticker until the context ends. Failures
// retry under the configured bounded backoff before waiting for the next
// tick.
func (s *LockoutService) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepWithRetry(ctx)
			}
		}
	}()
}

func (s *LockoutService) sweepWithRetry(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		removed, err := s.SweepExpired(ctx)
		if err == nil {
			if removed > 0 {
				slog.Info("Swept stale lockout records", "removed", removed)
			}
			return
		}
		if attempt >= s.retry.MaxAttempts {
			slog.Error("Lockout sweep failed", "attempts", attempt, "error", err)
			return
		}
		delay := s.retry.DelayFor(attempt)
		slog.Warn("Lockout sweep failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *LockoutService) recordLockoutEvent(ctx context.Context, userID uuid.UUID, record *LockRecord) {
	if s.auditService == nil {
		return
	}
	_, err := s.auditService.Record(ctx, audit.RecordParams{
		UserID:  uuid.NullUUID{UUID: userID, Valid: true},
		Action:  audit.ACTION_LOCKOUT,
		Success: false,
		Metadata: audit.EventMetadata{
			Reason: "failure_threshold_crossed",
			Extra: map[string]string{
				"failure_count": strconv.Itoa(record.FailureCount),
				"locked_until":  record.LockedUntil.UTC().Format(time.RFC3339),
			},
		},
	})
	if err != nil {
		slog.Error("Failed to record lockout audit event", "userID", userID, "error", err)
	}
}

func (s *LockoutService) sendLockoutNotices(ctx context.Context, userID uuid.UUID, record *LockRecord) {
	if s.notificationManager == nil {
		return
	}

	data := map[string]string{
		"UserID":      userID.String(),
		"LockedUntil": record.LockedUntil.UTC().Format(time.RFC3339),
	}
	err := s.notificationManager.Send(notification.LockoutOpsAlert, notification.NotificationData{Data: data})
	if err != nil {
		slog.Warn("Failed to send lockout ops alert", "userID", userID, "error", err)
	}

	if s.contacts == nil {
		return
	}
	email, err := s.contacts.EmailForUser(ctx, userID)
	if err != nil {
		slog.Warn("No contact on record for lockout notice", "userID", userID, "error", err)
		return
	}
	err = s.notificationManager.Send(notification.LockoutNoticeEmail, notification.NotificationData{
		To:   email,
		Data: data,
	})
	if err != nil {
		slog.Warn("Failed to send lockout notice", "userID", userID, "email", utils.MaskEmail(email), "error", err)
	}
}

func stateFromRecord(record *LockRecord, now time.Time) *LockState {
	state := &LockState{FailureCount: record.FailureCount}
	if record.LockedUntil != nil && record.LockedUntil.After(now) {
		state.Locked = true
		state.LockedUntil = *record.LockedUntil
	}
	return state
}
