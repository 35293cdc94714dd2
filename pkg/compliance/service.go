package compliance

import (
	"context"
	"time"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/errors"
)

// AdoptionMetrics summarizes how far 2FA enrollment has spread across the
// credential store.
type AdoptionMetrics struct {
	TotalRecords  int     `json:"total_records"`
	TotpEnabled   int     `json:"totp_enabled"`
	SmsEnabled    int     `json:"sms_enabled"`
	AnyEnabled    int     `json:"any_enabled"`
	BothEnabled   int     `json:"both_enabled"`
	PreferredTotp int     `json:"preferred_totp"`
	PreferredSms  int     `json:"preferred_sms"`
	AdoptionRate  float64 `json:"adoption_rate"`
}

// TrendBucket is one window of verification activity.
type TrendBucket struct {
	WindowStart time.Time `json:"window_start"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	Lockouts    int       `json:"lockouts"`
	FailureRate float64   `json:"failure_rate"`
}

// ComplianceService answers read-only rollup queries over the credential
// store and the audit log for dashboards and periodic reports. It never
// mutates either source.
type ComplianceService struct {
	credentialRepo credentials.CredentialRepository
	auditService   *audit.AuditService
	now            func() time.Time
}

// Option configures a ComplianceService
type Option func(*ComplianceService)

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *ComplianceService) {
		s.now = now
	}
}

// NewComplianceService creates a compliance aggregation service
func NewComplianceService(credentialRepo credentials.CredentialRepository, auditService *audit.AuditService, opts ...Option) *ComplianceService {
	s := &ComplianceService{
		credentialRepo: credentialRepo,
		auditService:   auditService,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAdoptionMetrics reports enrollment totals and the share of known users
// with at least one enabled method.
func (s *ComplianceService) GetAdoptionMetrics(ctx context.Context) (*AdoptionMetrics, error) {
	stats, err := s.credentialRepo.Stats(ctx)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to aggregate credential records")
	}

	metrics := &AdoptionMetrics{
		TotalRecords:  stats.TotalRecords,
		TotpEnabled:   stats.TotpEnabled,
		SmsEnabled:    stats.SmsEnabled,
		AnyEnabled:    stats.AnyEnabled,
		BothEnabled:   stats.BothEnabled,
		PreferredTotp: stats.PreferredTotp,
		PreferredSms:  stats.PreferredSms,
	}
	if stats.TotalRecords > 0 {
		metrics.AdoptionRate = float64(stats.AnyEnabled) / float64(stats.TotalRecords)
	}
	return metrics, nil
}

// GetFailureTrend buckets verification outcomes from the audit log into
// fixed windows from since until now. Windows with no activity are included,
// so a plotted series has no gaps.
func (s *ComplianceService) GetFailureTrend(ctx context.Context, since time.Time, bucket time.Duration) ([]TrendBucket, error) {
	if bucket <= 0 {
		return nil, errors.Validation("bucket", "bucket duration must be positive")
	}
	now := s.now().UTC()
	since = since.UTC()
	if !since.Before(now) {
		return nil, errors.Validation("since", "since must lie in the past")
	}

	events, err := s.auditService.EventsBetween(ctx, since, now)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to read audit events")
	}

	buckets := make(map[time.Time]*TrendBucket)
	for _, event := range events {
		windowStart := since.Add(event.Timestamp.Sub(since).Truncate(bucket))
		entry := buckets[windowStart]
		if entry == nil {
			entry = &TrendBucket{WindowStart: windowStart}
		}
		switch event.Action {
		case audit.ACTION_FAILED_ATTEMPT:
			entry.Failures++
		case audit.ACTION_SUCCESSFUL_AUTH:
			entry.Successes++
		case audit.ACTION_LOCKOUT:
			entry.Lockouts++
		default:
			continue
		}
		buckets[windowStart] = entry
	}

	// The trend covers [since, now): the final window is the partial one in
	// progress, and the audit read is half-open on the same bound.
	trend := make([]TrendBucket, 0, len(buckets))
	for windowStart := since; windowStart.Before(now); windowStart = windowStart.Add(bucket) {
		entry := buckets[windowStart]
		if entry == nil {
			entry = &TrendBucket{WindowStart: windowStart}
		}
		if attempts := entry.Failures + entry.Successes; attempts > 0 {
			entry.FailureRate = float64(entry.Failures) / float64(attempts)
		}
		trend = append(trend, *entry)
	}
	return trend, nil
}
