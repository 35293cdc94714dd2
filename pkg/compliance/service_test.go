package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	"github.com/licensemart/stepup-auth/pkg/errors"
)

var complianceBase = time.Date(2025, 4, 21, 8, 0, 0, 0, time.UTC)

type complianceFixture struct {
	service  *ComplianceService
	repo     *credentials.InMemoryCredentialRepository
	auditSvc *audit.AuditService
	current  time.Time
}

func (f *complianceFixture) advance(d time.Duration) {
	f.current = f.current.Add(d)
}

func setupComplianceFixture(t *testing.T) *complianceFixture {
	t.Helper()

	f := &complianceFixture{current: complianceBase}
	clock := func() time.Time { return f.current }

	f.repo = credentials.NewInMemoryCredentialRepository()
	f.auditSvc = audit.NewAuditService(audit.NewInMemoryAuditRepository(), audit.WithClock(clock))
	f.service = NewComplianceService(f.repo, f.auditSvc, WithClock(clock))
	return f
}

// enrollTotp flips a fresh record to TOTP-enabled.
func (f *complianceFixture) enrollTotp(t *testing.T, userID uuid.UUID) {
	t.Helper()
	_, err := f.repo.GetOrCreate(context.Background(), userID, f.current)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetPendingTotpSecret(context.Background(), userID, "encrypted", f.current))
	confirmed, err := f.repo.ConfirmTotp(context.Background(), userID, f.current)
	require.NoError(t, err)
	require.True(t, confirmed)
}

// enrollSms flips a fresh record to phone-verified.
func (f *complianceFixture) enrollSms(t *testing.T, userID uuid.UUID) {
	t.Helper()
	_, err := f.repo.GetOrCreate(context.Background(), userID, f.current)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetPendingPhone(context.Background(), userID, "+15551234567", f.current))
	confirmed, err := f.repo.ConfirmPhone(context.Background(), userID, f.current)
	require.NoError(t, err)
	require.True(t, confirmed)
}

// recordOutcome appends one verification outcome to the audit log.
func (f *complianceFixture) recordOutcome(t *testing.T, action string, success bool) {
	t.Helper()
	_, err := f.auditSvc.Record(context.Background(), audit.RecordParams{
		UserID:  uuid.NullUUID{UUID: uuid.New(), Valid: true},
		Action:  action,
		Success: success,
	})
	require.NoError(t, err)
}

func TestGetAdoptionMetrics(t *testing.T) {
	f := setupComplianceFixture(t)

	f.enrollTotp(t, uuid.New())
	f.enrollTotp(t, uuid.New())
	f.enrollSms(t, uuid.New())
	// One record that started setup but never confirmed.
	pending := uuid.New()
	_, err := f.repo.GetOrCreate(context.Background(), pending, f.current)
	require.NoError(t, err)
	require.NoError(t, f.repo.SetPendingTotpSecret(context.Background(), pending, "encrypted", f.current))

	metrics, err := f.service.GetAdoptionMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, metrics.TotalRecords)
	assert.Equal(t, 2, metrics.TotpEnabled)
	assert.Equal(t, 1, metrics.SmsEnabled)
	assert.Equal(t, 3, metrics.AnyEnabled, "Pending setups do not count as adoption")
	assert.Equal(t, 0, metrics.BothEnabled)
	assert.InDelta(t, 0.75, metrics.AdoptionRate, 1e-9)
}

func TestGetAdoptionMetricsEmptyStore(t *testing.T) {
	f := setupComplianceFixture(t)

	metrics, err := f.service.GetAdoptionMetrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, metrics.TotalRecords)
	assert.Zero(t, metrics.AdoptionRate, "An empty store has no adoption rate, not a division by zero")
}

func TestGetFailureTrendBucketsOutcomes(t *testing.T) {
	f := setupComplianceFixture(t)
	since := f.current

	// Window 1: two failures, one success.
	f.recordOutcome(t, audit.ACTION_FAILED_ATTEMPT, false)
	f.recordOutcome(t, audit.ACTION_FAILED_ATTEMPT, false)
	f.recordOutcome(t, audit.ACTION_SUCCESSFUL_AUTH, true)
	// Setup events never count toward the trend.
	f.recordOutcome(t, audit.ACTION_SETUP, true)

	// Window 2: quiet.
	f.advance(2 * time.Hour)

	// Window 3: one failure crossing into a lockout.
	f.recordOutcome(t, audit.ACTION_FAILED_ATTEMPT, false)
	f.recordOutcome(t, audit.ACTION_LOCKOUT, false)
	f.advance(30 * time.Minute)

	trend, err := f.service.GetFailureTrend(context.Background(), since, time.Hour)
	require.NoError(t, err)
	require.Len(t, trend, 3, "Two and a half hours at hourly buckets spans three windows")

	assert.Equal(t, since, trend[0].WindowStart)
	assert.Equal(t, 2, trend[0].Failures)
	assert.Equal(t, 1, trend[0].Successes)
	assert.Zero(t, trend[0].Lockouts)
	assert.InDelta(t, 2.0/3.0, trend[0].FailureRate, 1e-9)

	assert.Equal(t, since.Add(time.Hour), trend[1].WindowStart)
	assert.Zero(t, trend[1].Failures, "Quiet windows appear with zero counts")
	assert.Zero(t, trend[1].FailureRate)

	assert.Equal(t, since.Add(2*time.Hour), trend[2].WindowStart)
	assert.Equal(t, 1, trend[2].Failures)
	assert.Equal(t, 1, trend[2].Lockouts)
	assert.InDelta(t, 1.0, trend[2].FailureRate, 1e-9, "A window with only failures has rate one")
}

func TestGetFailureTrendValidatesInput(t *testing.T) {
	f := setupComplianceFixture(t)

	_, err := f.service.GetFailureTrend(context.Background(), f.current.Add(-time.Hour), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = f.service.GetFailureTrend(context.Background(), f.current.Add(time.Hour), time.Hour)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), "A future since has nothing to report on")
}
