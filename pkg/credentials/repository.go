package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	METHOD_TOTP   = "totp"
	METHOD_SMS    = "sms"
	METHOD_BACKUP = "backup"
)

// ErrCredentialsNotFound is returned when no credential record exists for a user.
var ErrCredentialsNotFound = errors.New("credential record not found")

// ValidateMethod checks that method is one a user can enroll in and prefer.
// Backup codes are a recovery path, not an enrollable method.
func ValidateMethod(method string) error {
	switch method {
	case METHOD_TOTP, METHOD_SMS:
		return nil
	default:
		return fmt.Errorf("invalid 2FA method: %s", method)
	}
}

// CredentialRecord holds a user's second-factor configuration. A record is
// never deleted; disabling nulls the fields in place. An unconfirmed TOTP
// secret or phone number lives on the same record with the corresponding
// enabled flag still false.
type CredentialRecord struct {
	UserID              uuid.UUID  `json:"user_id"`
	TotpSecretEncrypted string     `json:"totp_secret_encrypted,omitempty"`
	TotpEnabled         bool       `json:"totp_enabled"`
	PhoneNumber         string     `json:"phone_number,omitempty"`
	PhoneVerified       bool       `json:"phone_verified"`
	PreferredMethod     string     `json:"preferred_method,omitempty"`
	TwoFactorVerifiedAt *time.Time `json:"two_factor_verified_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MethodEnabled reports whether the given method is confirmed for this record.
func (r *CredentialRecord) MethodEnabled(method string) bool {
	switch method {
	case METHOD_TOTP:
		return r.TotpEnabled
	case METHOD_SMS:
		return r.PhoneVerified
	default:
		return false
	}
}

// EnabledMethods lists the confirmed methods in a stable order.
func (r *CredentialRecord) EnabledMethods() []string {
	var methods []string
	if r.TotpEnabled {
		methods = append(methods, METHOD_TOTP)
	}
	if r.PhoneVerified {
		methods = append(methods, METHOD_SMS)
	}
	return methods
}

// HasEnabledMethod reports whether any method is confirmed.
func (r *CredentialRecord) HasEnabledMethod() bool {
	return r.TotpEnabled || r.PhoneVerified
}

// CredentialStats aggregates adoption counts across all records.
type CredentialStats struct {
	TotalRecords  int `json:"total_records"`
	TotpEnabled   int `json:"totp_enabled"`
	SmsEnabled    int `json:"sms_enabled"`
	AnyEnabled    int `json:"any_enabled"`
	BothEnabled   int `json:"both_enabled"`
	PreferredTotp int `json:"preferred_totp"`
	PreferredSms  int `json:"preferred_sms"`
}

// CredentialRepository persists credential records. Confirm operations are
// conditional: they return false without mutating when no matching pending
// state exists, so a stale confirm can never re-enable a cleared method.
type CredentialRepository interface {
	// Get returns the record for userID or ErrCredentialsNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*CredentialRecord, error)

	// GetOrCreate returns the existing record or creates an empty one.
	GetOrCreate(ctx context.Context, userID uuid.UUID, now time.Time) (*CredentialRecord, error)

	// SetPendingTotpSecret stores an encrypted secret awaiting confirmation.
	// The record is created if absent; TotpEnabled is forced false.
	SetPendingTotpSecret(ctx context.Context, userID uuid.UUID, encryptedSecret string, now time.Time) error

	// ConfirmTotp flips TotpEnabled when a pending secret exists.
	ConfirmTotp(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error)

	// SetPendingPhone stores a phone number awaiting verification.
	// The record is created if absent; PhoneVerified is forced false.
	SetPendingPhone(ctx context.Context, userID uuid.UUID, phone string, now time.Time) error

	// ConfirmPhone flips PhoneVerified when a pending phone exists.
	ConfirmPhone(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error)

	// SetPreferredMethod updates the preferred method, "" to clear.
	// Returns ErrCredentialsNotFound when no record exists.
	SetPreferredMethod(ctx context.Context, userID uuid.UUID, method string, now time.Time) error

	// SetTwoFactorVerifiedAt records the time of the last successful step-up.
	SetTwoFactorVerifiedAt(ctx context.Context, userID uuid.UUID, at time.Time) error

	// ClearAll nulls every 2FA field on the record, keeping the record itself.
	// Returns false when no record exists.
	ClearAll(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error)

	// Stats returns adoption counts across all records.
	Stats(ctx context.Context) (*CredentialStats, error)
}
