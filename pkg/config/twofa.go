package config

import (
	"time"

	"github.com/sosodev/duration"
)

// TwoFaConfig contains two-factor challenge and verification behavior settings.
// Fields have no env tags - populate manually or use NewTwoFaConfigFromEnv() for standard env var names.
type TwoFaConfig struct {
	// ChallengeExpiration is the validity period of a challenge token (ISO 8601 format, e.g., "PT5M")
	ChallengeExpiration string

	// ChallengeMaxAttempts is the number of verification attempts allowed per challenge
	ChallengeMaxAttempts int

	// SmsCodeExpiration is the validity period of a delivered SMS code (ISO 8601 format, e.g., "PT5M")
	SmsCodeExpiration string

	// SmsCodeMaxAttempts is the number of verification attempts allowed per SMS code
	SmsCodeMaxAttempts int

	// SmsCodeLength is the number of digits in a delivered SMS code
	SmsCodeLength int

	// BackupCodeCount is the number of backup codes issued per batch
	BackupCodeCount int

	// EmergencyCodeCount is the number of emergency codes issued by an admin override
	EmergencyCodeCount int

	// EmergencyCodeExpiration is the validity period of emergency codes (ISO 8601 format, e.g., "PT4H")
	EmergencyCodeExpiration string

	// MaxFailedAttempts is the number of failed verifications within the failure window before lockout
	MaxFailedAttempts int

	// FailureWindow is the sliding window over which failed verifications are counted (ISO 8601 format, e.g., "PT15M")
	FailureWindow string

	// LockoutDuration is how long verification stays locked after max failed attempts (ISO 8601 format, e.g., "PT30M")
	LockoutDuration string

	// Issuer is the account label presented by authenticator apps for TOTP enrollments
	Issuer string
}

// DefaultTwoFaConfig returns a TwoFaConfig with sensible defaults
func DefaultTwoFaConfig() TwoFaConfig {
	return TwoFaConfig{
		ChallengeExpiration:     "PT5M",
		ChallengeMaxAttempts:    5,
		SmsCodeExpiration:       "PT5M",
		SmsCodeMaxAttempts:      3,
		SmsCodeLength:           6,
		BackupCodeCount:         10,
		EmergencyCodeCount:      3,
		EmergencyCodeExpiration: "PT4H",
		MaxFailedAttempts:       5,
		FailureWindow:           "PT15M",
		LockoutDuration:         "PT30M",
		Issuer:                  "LicenseMart",
	}
}

// NewTwoFaConfigFromEnv loads TwoFaConfig from standard environment variables.
// This is an optional convenience function - you can also populate the struct manually.
//
// Environment variables:
//   - TWOFA_CHALLENGE_EXPIRATION: Challenge token validity in ISO 8601 format (default: "PT5M")
//   - TWOFA_CHALLENGE_MAX_ATTEMPTS: Verification attempts per challenge (default: 5)
//   - TWOFA_SMS_CODE_EXPIRATION: SMS code validity in ISO 8601 format (default: "PT5M")
//   - TWOFA_SMS_CODE_MAX_ATTEMPTS: Verification attempts per SMS code (default: 3)
//   - TWOFA_SMS_CODE_LENGTH: Digits per SMS code (default: 6)
//   - TWOFA_BACKUP_CODE_COUNT: Backup codes per batch (default: 10)
//   - TWOFA_EMERGENCY_CODE_COUNT: Emergency codes per admin override (default: 3)
//   - TWOFA_EMERGENCY_CODE_EXPIRATION: Emergency code validity in ISO 8601 format (default: "PT4H")
//   - TWOFA_MAX_FAILED_ATTEMPTS: Failed verifications before lockout (default: 5)
//   - TWOFA_FAILURE_WINDOW: Failure counting window in ISO 8601 format (default: "PT15M")
//   - TWOFA_LOCKOUT_DURATION: Lockout duration in ISO 8601 format (default: "PT30M")
//   - TWOFA_ISSUER: Issuer label for TOTP enrollments (default: "LicenseMart")
func NewTwoFaConfigFromEnv() TwoFaConfig {
	return TwoFaConfig{
		ChallengeExpiration:     GetEnvOrDefault("TWOFA_CHALLENGE_EXPIRATION", "PT5M"),
		ChallengeMaxAttempts:    GetEnvInt("TWOFA_CHALLENGE_MAX_ATTEMPTS", 5),
		SmsCodeExpiration:       GetEnvOrDefault("TWOFA_SMS_CODE_EXPIRATION", "PT5M"),
		SmsCodeMaxAttempts:      GetEnvInt("TWOFA_SMS_CODE_MAX_ATTEMPTS", 3),
		SmsCodeLength:           GetEnvInt("TWOFA_SMS_CODE_LENGTH", 6),
		BackupCodeCount:         GetEnvInt("TWOFA_BACKUP_CODE_COUNT", 10),
		EmergencyCodeCount:      GetEnvInt("TWOFA_EMERGENCY_CODE_COUNT", 3),
		EmergencyCodeExpiration: GetEnvOrDefault("TWOFA_EMERGENCY_CODE_EXPIRATION", "PT4H"),
		MaxFailedAttempts:       GetEnvInt("TWOFA_MAX_FAILED_ATTEMPTS", 5),
		FailureWindow:           GetEnvOrDefault("TWOFA_FAILURE_WINDOW", "PT15M"),
		LockoutDuration:         GetEnvOrDefault("TWOFA_LOCKOUT_DURATION", "PT30M"),
		Issuer:                  GetEnvOrDefault("TWOFA_ISSUER", "LicenseMart"),
	}
}

// ParseChallengeExpiration parses the ChallengeExpiration field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "PT5M") and Go duration format (e.g., "5m").
func (c *TwoFaConfig) ParseChallengeExpiration() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.ChallengeExpiration)
}

// ParseSmsCodeExpiration parses the SmsCodeExpiration field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "PT5M") and Go duration format (e.g., "5m").
func (c *TwoFaConfig) ParseSmsCodeExpiration() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.SmsCodeExpiration)
}

// ParseEmergencyCodeExpiration parses the EmergencyCodeExpiration field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "PT4H") and Go duration format (e.g., "4h").
func (c *TwoFaConfig) ParseEmergencyCodeExpiration() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.EmergencyCodeExpiration)
}

// ParseFailureWindow parses the FailureWindow field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "PT15M") and Go duration format (e.g., "15m").
func (c *TwoFaConfig) ParseFailureWindow() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.FailureWindow)
}

// ParseLockoutDuration parses the LockoutDuration field as a time.Duration.
// Supports ISO 8601 duration format (e.g., "PT30M") and Go duration format (e.g., "30m").
func (c *TwoFaConfig) ParseLockoutDuration() (time.Duration, error) {
	return parseISO8601OrGoDuration(c.LockoutDuration)
}

// Validate checks that the configured values are internally consistent
func (c *TwoFaConfig) Validate() error {
	return Validate(
		func() ValidationErrors {
			errs := CollectErrors(
				RequirePositive("challenge_max_attempts", c.ChallengeMaxAttempts),
				RequirePositive("sms_code_max_attempts", c.SmsCodeMaxAttempts),
				RequireInRange("sms_code_length", c.SmsCodeLength, 6, 8),
				RequirePositive("backup_code_count", c.BackupCodeCount),
				RequirePositive("emergency_code_count", c.EmergencyCodeCount),
				RequirePositive("max_failed_attempts", c.MaxFailedAttempts),
				RequireNonEmpty("issuer", c.Issuer),
			)

			for field, parse := range map[string]func() (time.Duration, error){
				"challenge_expiration":      c.ParseChallengeExpiration,
				"sms_code_expiration":       c.ParseSmsCodeExpiration,
				"emergency_code_expiration": c.ParseEmergencyCodeExpiration,
				"failure_window":            c.ParseFailureWindow,
				"lockout_duration":          c.ParseLockoutDuration,
			} {
				d, err := parse()
				if err != nil {
					errs = append(errs, ValidationError{Field: field, Message: err.Error()})
					continue
				}
				if verr := RequirePositiveDuration(field, d); verr != nil {
					errs = append(errs, *verr)
				}
			}

			return errs
		},
	)
}

// parseISO8601OrGoDuration tries to parse as ISO 8601 first, then as Go duration
func parseISO8601OrGoDuration(s string) (time.Duration, error) {
	// Try ISO 8601 format first
	isoDuration, err := duration.Parse(s)
	if err == nil {
		return isoDuration.ToTimeDuration(), nil
	}

	// Fall back to Go duration format
	return time.ParseDuration(s)
}
