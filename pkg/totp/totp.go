// Package totp implements stateless TOTP passcode generation and validation
// for authenticator-app enrollments.
package totp

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DEFAULT_ISSUER = "LicenseMart"
	PERIOD         = 30
	SKEW           = 1
)

// Verifier validates TOTP passcodes against a shared secret.
// Validation is stateless: the secret and the clock fully determine the
// accepted codes, so no per-verification state is stored.
type Verifier struct {
	issuer string
	period uint
	skew   uint
	now    func() time.Time
}

// Option configures a Verifier
type Option func(*Verifier)

// WithIssuer sets the issuer label shown by authenticator apps
func WithIssuer(issuer string) Option {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithPeriod sets the passcode period in seconds
func WithPeriod(period uint) Option {
	return func(v *Verifier) {
		v.period = period
	}
}

// WithSkew sets how many adjacent periods are accepted on each side
func WithSkew(skew uint) Option {
	return func(v *Verifier) {
		v.skew = skew
	}
}

// WithClock sets the time source, used by tests for deterministic validation
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier with the standard authenticator-app
// parameters: 30 second period, one period of skew, six digits, SHA-1.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		issuer: DEFAULT_ISSUER,
		period: PERIOD,
		skew:   SKEW,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// GenerateSecret creates a new TOTP secret for the account and returns the
// base32 secret along with the otpauth:// provisioning URI that authenticator
// apps consume, usually rendered as a QR code by the client.
func (v *Verifier) GenerateSecret(accountName string) (secret, provisioningURI string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: accountName,
		Period:      v.period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to generate totp secret", "issuer", v.issuer, "error", err)
		return "", "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	slog.Info("Generated new totp secret", "issuer", v.issuer)
	return key.Secret(), key.URL(), nil
}

// GenerateCode produces the passcode for the secret at the given time.
// Used for enrollment self-checks and cross-implementation tests.
func (v *Verifier) GenerateCode(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at.UTC(), totp.ValidateOpts{
		Period:    v.period,
		Skew:      v.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to generate totp passcode", "error", err)
		return "", err
	}
	return code, nil
}

// Validate checks a passcode against the secret at the verifier's current time
func (v *Verifier) Validate(secret, passcode string) (bool, error) {
	return v.ValidateAt(secret, passcode, v.now())
}

// ValidateAt checks a passcode against the secret at an explicit time.
// Codes from the current period and one adjacent period on either side are
// accepted to absorb clock drift between server and authenticator device.
func (v *Verifier) ValidateAt(secret, passcode string, at time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(passcode, secret, at.UTC(), totp.ValidateOpts{
		Period:    v.period,
		Skew:      v.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if errors.Is(err, otp.ErrValidateInputInvalidLength) {
		// A passcode of the wrong length is just a wrong passcode.
		return false, nil
	}
	if err != nil {
		slog.Error("Failed to validate totp passcode", "error", err)
		return false, err
	}
	return valid, nil
}
