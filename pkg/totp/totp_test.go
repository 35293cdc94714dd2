package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xlzd/gotp"
)

// RFC 6238 appendix B test secret, base32 of the ASCII string "12345678901234567890"
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateCodeMatchesKnownVectors(t *testing.T) {
	v := NewVerifier()

	// Six-digit truncations of the RFC 6238 SHA-1 vectors
	vectors := []struct {
		timestamp int64
		code      string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tc := range vectors {
		code, err := v.GenerateCode(rfcSecret, time.Unix(tc.timestamp, 0))
		require.NoError(t, err)
		assert.Equal(t, tc.code, code, "timestamp %d", tc.timestamp)
	}
}

func TestGenerateCodeMatchesIndependentImplementation(t *testing.T) {
	v := NewVerifier()

	for _, timestamp := range []int64{59, 1111111111, 2000000000} {
		ours, err := v.GenerateCode(rfcSecret, time.Unix(timestamp, 0))
		require.NoError(t, err)

		theirs := gotp.NewDefaultTOTP(rfcSecret).At(timestamp)
		assert.Equal(t, theirs, ours, "timestamp %d", timestamp)

		valid, err := v.ValidateAt(rfcSecret, theirs, time.Unix(timestamp, 0))
		require.NoError(t, err)
		assert.True(t, valid)
	}
}

func TestValidateAtSkew(t *testing.T) {
	// 1111111109 and 1111111111 fall in adjacent 30 second periods, so each
	// vector's code must be accepted at the other vector's time with the
	// default skew of one period.
	t.Run("accepts previous period", func(t *testing.T) {
		v := NewVerifier()
		valid, err := v.ValidateAt(rfcSecret, "081804", time.Unix(1111111111, 0))
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("accepts next period", func(t *testing.T) {
		v := NewVerifier()
		valid, err := v.ValidateAt(rfcSecret, "050471", time.Unix(1111111109, 0))
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("zero skew rejects adjacent period", func(t *testing.T) {
		v := NewVerifier(WithSkew(0))
		valid, err := v.ValidateAt(rfcSecret, "050471", time.Unix(1111111109, 0))
		require.NoError(t, err)
		assert.False(t, valid)

		valid, err = v.ValidateAt(rfcSecret, "081804", time.Unix(1111111109, 0))
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("rejects code from outside the window", func(t *testing.T) {
		v := NewVerifier()
		base := time.Unix(1700000010, 0)
		code, err := v.GenerateCode(rfcSecret, base)
		require.NoError(t, err)

		valid, err := v.ValidateAt(rfcSecret, code, base.Add(90*time.Second))
		require.NoError(t, err)
		assert.False(t, valid)

		valid, err = v.ValidateAt(rfcSecret, code, base.Add(-90*time.Second))
		require.NoError(t, err)
		assert.False(t, valid)
	})
}

func TestValidateRejectsMalformedPasscode(t *testing.T) {
	v := NewVerifier()

	valid, err := v.ValidateAt(rfcSecret, "12345", time.Unix(59, 0))
	assert.Error(t, err)
	assert.False(t, valid)
}

func TestValidateUsesInjectedClock(t *testing.T) {
	v := NewVerifier(WithClock(func() time.Time {
		return time.Unix(59, 0)
	}))

	valid, err := v.Validate(rfcSecret, "287082")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = v.Validate(rfcSecret, "005924")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestGenerateSecretRoundTrip(t *testing.T) {
	v := NewVerifier()

	secret, uri, err := v.GenerateSecret("alice@licensemart.example")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	assert.Contains(t, uri, "otpauth://totp/")
	assert.Contains(t, uri, "LicenseMart")
	assert.Contains(t, uri, "secret=")

	at := time.Unix(1700000010, 0)
	code, err := v.GenerateCode(secret, at)
	require.NoError(t, err)

	valid, err := v.ValidateAt(secret, code, at)
	require.NoError(t, err)
	assert.True(t, valid)
}
