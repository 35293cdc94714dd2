package config

import "time"

// RetryConfig contains bounded retry settings for background maintenance work,
// such as the expired lockout sweep. Retries are bounded so a struggling
// dependency degrades the sweep rather than piling up goroutines.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// BaseDelay is the delay before the first retry; subsequent retries double it
	BaseDelay time.Duration

	// MaxDelay caps the backoff between retries
	MaxDelay time.Duration
}

// DefaultRetryConfig returns a RetryConfig with sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// DelayFor returns the backoff delay before the given retry attempt.
// Attempt numbering starts at 1 for the first retry.
func (r RetryConfig) DelayFor(attempt int) time.Duration {
	delay := r.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

// Validate checks that the retry configuration is usable
func (r RetryConfig) Validate() error {
	return Validate(
		func() ValidationErrors {
			return CollectErrors(
				RequirePositive("max_attempts", r.MaxAttempts),
				RequireNonNegativeDuration("base_delay", r.BaseDelay),
				RequireNonNegativeDuration("max_delay", r.MaxDelay),
			)
		},
	)
}

// NewRetryConfigFromEnv loads RetryConfig from standard environment variables.
//
// Environment variables:
//   - RETRY_MAX_ATTEMPTS: Total attempts including the first (default: 3)
//   - RETRY_BASE_DELAY: Delay before first retry as a Go duration (default: "100ms")
//   - RETRY_MAX_DELAY: Backoff cap as a Go duration (default: "2s")
func NewRetryConfigFromEnv() RetryConfig {
	return RetryConfig{
		MaxAttempts: GetEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BaseDelay:   GetEnvDuration("RETRY_BASE_DELAY", 100*time.Millisecond),
		MaxDelay:    GetEnvDuration("RETRY_MAX_DELAY", 2*time.Second),
	}
}
