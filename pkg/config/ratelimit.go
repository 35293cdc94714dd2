package config

// RateLimitConfig contains rate limiting settings.
// Fields have no env tags - populate manually or use NewRateLimitConfigFromEnv() for standard env var names.
type RateLimitConfig struct {
	// Global rate limiting
	GlobalEnabled    bool
	GlobalCapacity   int
	GlobalRefillRate float64 // tokens per second

	// Per-IP rate limiting
	PerIPEnabled    bool
	PerIPCapacity   int
	PerIPRefillRate float64 // tokens per second

	// Per-User rate limiting (for authenticated requests)
	PerUserEnabled    bool
	PerUserCapacity   int
	PerUserRefillRate float64 // tokens per second

	// Challenge issuance limits (caps SMS sends per user)
	ChallengeEnabled    bool
	ChallengeCapacity   int
	ChallengeRefillRate float64 // tokens per second

	// Verification endpoint limits (slows code guessing beyond per-challenge attempts)
	VerifyEnabled    bool
	VerifyCapacity   int
	VerifyRefillRate float64 // tokens per second

	// Admin reset endpoint limits
	AdminResetEnabled    bool
	AdminResetCapacity   int
	AdminResetRefillRate float64 // tokens per second

	// IncludeHeaders controls whether rate limit headers are included in responses
	IncludeHeaders bool
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		// Global: ~1000 requests per minute
		GlobalEnabled:    true,
		GlobalCapacity:   1000,
		GlobalRefillRate: 16.67,

		// Per-IP: ~100 requests per minute
		PerIPEnabled:    true,
		PerIPCapacity:   100,
		PerIPRefillRate: 1.67,

		// Per-User: ~200 requests per minute
		PerUserEnabled:    true,
		PerUserCapacity:   200,
		PerUserRefillRate: 3.33,

		// Challenge issuance: 5 per 5 minutes
		ChallengeEnabled:    true,
		ChallengeCapacity:   5,
		ChallengeRefillRate: 0.017,

		// Verification: 15 per minute
		VerifyEnabled:    true,
		VerifyCapacity:   15,
		VerifyRefillRate: 0.25,

		// Admin resets: 10 per hour
		AdminResetEnabled:    true,
		AdminResetCapacity:   10,
		AdminResetRefillRate: 0.0028,

		IncludeHeaders: true,
	}
}

// NewRateLimitConfigFromEnv loads RateLimitConfig from standard environment variables.
// This is an optional convenience function - you can also populate the struct manually.
//
// Environment variables:
//   - RATELIMIT_GLOBAL_ENABLED: Enable global rate limiting (default: true)
//   - RATELIMIT_GLOBAL_CAPACITY: Global bucket capacity (default: 1000)
//   - RATELIMIT_GLOBAL_REFILL_RATE: Global refill rate in tokens/sec (default: 16.67)
//   - RATELIMIT_PER_IP_ENABLED: Enable per-IP rate limiting (default: true)
//   - RATELIMIT_PER_IP_CAPACITY: Per-IP bucket capacity (default: 100)
//   - RATELIMIT_PER_IP_REFILL_RATE: Per-IP refill rate in tokens/sec (default: 1.67)
//   - RATELIMIT_PER_USER_ENABLED: Enable per-user rate limiting (default: true)
//   - RATELIMIT_PER_USER_CAPACITY: Per-user bucket capacity (default: 200)
//   - RATELIMIT_PER_USER_REFILL_RATE: Per-user refill rate in tokens/sec (default: 3.33)
//   - RATELIMIT_CHALLENGE_ENABLED: Enable challenge issuance rate limiting (default: true)
//   - RATELIMIT_CHALLENGE_CAPACITY: Challenge bucket capacity (default: 5)
//   - RATELIMIT_CHALLENGE_REFILL_RATE: Challenge refill rate in tokens/sec (default: 0.017)
//   - RATELIMIT_VERIFY_ENABLED: Enable verification endpoint rate limiting (default: true)
//   - RATELIMIT_VERIFY_CAPACITY: Verification bucket capacity (default: 15)
//   - RATELIMIT_VERIFY_REFILL_RATE: Verification refill rate in tokens/sec (default: 0.25)
//   - RATELIMIT_ADMIN_RESET_ENABLED: Enable admin reset endpoint rate limiting (default: true)
//   - RATELIMIT_ADMIN_RESET_CAPACITY: Admin reset bucket capacity (default: 10)
//   - RATELIMIT_ADMIN_RESET_REFILL_RATE: Admin reset refill rate in tokens/sec (default: 0.0028)
//   - RATELIMIT_INCLUDE_HEADERS: Include rate limit headers in responses (default: true)
func NewRateLimitConfigFromEnv() RateLimitConfig {
	return RateLimitConfig{
		GlobalEnabled:        GetEnvBool("RATELIMIT_GLOBAL_ENABLED", true),
		GlobalCapacity:       GetEnvInt("RATELIMIT_GLOBAL_CAPACITY", 1000),
		GlobalRefillRate:     GetEnvFloat64("RATELIMIT_GLOBAL_REFILL_RATE", 16.67),
		PerIPEnabled:         GetEnvBool("RATELIMIT_PER_IP_ENABLED", true),
		PerIPCapacity:        GetEnvInt("RATELIMIT_PER_IP_CAPACITY", 100),
		PerIPRefillRate:      GetEnvFloat64("RATELIMIT_PER_IP_REFILL_RATE", 1.67),
		PerUserEnabled:       GetEnvBool("RATELIMIT_PER_USER_ENABLED", true),
		PerUserCapacity:      GetEnvInt("RATELIMIT_PER_USER_CAPACITY", 200),
		PerUserRefillRate:    GetEnvFloat64("RATELIMIT_PER_USER_REFILL_RATE", 3.33),
		ChallengeEnabled:     GetEnvBool("RATELIMIT_CHALLENGE_ENABLED", true),
		ChallengeCapacity:    GetEnvInt("RATELIMIT_CHALLENGE_CAPACITY", 5),
		ChallengeRefillRate:  GetEnvFloat64("RATELIMIT_CHALLENGE_REFILL_RATE", 0.017),
		VerifyEnabled:        GetEnvBool("RATELIMIT_VERIFY_ENABLED", true),
		VerifyCapacity:       GetEnvInt("RATELIMIT_VERIFY_CAPACITY", 15),
		VerifyRefillRate:     GetEnvFloat64("RATELIMIT_VERIFY_REFILL_RATE", 0.25),
		AdminResetEnabled:    GetEnvBool("RATELIMIT_ADMIN_RESET_ENABLED", true),
		AdminResetCapacity:   GetEnvInt("RATELIMIT_ADMIN_RESET_CAPACITY", 10),
		AdminResetRefillRate: GetEnvFloat64("RATELIMIT_ADMIN_RESET_REFILL_RATE", 0.0028),
		IncludeHeaders:       GetEnvBool("RATELIMIT_INCLUDE_HEADERS", true),
	}
}
