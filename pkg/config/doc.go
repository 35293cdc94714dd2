// Package config provides common configuration utilities and patterns for stepup-auth.
//
// This package centralizes configuration loading, validation, and management patterns
// that are used across all services. It eliminates code duplication and provides
// a consistent approach to handling environment variables, validation, and configuration.
//
// # Overview
//
// The config package provides:
//   - Environment variable helpers with type conversion
//   - Configuration validation utilities
//   - Two-factor challenge and lockout behavior configuration
//   - Database, Redis, email, Twilio, and rate limit configuration
//   - API prefix configuration for gateway routing
//
// # Environment Variable Helpers
//
// Load configuration from environment variables with automatic type conversion and defaults:
//
//	// String values
//	host := config.GetEnvOrDefault("STEPUP_PG_HOST", "localhost")
//	secret := config.MustGetEnv("JWT_SECRET") // Panics if not set
//
//	// Integer values
//	attempts := config.GetEnvInt("TWOFA_CHALLENGE_MAX_ATTEMPTS", 5)
//
//	// Boolean values
//	secure := config.GetEnvBool("COOKIE_SECURE", true)
//
//	// Duration values
//	delay := config.GetEnvDuration("RETRY_BASE_DELAY", 100*time.Millisecond)
//
//	// Float values (rate limiter refill rates)
//	rate := config.GetEnvFloat64("RATELIMIT_VERIFY_REFILL_RATE", 0.25)
//
//	// Slice values (comma-separated)
//	origins := config.GetEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
//
// # Configuration Validation
//
// Validate configuration with structured error handling:
//
//	func (c *TwoFaConfig) Validate() error {
//		return config.Validate(
//			func() config.ValidationErrors {
//				return config.CollectErrors(
//					config.RequirePositive("challenge_max_attempts", c.ChallengeMaxAttempts),
//					config.RequireInRange("sms_code_length", c.SmsCodeLength, 6, 8),
//				)
//			},
//		)
//	}
//
// # Duration Formats
//
// Expiration and window settings accept ISO 8601 durations ("PT5M", "PT4H")
// as well as Go duration strings ("5m", "4h"). The Parse* methods on each
// config struct handle both:
//
//	cfg := config.NewTwoFaConfigFromEnv()
//	ttl, err := cfg.ParseChallengeExpiration()
//
// # Environment Detection
//
// Detect and respond to different deployment environments:
//
//	if config.IsProduction() {
//		// Require a real JWT secret, refuse startup defaults
//	}
//
//	if config.IsDevelopment() {
//		// Relaxed cookie settings, verbose logging
//	}
//
// # Complete Example
//
// Putting it all together in a service configuration:
//
//	dbConfig := config.NewDatabaseConfigFromEnv()
//	if err := dbConfig.Validate(); err != nil {
//		return fmt.Errorf("invalid database configuration: %w", err)
//	}
//
//	twofaConfig := config.NewTwoFaConfigFromEnv()
//	if err := twofaConfig.Validate(); err != nil {
//		return fmt.Errorf("invalid 2FA configuration: %w", err)
//	}
//
//	challengeTTL, _ := twofaConfig.ParseChallengeExpiration()
//	lockoutDuration, _ := twofaConfig.ParseLockoutDuration()
//
// # Best Practices
//
// 1. Use MustGetEnv for required configuration during initialization
//   - Fail fast if critical configuration is missing
//   - Use GetEnvOrDefault for optional configuration with sensible defaults
//
// 2. Always validate configuration before using it
//   - Use the Validate() function with structured validators
//   - Return descriptive errors that help with debugging
//
// 3. Centralize configuration loading
//   - Create a single LoadConfig() function per service
//   - Load all configuration in one place
//   - Validate before returning the config object
//
// # Security Considerations
//
// - Never log sensitive configuration values (passwords, secrets, tokens)
// - Do not run production with the JWT_SECRET default
// - Keep lockout and attempt limits positive; validation rejects zero values
// - Use environment variables for secrets, not config files
package config
