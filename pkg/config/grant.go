package config

import (
	"net/http"
	"time"
)

// GrantConfig holds session grant token configuration.
// A grant is the short-lived proof of second-factor verification handed
// back to the session layer after a successful challenge.
type GrantConfig struct {
	Secret         string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	CookieHttpOnly bool   `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool   `env:"COOKIE_SECURE" env-default:"true"`
	GrantExpiry    string `env:"GRANT_TOKEN_EXPIRY" env-default:"PT10M"`
	Issuer         string `env:"JWT_ISSUER" env-default:"stepup-auth"`
	Audience       string `env:"JWT_AUDIENCE" env-default:"licensemart"`
}

// ParseGrantExpiry parses the grant token expiry duration.
// Supports ISO 8601 duration format (e.g., "PT10M") and Go duration format (e.g., "10m").
func (g GrantConfig) ParseGrantExpiry() (time.Duration, error) {
	return parseISO8601OrGoDuration(g.GrantExpiry)
}

// CookieSameSite returns the appropriate SameSite setting based on CookieSecure
func (g GrantConfig) CookieSameSite() http.SameSite {
	if g.CookieSecure {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// Validate checks that the grant configuration is usable
func (g GrantConfig) Validate() error {
	return Validate(
		func() ValidationErrors {
			errs := CollectErrors(
				RequireMinLength("secret", g.Secret, 16),
				RequireNonEmpty("issuer", g.Issuer),
				RequireNonEmpty("audience", g.Audience),
			)

			d, err := g.ParseGrantExpiry()
			if err != nil {
				errs = append(errs, ValidationError{Field: "grant_expiry", Message: err.Error()})
			} else if verr := RequirePositiveDuration("grant_expiry", d); verr != nil {
				errs = append(errs, *verr)
			}

			return errs
		},
	)
}

// NewGrantConfigFromEnv creates a GrantConfig from environment variables
func NewGrantConfigFromEnv() GrantConfig {
	return GrantConfig{
		Secret:         GetEnvOrDefault("JWT_SECRET", "very-secure-jwt-secret"),
		CookieHttpOnly: GetEnvBool("COOKIE_HTTP_ONLY", true),
		CookieSecure:   GetEnvBool("COOKIE_SECURE", true),
		GrantExpiry:    GetEnvOrDefault("GRANT_TOKEN_EXPIRY", "PT10M"),
		Issuer:         GetEnvOrDefault("JWT_ISSUER", "stepup-auth"),
		Audience:       GetEnvOrDefault("JWT_AUDIENCE", "licensemart"),
	}
}
