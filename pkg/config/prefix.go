package config

import "fmt"

// PrefixConfig holds configurable API endpoint prefixes for all route groups.
// This allows flexible API gateway routing and versioning support.
//
// Example environment variables:
//
//	API_PREFIX_CHALLENGE=/api/v1/2fa/challenge
//	API_PREFIX_CREDENTIALS=/api/v1/2fa/credentials
//	API_PREFIX_ADMIN=/api/v1/admin/2fa
//	API_PREFIX_COMPLIANCE=/api/v1/compliance/2fa
type PrefixConfig struct {
	Challenge   string // Challenge endpoints (initiate, verify)
	Credentials string // Credential lifecycle endpoints (setup, confirm, disable, preferred method)
	Admin       string // Admin override endpoints (reset, emergency codes)
	Compliance  string // Compliance reporting endpoints (adoption, failure trend)
}

// DefaultV1Prefixes returns the default v1 prefix configuration.
//
// Pattern: /api/v1/2fa/* for end-user endpoints, /api/v1/admin/2fa and
// /api/v1/compliance/2fa for privileged route groups.
func DefaultV1Prefixes() PrefixConfig {
	return PrefixConfig{
		Challenge:   "/api/v1/2fa/challenge",
		Credentials: "/api/v1/2fa/credentials",
		Admin:       "/api/v1/admin/2fa",
		Compliance:  "/api/v1/compliance/2fa",
	}
}

// BuildPrefixesFromBase builds prefix configuration from a base path.
//
// Appends route segments to the base path for each route group.
// This provides a simple way to configure all endpoints with one prefix.
//
// Example:
//
//	BuildPrefixesFromBase("/api/v1/2fa")
//	// Returns:
//	// PrefixConfig{
//	//   Challenge:   "/api/v1/2fa/challenge",
//	//   Credentials: "/api/v1/2fa/credentials",
////	//   Admin:       "/api/v1/2fa/admin",
//	//   Compliance:  "/api/v1/2fa/compliance",
//	// }
func BuildPrefixesFromBase(basePath string) PrefixConfig {
	// Remove trailing slash if present
	if len(basePath) > 0 && basePath[len(basePath)-1] == '/' {
		basePath = basePath[:len(basePath)-1]
	}

	return PrefixConfig{
		Challenge:   basePath + "/challenge",
		Credentials: basePath + "/credentials",
		Admin:       basePath + "/admin",
		Compliance:  basePath + "/compliance",
	}
}

// LoadPrefixConfig loads prefix configuration from environment variables.
// Falls back to DefaultV1Prefixes() for any unset variables.
//
// Configuration priority (highest to lowest):
//  1. API_PREFIX_BASE: Base path for all endpoints (simplest)
//  2. Individual API_PREFIX_* overrides
//  3. DefaultV1Prefixes (default)
//
// Environment variables:
//   - API_PREFIX_BASE: Base path for all endpoints (e.g., "/api/v1/2fa")
//   - API_PREFIX_CHALLENGE: Challenge endpoint prefix (overrides base)
//   - API_PREFIX_CREDENTIALS: Credential lifecycle endpoint prefix (overrides base)
//   - API_PREFIX_ADMIN: Admin override endpoint prefix (overrides base)
//   - API_PREFIX_COMPLIANCE: Compliance reporting endpoint prefix (overrides base)
func LoadPrefixConfig() PrefixConfig {
	var defaults PrefixConfig

	if basePath := GetEnv("API_PREFIX_BASE"); basePath != "" {
		defaults = BuildPrefixesFromBase(basePath)
	} else {
		defaults = DefaultV1Prefixes()
	}

	// Merge individual overrides (allows overriding specific routes)
	return mergeWithDefaults(defaults)
}

// mergeWithDefaults merges environment variable overrides with defaults
func mergeWithDefaults(defaults PrefixConfig) PrefixConfig {
	return PrefixConfig{
		Challenge:   GetEnvOrDefault("API_PREFIX_CHALLENGE", defaults.Challenge),
		Credentials: GetEnvOrDefault("API_PREFIX_CREDENTIALS", defaults.Credentials),
		Admin:       GetEnvOrDefault("API_PREFIX_ADMIN", defaults.Admin),
		Compliance:  GetEnvOrDefault("API_PREFIX_COMPLIANCE", defaults.Compliance),
	}
}

// Validate checks that all prefix paths are valid (non-empty and start with /)
func (p PrefixConfig) Validate() error {
	prefixes := map[string]string{
		"Challenge":   p.Challenge,
		"Credentials": p.Credentials,
		"Admin":       p.Admin,
		"Compliance":  p.Compliance,
	}

	for name, prefix := range prefixes {
		if prefix == "" {
			return fmt.Errorf("prefix configuration missing: %s", name)
		}
		if prefix[0] != '/' {
			return fmt.Errorf("prefix must start with '/': %s = %s", name, prefix)
		}
	}

	return nil
}
