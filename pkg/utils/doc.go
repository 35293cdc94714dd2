// Package utils provides utility functions for common operations in the stepup-auth system.
//
// This package contains pure utility functions for string manipulation, cryptographic
// hashing, random generation, and type conversions. All functions are stateless and
// thread-safe.
//
// # Features
//
//   - Secure random string generation using crypto/rand
//   - Email and phone number masking for privacy
//   - SHA-256 hashing for emails and phone numbers
//   - SQL null type conversions (sql.NullString, uuid.NullUUID)
//   - UUID parsing and validation
//   - Fisher-Yates shuffle for rune slices
//
// # Random Generation
//
// Generate cryptographically secure random strings for tokens and codes:
//
//	token := utils.GenerateRandomString(32)
//	// Example output: "kJ8xN2mP9qL5rT3wY7zA1bC4vD6nE8hF"
//
//	// Random integer between 0 and max-1
//	idx := utils.RandomInt(len(charset))
//
// Security note: Uses crypto/rand for secure randomness. Falls back to math/rand
// only if crypto/rand fails (extremely rare).
//
// # Email and Phone Privacy
//
// Mask sensitive information when displaying to users or logging:
//
//	utils.MaskEmail("john.doe@example.com")  // "j***e@example.com"
//	utils.MaskPhone("+1234567890")           // "******7890"
//
// Masking keeps the last four digits of a phone number and the first and last
// character of an email local part. Challenge responses use MaskPhone so the
// full destination number is never echoed to a caller:
//
//	utils.MaskEmail("a@example.com")   // "a@example.com" (single char, no mask)
//	utils.MaskEmail("ab@example.com")  // "a*b@example.com"
//	utils.MaskPhone("1234")            // "1234" (exactly 4, no mask)
//	utils.MaskPhone("12345")           // "*2345"
//
// Hash emails and phone numbers for privacy-preserving storage and lookups:
//
//	emailHash := utils.HashEmail("john.doe@example.com")
//	phoneHash := utils.HashPhone("+1234567890")
//
// Hashing is deterministic (same input, same hash) so hashes can serve as
// de-duplication or lookup keys without storing the plain value. Audit event
// metadata stores hashed destinations, never the raw ones.
//
// # UUID Operations
//
//	// Safe UUID parsing (returns uuid.Nil on error instead of panicking)
//	userID := utils.ParseUUID(chi.URLParam(r, "userId"))
//	if userID == uuid.Nil {
//	    // handle invalid UUID
//	}
//
//	// Convert uuid.UUID to uuid.NullUUID for database storage
//	nullUUID := utils.ToNullUUID(userID) // Valid=false when userID == uuid.Nil
//
// # SQL Null Type Conversions
//
//	nullPhone := utils.ToNullString(phone) // "" becomes NULL
//	valid := utils.GetValidStrings(nullStrings)
//
// # Security Considerations
//
//  1. Random generation uses crypto/rand for security-sensitive operations
//  2. SHA-256 here is for hashing, not encryption (one-way operation)
//  3. Use masking for display, hashing for storage/lookup
//  4. Never use these utilities for credential hashing (use bcrypt)
package utils
