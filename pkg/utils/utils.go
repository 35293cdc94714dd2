package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"math/big"
	insecurerand "math/rand"
	"strings"

	"github.com/google/uuid"
)

const randomStringCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// GenerateRandomString generates a cryptographically secure random string
// of the given length from [a-zA-Z0-9]
func GenerateRandomString(length int) string {
	result := make([]byte, length)
	for i := range result {
		result[i] = randomStringCharset[RandomInt(len(randomStringCharset))]
	}
	return string(result)
}

// RandomInt returns a random integer in [0, max) using crypto/rand,
// falling back to math/rand only if the secure source fails
func RandomInt(max int) int {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return insecurerand.Intn(max)
	}
	return int(n.Int64())
}

// ShuffleRunes shuffles a rune slice in place using Fisher-Yates
func ShuffleRunes(runes []rune) {
	for i := len(runes) - 1; i > 0; i-- {
		j := RandomInt(i + 1)
		runes[i], runes[j] = runes[j], runes[i]
	}
}

// MaskEmail masks the local part of an email address for display,
// e.g. "john.doe@example.com" becomes "j***e@example.com"
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	switch {
	case len(local) == 1:
		return email
	case len(local) == 2:
		return local[:1] + "*" + local[1:] + domain
	default:
		return local[:1] + "***" + local[len(local)-1:] + domain
	}
}

// MaskPhone masks a phone number keeping only the last four digits,
// e.g. "+1234567890" becomes "******7890"
func MaskPhone(phone string) string {
	digits := keepDigits(phone)
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

// HashEmail returns the hex-encoded SHA-256 of a normalized email address.
// Deterministic, so the hash can serve as a lookup key without storing the value.
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// HashPhone returns the hex-encoded SHA-256 of a digits-only phone number
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(keepDigits(phone)))
	return hex.EncodeToString(sum[:])
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseUUID parses a UUID string, returning uuid.Nil instead of an error
// on invalid input
func ParseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// ToNullUUID converts a uuid.UUID to uuid.NullUUID, treating uuid.Nil as invalid
func ToNullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{
		UUID:  id,
		Valid: id != uuid.Nil,
	}
}

// NullStringToNullUUID converts a sql.NullString holding a UUID to uuid.NullUUID
func NullStringToNullUUID(ns sql.NullString) uuid.NullUUID {
	if !ns.Valid {
		return uuid.NullUUID{}
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

func ToNullString(str string) sql.NullString {
	if str == "" {
		return sql.NullString{
			String: str,
			Valid:  false,
		}
	}
	return sql.NullString{
		String: str,
		Valid:  true,
	}
}

func GetValidStrings(nullStrings []sql.NullString) []string {
	var validStrings []string

	for _, ns := range nullStrings {
		if ns.Valid {
			validStrings = append(validStrings, ns.String)
		}
	}

	return validStrings
}
