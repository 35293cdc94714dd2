package challenge

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// TOKEN_BYTES is the entropy of a challenge token before encoding.
const TOKEN_BYTES = 32

// NewChallengeToken returns a fresh opaque challenge token. The token is
// handed to the client exactly once; only its hash is persisted.
func NewChallengeToken() (string, error) {
	buf := make([]byte, TOKEN_BYTES)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate challenge token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest used as the storage key for a
// challenge token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
