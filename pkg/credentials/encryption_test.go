package credentials

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretCipherRoundTrip(t *testing.T) {
	cipher, err := NewSecretCipher("test-encryption-key-123")
	require.NoError(t, err)

	plaintext := "JBSWY3DPEHPK3PXP"
	encrypted, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, encrypted, "Ciphertext should not equal the plaintext")

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted, "Round trip should restore the plaintext")
}

func TestSecretCipherUsesFreshNonces(t *testing.T) {
	cipher, err := NewSecretCipher("test-encryption-key-123")
	require.NoError(t, err)

	first, err := cipher.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	second, err := cipher.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "Each encryption should use a fresh nonce")
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	cipher, err := NewSecretCipher("test-encryption-key-123")
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = cipher.Decrypt(tampered)
	assert.Error(t, err, "GCM should reject a flipped ciphertext byte")
}

func TestDecryptWithWrongKey(t *testing.T) {
	cipher, err := NewSecretCipher("test-encryption-key-123")
	require.NoError(t, err)
	other, err := NewSecretCipher("a-different-key-456")
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	assert.Error(t, err, "A different key should fail to decrypt")
}

func TestNewSecretCipherRequiresKey(t *testing.T) {
	_, err := NewSecretCipher("")
	assert.Error(t, err)
}

func TestValidateEncryptionKey(t *testing.T) {
	assert.Error(t, ValidateEncryptionKey(""), "Empty keys should be rejected")
	assert.Error(t, ValidateEncryptionKey("short"), "Keys under 16 characters should be rejected")
	assert.NoError(t, ValidateEncryptionKey("sixteen-chars-ok"), "A 16 character key should pass")
}
